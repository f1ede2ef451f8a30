package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadinessProbeExercisesThePool(t *testing.T) {
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	// The check acquires a real connection and runs a probe query, so a
	// passing probe means the pool can actually serve repository traffic
	require.NoError(t, testDB.DB.HealthCheck(context.Background()))

	resp, err := http.Get(ts.Server.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
