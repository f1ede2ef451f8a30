package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/velmarket/gateway/internal/models"
	pkglogger "github.com/velmarket/gateway/pkg/logger"
)

type captureSink struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
	err    error
	done   chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{done: make(chan struct{}, 16)}
}

func (s *captureSink) Append(ctx context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	s.done <- struct{}{}
	return s.err
}

func (s *captureSink) waitForWrite(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit write")
	}
}

func newTestAuditService(sink SecurityEventSink) *AuditService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuditService(sink, pkglogger.NewAuditLogger(logger), logger)
}

func TestAuditService_PersistsEventAsynchronously(t *testing.T) {
	sink := newCaptureSink()
	service := newTestAuditService(sink)

	service.Record(models.SecurityEvent{
		Kind:      models.EventLoginFailed,
		Severity:  models.SeverityWarn,
		ClientKey: "10.0.0.1|admin@example.com",
	})

	sink.waitForWrite(t)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.events, 1)
	assert.Equal(t, models.EventLoginFailed, sink.events[0].Kind)
}

func TestAuditService_SinkFailureDoesNotPanicOrBlock(t *testing.T) {
	sink := newCaptureSink()
	sink.err = errors.New("disk full")
	service := newTestAuditService(sink)

	service.Record(models.SecurityEvent{Kind: models.EventSystemError, Severity: models.SeverityCritical})
	sink.waitForWrite(t)
}

func TestAuditService_NilSinkStillLogs(t *testing.T) {
	service := newTestAuditService(nil)

	// Must not panic without a durable sink
	service.Record(models.SecurityEvent{Kind: models.EventAdmitAllowed, Severity: models.SeverityInfo})
}
