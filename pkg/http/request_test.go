package http

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	trusted := &IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		config     *IPConfig
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:44321",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header from trusted proxy",
			remoteAddr: "10.0.0.5:80",
			xff:        "203.0.113.7, 10.0.0.5",
			config:     trusted,
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header from untrusted peer is ignored",
			remoteAddr: "198.51.100.9:80",
			xff:        "203.0.113.7",
			config:     trusted,
			want:       "198.51.100.9",
		},
		{
			name:       "forwarded header without trusted proxies is ignored",
			remoteAddr: "198.51.100.9:80",
			xff:        "203.0.113.7",
			want:       "198.51.100.9",
		},
		{
			name:       "x-real-ip from trusted proxy",
			remoteAddr: "10.0.0.5:80",
			xri:        "203.0.113.7",
			config:     trusted,
			want:       "203.0.113.7",
		},
		{
			name:       "garbage forwarded value falls through to peer",
			remoteAddr: "10.0.0.5:80",
			xff:        "not-an-ip",
			config:     trusted,
			want:       "10.0.0.5",
		},
		{
			name:       "ipv6 peer",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			assert.Equal(t, tt.want, ExtractClientIP(req, tt.config))
		})
	}
}

func TestExtractClientIP_UnparseableAddressesGetDistinctBuckets(t *testing.T) {
	reqA := httptest.NewRequest("GET", "/", nil)
	reqA.RemoteAddr = "bogus-a"
	reqB := httptest.NewRequest("GET", "/", nil)
	reqB.RemoteAddr = "bogus-b"

	a := ExtractClientIP(reqA, nil)
	b := ExtractClientIP(reqB, nil)

	assert.Equal(t, "invalid:bogus-a", a)
	assert.Equal(t, "invalid:bogus-b", b)
	assert.NotEqual(t, a, b)
}
