package http

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP_UntrustedPeerIgnoresHeaders(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "198.51.100.7:51334"
	r.Header.Set("X-Forwarded-For", "10.0.0.99")

	ip := ExtractClientIP(r, &IPConfig{TrustedProxies: []string{"192.0.2.0/24"}})
	assert.Equal(t, "198.51.100.7", ip)
}

func TestExtractClientIP_TrustedProxyUsesForwardedFor(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "192.0.2.10:44210"
	r.Header.Set("X-Forwarded-For", "203.0.113.4, 192.0.2.10")

	ip := ExtractClientIP(r, &IPConfig{TrustedProxies: []string{"192.0.2.0/24"}})
	assert.Equal(t, "203.0.113.4", ip)
}

func TestExtractClientIP_NoConfigFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "203.0.113.9:9000"
	r.Header.Set("X-Real-IP", "10.1.1.1")

	assert.Equal(t, "203.0.113.9", ExtractClientIP(r, nil))
}
