package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIPAllowlist(t *testing.T) {
	tests := []struct {
		name       string
		cidrs      []string
		remoteAddr string
		want       int
	}{
		{"loopback allowed", []string{"127.0.0.0/8"}, "127.0.0.1:5555", http.StatusOK},
		{"outside range", []string{"10.0.0.0/8"}, "192.168.1.4:5555", http.StatusForbidden},
		{"ipv6 loopback", []string{"::1/128"}, "[::1]:5555", http.StatusOK},
		{"mapped ipv4", []string{"10.0.0.0/8"}, "[::ffff:10.1.2.3]:80", http.StatusOK},
		{"invalid cidr skipped", []string{"not-a-cidr", "10.0.0.0/8"}, "10.9.9.9:1", http.StatusOK},
		{"empty allowlist", nil, "127.0.0.1:1", http.StatusForbidden},
		{"garbage remote addr", []string{"0.0.0.0/0"}, "???", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := IPAllowlist(tt.cidrs, discardLogger())(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestIPAllowlist_ForbiddenBody(t *testing.T) {
	h := IPAllowlist([]string{"10.0.0.0/8"}, discardLogger())(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "8.8.8.8:1"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestRegisterPprof(t *testing.T) {
	r := chi.NewRouter()
	RegisterPprof(r, []string{"127.0.0.0/8"}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "127.0.0.1:1"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "203.0.113.5:1"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
