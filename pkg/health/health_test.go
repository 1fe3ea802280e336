package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(msg string) Checker {
	return func(context.Context) error { return errors.New(msg) }
}

func serveReady(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLivenessHandler(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", failing("down"))

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUp, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name        string
		critical    map[string]Checker
		nonCritical map[string]Checker
		wantCode    int
		wantStatus  Status
	}{
		{
			name:        "all up",
			critical:    map[string]Checker{"postgres": ok},
			nonCritical: map[string]Checker{"redis": ok, "kafka": ok},
			wantCode:    http.StatusOK,
			wantStatus:  StatusUp,
		},
		{
			name:        "cache down degrades",
			critical:    map[string]Checker{"postgres": ok},
			nonCritical: map[string]Checker{"redis": failing("redis down"), "kafka": ok},
			wantCode:    http.StatusOK,
			wantStatus:  StatusDegraded,
		},
		{
			name:        "database down fails",
			critical:    map[string]Checker{"postgres": failing("connection refused")},
			nonCritical: map[string]Checker{"redis": failing("redis down")},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  StatusDown,
		},
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: StatusUp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			for name, c := range tt.critical {
				h.RegisterCritical(name, c)
			}
			for name, c := range tt.nonCritical {
				h.RegisterNonCritical(name, c)
			}

			code, resp := serveReady(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.critical)+len(tt.nonCritical))
		})
	}
}

func TestReadiness_ReportsPerCheckDetail(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", ok)
	h.RegisterNonCritical("kafka", failing("broker unreachable"))

	_, resp := serveReady(t, h)

	assert.Equal(t, CheckResult{Status: StatusUp, Critical: true}, resp.Checks["postgres"])
	assert.Equal(t, CheckResult{Status: StatusDown, Critical: false, Error: "broker unreachable"}, resp.Checks["kafka"])
}

func TestRegister_IsCriticalAndOverwrites(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", failing("first"))
	h.Register("postgres", failing("second"))

	code, resp := serveReady(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.True(t, resp.Checks["postgres"].Critical)
	assert.Equal(t, "second", resp.Checks["postgres"].Error)
}

func TestCheck_PassesContextDeadline(t *testing.T) {
	h := NewHandler()
	h.Register("postgres", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	})

	_, resp := serveReady(t, h)
	assert.Equal(t, StatusUp, resp.Status)
}
