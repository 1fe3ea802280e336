package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mcplist/directory/internal/identity"
	"github.com/mcplist/directory/pkg/httputil"
	"github.com/mcplist/directory/pkg/logger"
	"github.com/mcplist/directory/pkg/middleware"
)

// ContentTypeJSON rejects request bodies that are not declared as JSON.
// Anonymous requests pass through so mutations answer 401 first.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.FromContext(r.Context()); !ok {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > 0 || r.Method == http.MethodPost {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.ErrorResponse{
					Error: "Content-Type must be application/json",
					Code:  "UNSUPPORTED_MEDIA_TYPE",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// callerKey charges authenticated callers per user and everyone else per IP.
func callerKey(r *http.Request) string {
	if id, ok := identity.FromContext(r.Context()); ok {
		return "user:" + id.UserID
	}
	return "ip:" + middleware.ClientIP(r)
}

// itemIDParam reads the item id from itemId, falling back to the older
// serverId name.
func itemIDParam(q url.Values) string {
	if v := q.Get("itemId"); v != "" {
		return v
	}
	return q.Get("serverId")
}

func requestLogger(r *http.Request, fallback *slog.Logger) *slog.Logger {
	if l := logger.FromContext(r.Context()); l != slog.Default() {
		return l
	}
	return fallback
}
