package identity

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcplist/directory/pkg/logger"
)

const testSecret = "test-secret-key-for-jwt-signing"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want string
	}{
		{"first and last", Identity{FirstName: "Ada", LastName: "Lovelace", Username: "ada"}, "Ada Lovelace"},
		{"first only", Identity{FirstName: "Ada"}, "Ada"},
		{"username", Identity{LastName: "Lovelace", Username: "ada"}, "ada"},
		{"nothing", Identity{UserID: "user_1"}, "Anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.DisplayName())
		})
	}
}

func TestVerify_ValidToken(t *testing.T) {
	raw := generateToken(t, testSecret, jwt.MapClaims{
		"sub":        "user_2abc",
		"first_name": "Ada",
		"image_url":  "https://img.example/ada.png",
		"exp":        jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	id, err := NewVerifier(testSecret).Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user_2abc", id.UserID)
	assert.Equal(t, "Ada", id.FirstName)
	assert.Equal(t, "https://img.example/ada.png", id.ImageURL)
}

func TestVerify_UserIDClaimFallback(t *testing.T) {
	raw := generateToken(t, testSecret, jwt.MapClaims{"user_id": "user-456"})

	id, err := NewVerifier(testSecret).Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-456", id.UserID)
}

func TestVerify_Rejects(t *testing.T) {
	v := NewVerifier(testSecret)

	_, err := v.Verify(generateToken(t, "other-secret", jwt.MapClaims{"sub": "u"}))
	assert.Error(t, err, "wrong secret")

	_, err = v.Verify(generateToken(t, testSecret, jwt.MapClaims{
		"sub": "u",
		"exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = v.Verify(generateToken(t, testSecret, jwt.MapClaims{"first_name": "Ada"}))
	assert.ErrorIs(t, err, ErrNoSubject)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(none)
	assert.Error(t, err, "alg none")
}

func echoIdentity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous|" + logger.UserIDFromContext(r.Context())))
			return
		}
		_, _ = w.Write([]byte(id.UserID + "|" + logger.UserIDFromContext(r.Context())))
	}
}

func TestMiddleware(t *testing.T) {
	valid := generateToken(t, testSecret, jwt.MapClaims{"sub": "user_2abc"})
	handler := Middleware(NewVerifier(testSecret), newTestLogger())(echoIdentity())

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid bearer", "Bearer " + valid, "user_2abc|user_2abc"},
		{"lowercase scheme", "bearer " + valid, "user_2abc|user_2abc"},
		{"no header", "", "anonymous|"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "anonymous|"},
		{"garbage token", "Bearer not-a-jwt", "anonymous|"},
		{"empty token", "Bearer ", "anonymous|"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/votes/self", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}
