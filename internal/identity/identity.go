// Package identity resolves the caller of a request from a bearer token.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcplist/directory/pkg/logger"
)

const anonymousName = "Anonymous"

// Identity is the authenticated caller plus the profile fields that get
// snapshotted onto reviews.
type Identity struct {
	UserID    string
	FirstName string
	LastName  string
	Username  string
	ImageURL  string
}

// DisplayName is "First Last" when a first name is set, otherwise the
// username, otherwise "Anonymous".
func (i Identity) DisplayName() string {
	if i.FirstName != "" {
		return strings.TrimSpace(i.FirstName + " " + i.LastName)
	}
	if i.Username != "" {
		return i.Username
	}
	return anonymousName
}

// Claims is the token payload. UserID is accepted as a fallback for tokens
// that do not set sub.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

// ErrNoSubject is returned for a correctly signed token without a user id.
var ErrNoSubject = errors.New("token has no subject")

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a Verifier for the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (Identity, error) {
	var claims Claims
	token, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return Identity{}, jwt.ErrTokenSignatureInvalid
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" {
		return Identity{}, ErrNoSubject
	}

	return Identity{
		UserID:    userID,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		Username:  claims.Username,
		ImageURL:  claims.ImageURL,
	}, nil
}

type ctxKey struct{}

// NewContext returns ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the caller, if the request was authenticated.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// Middleware resolves the bearer token, when present, into the request
// context. Requests without a usable token continue anonymously; handlers
// decide whether that is acceptable.
func Middleware(v *Verifier, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			id, err := v.Verify(raw)
			if err != nil {
				l.WarnContext(r.Context(), "invalid bearer token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := NewContext(r.Context(), id)
			ctx = logger.WithUserID(ctx, id.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
