package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{ErrNotFound, ErrInvalidInput, ErrUnauthorized, ErrStorage, ErrInternal}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

func TestAppError_ErrorString_WithWrappedError(t *testing.T) {
	inner := fmt.Errorf("db connection lost")
	appErr := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: inner}
	assert.Contains(t, appErr.Error(), "INTERNAL_ERROR")
	assert.Contains(t, appErr.Error(), "something broke")
	assert.Contains(t, appErr.Error(), "db connection lost")
}

func TestAppError_ErrorString_WithoutWrappedError(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "review not found"}
	assert.Equal(t, "NOT_FOUND: review not found", appErr.Error())
}

func TestNotFound(t *testing.T) {
	err := NotFound("Review not found")
	require.NotNil(t, err)
	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Equal(t, "Review not found", err.Message)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("itemId is required")
	require.NotNil(t, err)
	assert.Equal(t, "INVALID_INPUT", err.Code)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestUnauthorized(t *testing.T) {
	err := Unauthorized("Authentication required")
	require.NotNil(t, err)
	assert.Equal(t, "UNAUTHORIZED", err.Code)
	assert.Equal(t, http.StatusUnauthorized, err.Status)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestStorage_WrapsCauseAndSentinel(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Storage("Failed to submit vote", cause)
	require.NotNil(t, err)
	assert.Equal(t, "STORAGE_ERROR", err.Code)
	assert.Equal(t, "Failed to submit vote", err.Message)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, cause))
}

func TestInternal(t *testing.T) {
	err := Internal(fmt.Errorf("segfault"))
	assert.Equal(t, "INTERNAL_ERROR", err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Contains(t, err.Error(), "segfault")
}

func TestWrap(t *testing.T) {
	wrapped := Wrap(ErrNotFound, "get review")
	assert.Contains(t, wrapped.Error(), "get review")
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"app error", NotFound("x"), http.StatusNotFound},
		{"not found sentinel", ErrNotFound, http.StatusNotFound},
		{"invalid input sentinel", ErrInvalidInput, http.StatusBadRequest},
		{"unauthorized sentinel", ErrUnauthorized, http.StatusUnauthorized},
		{"wrapped sentinel", fmt.Errorf("outer: %w", ErrInvalidInput), http.StatusBadRequest},
		{"storage", Storage("boom", fmt.Errorf("x")), http.StatusInternalServerError},
		{"unknown", fmt.Errorf("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}
