package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapProviderError(t *testing.T) {
	tests := []struct {
		name       string
		platform   string
		statusCode int
		message    string
		wantCode   string
	}{
		{
			name:       "permission denied",
			platform:   "instagram",
			statusCode: 400,
			message:    "The user has not granted Permission for this action",
			wantCode:   ErrCodePermission,
		},
		{
			name:       "expired token message",
			platform:   "instagram",
			statusCode: 400,
			message:    "Access token has expired",
			wantCode:   ErrCodeTokenExpired,
		},
		{
			name:       "bare 401",
			platform:   "threads",
			statusCode: 401,
			message:    "unauthorized",
			wantCode:   ErrCodeTokenExpired,
		},
		{
			name:       "invalid oauth session",
			platform:   "threads",
			statusCode: 400,
			message:    "Invalid OAuth access token",
			wantCode:   ErrCodeTokenExpired,
		},
		{
			name:       "missing resource",
			platform:   "threads",
			statusCode: 400,
			message:    "Object with ID '123' does not exist",
			wantCode:   ErrCodeNotFound,
		},
		{
			name:       "server error",
			platform:   "youtube",
			statusCode: 503,
			message:    "Backend Error",
			wantCode:   ErrCodeTransient,
		},
		{
			name:       "timeout",
			platform:   "instagram",
			statusCode: 400,
			message:    "Request timed out",
			wantCode:   ErrCodeTransient,
		},
		{
			name:       "unclassified",
			platform:   "instagram",
			statusCode: 400,
			message:    "something odd happened",
			wantCode:   ErrCodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapProviderError(tt.platform, tt.statusCode, tt.message, nil)

			var pe *PlatformError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.platform, pe.Platform)
			assert.Equal(t, tt.wantCode, pe.Code)
			assert.Equal(t, tt.message, pe.Message)
		})
	}
}

func TestMapProviderError_PassesThroughPlatformError(t *testing.T) {
	original := &PlatformError{Platform: "threads", Code: ErrCodeNotFound, Message: "gone"}

	err := MapProviderError("threads", 500, "should be ignored", fmt.Errorf("wrapped: %w", original))

	var pe *PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Same(t, original, pe)
}

func TestMapProviderError_UsesWrappedErrorMessage(t *testing.T) {
	err := MapProviderError("youtube", 0, "", errors.New("connection timed out"))

	var pe *PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeTransient, pe.Code)
	assert.Equal(t, "connection timed out", pe.Message)
}

func TestPlatformError_ReconnectRequired(t *testing.T) {
	assert.True(t, (&PlatformError{Code: ErrCodeTokenExpired}).ReconnectRequired())
	assert.True(t, (&PlatformError{Code: ErrCodePermission}).ReconnectRequired())
	assert.True(t, (&PlatformError{Code: ErrCodeNotFound}).ReconnectRequired())
	assert.False(t, (&PlatformError{Code: ErrCodeTransient}).ReconnectRequired())
	assert.False(t, (&PlatformError{Code: ErrCodeUnknown}).ReconnectRequired())
}
