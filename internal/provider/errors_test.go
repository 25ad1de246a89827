package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
	err := fmt.Errorf("chat: %w", &ProviderError{
		Code:     ErrCodeServiceUnavailable,
		Message:  "ollama is not running",
		Provider: "ollama",
		Err:      cause,
	})

	assert.ErrorIs(t, err, cause)

	var pe *ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeServiceUnavailable, pe.Code)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsTimeout(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed timeout", NewProviderError(ErrCodeTimeout, "request timeout", "ollama", true), true},
		{"wrapped deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"other typed", NewProviderError(ErrCodeModelNotFound, "missing", "ollama", false), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTimeout(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewProviderError(ErrCodeNetworkError, "reset", "ollama", true)))
	assert.False(t, IsRetryable(NewProviderError(ErrCodeModelNotFound, "missing", "ollama", false)))
	assert.False(t, IsRetryable(errors.New("plain")))
}
