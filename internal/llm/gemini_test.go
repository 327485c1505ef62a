package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewGemini_EmptyKey(t *testing.T) {
	g, err := NewGemini(context.Background(), "  ", nil)
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestClassifyGemini(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"unauthorised", genai.APIError{Code: 401, Message: "API key not valid"}, KindAuth},
		{"forbidden", fmt.Errorf("wrapped: %w", genai.APIError{Code: 403}), KindAuth},
		{"missing model", genai.APIError{Code: 404, Message: "not found"}, KindNotFound},
		{"quota", &genai.APIError{Code: 429, Message: "RESOURCE_EXHAUSTED"}, KindQuota},
		{"server", genai.APIError{Code: 503}, KindUnavailable},
		{"bad request", genai.APIError{Code: 400}, KindInvalid},
		{"deadline", context.DeadlineExceeded, KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGemini("m", tt.err)
			var le *Error
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.want, le.Kind)
			assert.Equal(t, "m", le.Model)
			assert.NotEmpty(t, le.Message)
		})
	}
}
