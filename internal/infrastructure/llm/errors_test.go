package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proposal-ai-api/internal/domain/service"
)

func TestStatusError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		rateLimit bool
		contains  string
	}{
		{"anthropic 429", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, true, "slow down"},
		{"gemini exhausted", 400, `{"error":{"code":400,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded"}}`, true, "RESOURCE_EXHAUSTED"},
		{"auth", 401, `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`, false, "invalid x-api-key"},
		{"plain body", 500, `upstream exploded`, false, "upstream exploded"},
		{"empty", 502, ``, false, "empty error response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := statusError("anthropic", tt.status, []byte(tt.body))
			pe, ok := service.AsProviderError(err)
			require.True(t, ok)
			assert.Equal(t, tt.rateLimit, pe.RateLimited)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Contains(t, pe.Message, tt.contains)
		})
	}
}

func TestStatusError_TruncatesOnRuneBoundary(t *testing.T) {
	// 前导 "x" 使 512 字节处落在三字节汉字中间
	body := "x" + strings.Repeat("错", 400)
	err := statusError("google", 503, []byte(body))
	pe, ok := service.AsProviderError(err)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(pe.Message))
	assert.LessOrEqual(t, len(pe.Message), maxErrorBody)
	assert.Equal(t, "x"+strings.Repeat("错", 170), pe.Message)
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, wrapError("openai", nil))

	rl := wrapError("openai", errors.New("error, status code: 429, message: Rate limit reached"))
	pe, ok := service.AsProviderError(rl)
	require.True(t, ok)
	assert.True(t, pe.RateLimited)
	assert.Equal(t, 429, pe.StatusCode)

	generic := wrapError("openai", errors.New("error, status code: 500, message: boom"))
	assert.False(t, service.IsRateLimit(generic))

	canceled := wrapError("openai", fmt.Errorf("do: %w", context.Canceled))
	assert.False(t, service.IsRateLimit(canceled))
	assert.ErrorIs(t, canceled, context.Canceled)

	already := service.NewRateLimitError("google", 429, "x", nil)
	assert.Same(t, already, wrapError("openai", already))
}
