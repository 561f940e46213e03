package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderError_Taxonomy(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("generate: %w", NewProviderError("openai", 0, "network", cause))

	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "openai", pe.Provider)
	assert.False(t, IsRateLimit(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "openai provider error: network", pe.Error())

	rl := NewRateLimitError("google", 429, "quota", nil)
	assert.True(t, IsRateLimit(rl))
	assert.Equal(t, "google rate limited (status 429): quota", rl.Error())

	_, ok = AsProviderError(errors.New("plain"))
	assert.False(t, ok)
}

func TestBudgetExhaustedError_Is(t *testing.T) {
	err := fmt.Errorf("gate: %w", &BudgetExhaustedError{ProjectID: "p1", Status: BudgetStatus{Used: 10, Limit: 10}})
	assert.ErrorIs(t, err, ErrBudgetExhausted)

	var be *BudgetExhaustedError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "p1", be.ProjectID)
}

func TestTokenUsage(t *testing.T) {
	u := TokenUsage{InputTokens: 10, OutputTokens: 5}
	u.Add(TokenUsage{InputTokens: 1, OutputTokens: 2, CachedTokens: 3, ThinkingTokens: 4})
	assert.Equal(t, TokenUsage{InputTokens: 11, OutputTokens: 7, CachedTokens: 3, ThinkingTokens: 4}, u)
	assert.Equal(t, 18, u.Total())
}

func TestContextHelpers(t *testing.T) {
	ctx := WithLevel(WithAction(context.Background(), "rewrite"), "L2")
	assert.Equal(t, "rewrite", ActionFromContext(ctx))
	assert.Equal(t, "L2", LevelFromContext(ctx))
	assert.Equal(t, "unknown", ActionFromContext(context.Background()))
	assert.Equal(t, "unknown", LevelFromContext(WithLevel(context.Background(), "  ")))
}
