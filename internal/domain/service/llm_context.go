package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyAction llmCtxKey = "llm_action"
	llmCtxKeyLevel  llmCtxKey = "llm_level"
)

// WithAction 在 ctx 中标记调用的操作类型（generate/rewrite/audit...）
func WithAction(ctx context.Context, action string) context.Context {
	a := strings.TrimSpace(action)
	if a == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyAction, a)
}

// WithLevel 在 ctx 中标记章节层级
func WithLevel(ctx context.Context, level string) context.Context {
	l := strings.TrimSpace(level)
	if l == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyLevel, l)
}

func ActionFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyAction)
}

func LevelFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyLevel)
}

func stringFromContext(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(key).(string)
	if !ok || s == "" {
		return "unknown"
	}
	return s
}
