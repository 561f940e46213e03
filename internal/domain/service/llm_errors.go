package service

import (
	"errors"
	"fmt"
)

// ProviderError 供应商调用失败。RateLimited 表示供应商明确返回限流或配额不足
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RateLimited bool
	Err         error
}

func (e *ProviderError) Error() string {
	kind := "provider error"
	if e.RateLimited {
		kind = "rate limited"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Provider, kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError 创建通用供应商错误
func NewProviderError(provider string, status int, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: status, Message: message, Err: err}
}

// NewRateLimitError 创建限流错误
func NewRateLimitError(provider string, status int, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: status, Message: message, RateLimited: true, Err: err}
}

// AsProviderError 提取 ProviderError
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRateLimit 是否限流错误
func IsRateLimit(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.RateLimited
}

// ErrBudgetExhausted 项目 token 预算已用完
var ErrBudgetExhausted = errors.New("token budget exhausted")

// BudgetExhaustedError 携带拒绝时的预算状态
type BudgetExhaustedError struct {
	ProjectID string
	Status    BudgetStatus
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("project %s: %v (used %d of %d)", e.ProjectID, ErrBudgetExhausted, e.Status.Used, e.Status.Limit)
}

func (e *BudgetExhaustedError) Is(target error) bool {
	return target == ErrBudgetExhausted
}
