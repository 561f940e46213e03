package service

import (
	"context"

	"proposal-ai-api/internal/domain/catalog"
)

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 与供应商无关的消息。Cacheable 标记适合做提示缓存边界的大块内容
type Message struct {
	Role      Role
	Content   string
	Cacheable bool
}

// ChatRequest 单次模型调用参数
type ChatRequest struct {
	Model          string
	Messages       []Message
	MaxTokens      int
	Temperature    float64
	ThinkingBudget int
}

// TokenUsage 归一化后的 token 计数。InputTokens 包含 CachedTokens
type TokenUsage struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	CachedTokens   int `json:"cached_tokens"`
	ThinkingTokens int `json:"thinking_tokens"`
}

// Add 累加用量
func (u *TokenUsage) Add(o TokenUsage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CachedTokens += o.CachedTokens
	u.ThinkingTokens += o.ThinkingTokens
}

// Total 输入 + 输出
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ChatResponse 同步调用结果
type ChatResponse struct {
	Content string
	Model   string
	Usage   TokenUsage
}

// StreamChunk 流式片段。Done 为终止信号，Usage 仅在终止片段上有效
type StreamChunk struct {
	Content string
	Usage   *TokenUsage
	Done    bool
	Err     error
}

// ChatProvider 供应商适配器，实现必须可并发调用
type ChatProvider interface {
	Name() catalog.Provider
	Generate(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Stream 返回的 channel 在终止片段之后关闭；ctx 取消时释放连接并关闭 channel
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
	Close() error
}

// ProviderResolver 按模型返回对应供应商的适配器
type ProviderResolver interface {
	ForModel(ctx context.Context, model string) (ChatProvider, error)
}
