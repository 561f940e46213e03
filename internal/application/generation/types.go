// Package generation 编排章节内容生成：预算门禁、策略解析、主备模型调用、计费与用量记录
package generation

import (
	"proposal-ai-api/internal/application/cost"
	"proposal-ai-api/internal/domain/catalog"
)

// 默认参数
const (
	DefaultMaxTokens = 4096
	DefaultAuditType = "compliance"

	auditModel       = "claude-3.5-sonnet"
	auditFallback    = "gemini-2.5-flash"
	auditTemperature = 0.2
	auditMaxTokens   = 4096

	// NoChangeSentinel 稽核结果中表示无需修改的标记
	NoChangeSentinel = "【無需調整】"
)

// Request 生成请求
type Request struct {
	UserID    string
	ProjectID string
	SectionID string

	Level  string
	Mode   catalog.GenerationMode
	Prompt string

	// Context 已检索好的招标文件摘要
	Context string
	// Template 参考范本
	Template string

	ModelOverride  string
	ThinkingBudget *int
	Temperature    *float64
	MaxTokens      int
	UseCache       bool
}

// Result 生成结果
type Result struct {
	Content        string         `json:"content"`
	ModelUsed      string         `json:"model_used"`
	InputTokens    int            `json:"input_tokens"`
	OutputTokens   int            `json:"output_tokens"`
	CachedTokens   int            `json:"cached_tokens"`
	ThinkingTokens int            `json:"thinking_tokens"`
	Cost           cost.Breakdown `json:"cost"`
	ElapsedMS      int64          `json:"generation_time_ms"`
	SectionLevel   string         `json:"section_level"`
	CacheHit       bool           `json:"cache_hit"`
	FallbackFrom   string         `json:"fallback_from,omitempty"`
}

// AuditRequest 合规稽核请求
type AuditRequest struct {
	UserID    string
	ProjectID string
	SectionID string

	TemplateContent    string
	RequirementContent string
	AuditType          string
	Strict             bool
	ModelOverride      string
}

// AuditResult 稽核结果
type AuditResult struct {
	NeedsModification bool           `json:"needs_modification"`
	ModifiedContent   string         `json:"modified_content,omitempty"`
	ModelUsed         string         `json:"model_used"`
	InputTokens       int            `json:"input_tokens"`
	OutputTokens      int            `json:"output_tokens"`
	CachedTokens      int            `json:"cached_tokens"`
	Cost              cost.Breakdown `json:"cost"`
	FallbackFrom      string         `json:"fallback_from,omitempty"`
}

// StreamEvent 流式输出事件：文本片段，或一个终止事件（Done 或 Err）
type StreamEvent struct {
	Content string
	Done    bool
	Err     error
	Result  *Result
}
