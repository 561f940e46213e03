package dto

import (
	"strings"

	"proposal-ai-api/internal/application/cost"
	"proposal-ai-api/internal/application/generation"
	"proposal-ai-api/internal/domain/catalog"
)

// GenerateRequest 章节生成 / 改写请求
type GenerateRequest struct {
	ProjectID    string `json:"project_id" binding:"required,uuid"`
	SectionID    string `json:"section_id,omitempty" binding:"omitempty,uuid"`
	SectionLevel string `json:"section_level,omitempty"`
	Mode         string `json:"mode,omitempty"`
	Prompt       string `json:"prompt" binding:"required"`

	Context  string `json:"context,omitempty"`
	Template string `json:"template,omitempty"`

	Model          string   `json:"model,omitempty"`
	ThinkingBudget *int     `json:"thinking_budget,omitempty" binding:"omitempty,gte=0"`
	Temperature    *float64 `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	MaxTokens      int      `json:"max_tokens,omitempty" binding:"gte=0,lte=32768"`
	UseCache       *bool    `json:"use_cache,omitempty"`
}

// ToGeneration 转换为编排请求；mode 非法时返回 false
func (r *GenerateRequest) ToGeneration(userID string) (generation.Request, bool) {
	req := generation.Request{
		UserID:         userID,
		ProjectID:      strings.TrimSpace(r.ProjectID),
		SectionID:      strings.TrimSpace(r.SectionID),
		Level:          r.SectionLevel,
		Mode:           catalog.ModeGenerate,
		Prompt:         r.Prompt,
		Context:        r.Context,
		Template:       r.Template,
		ModelOverride:  r.Model,
		ThinkingBudget: r.ThinkingBudget,
		Temperature:    r.Temperature,
		MaxTokens:      r.MaxTokens,
		UseCache:       r.UseCache == nil || *r.UseCache,
	}
	if req.Level == "" {
		req.Level = string(catalog.DefaultLevel)
	}
	if r.Mode != "" {
		mode, ok := catalog.ParseMode(r.Mode)
		if !ok || mode == catalog.ModeAudit {
			return req, false
		}
		req.Mode = mode
	}
	return req, true
}

// GenerateResponse 生成结果
type GenerateResponse struct {
	Success          bool           `json:"success"`
	Content          string         `json:"content"`
	ModelUsed        string         `json:"model_used"`
	InputTokens      int            `json:"input_tokens"`
	OutputTokens     int            `json:"output_tokens"`
	CachedTokens     int            `json:"cached_tokens"`
	ThinkingTokens   int            `json:"thinking_tokens"`
	CostUSD          float64        `json:"cost_usd"`
	Cost             cost.Breakdown `json:"cost_breakdown"`
	GenerationTimeMS int64          `json:"generation_time_ms"`
	SectionLevel     string         `json:"section_level"`
	CacheHit         bool           `json:"cache_hit"`
	FallbackFrom     string         `json:"fallback_from,omitempty"`
}

// ToGenerateResponse 转换生成结果
func ToGenerateResponse(res *generation.Result) *GenerateResponse {
	return &GenerateResponse{
		Success:          true,
		Content:          res.Content,
		ModelUsed:        res.ModelUsed,
		InputTokens:      res.InputTokens,
		OutputTokens:     res.OutputTokens,
		CachedTokens:     res.CachedTokens,
		ThinkingTokens:   res.ThinkingTokens,
		CostUSD:          res.Cost.TotalCost,
		Cost:             res.Cost,
		GenerationTimeMS: res.ElapsedMS,
		SectionLevel:     res.SectionLevel,
		CacheHit:         res.CacheHit,
		FallbackFrom:     res.FallbackFrom,
	}
}

// AuditRequest 合规稽核请求
type AuditRequest struct {
	ProjectID          string `json:"project_id" binding:"required,uuid"`
	SectionID          string `json:"section_id,omitempty" binding:"omitempty,uuid"`
	TemplateContent    string `json:"template_content" binding:"required"`
	RequirementContent string `json:"requirement_content" binding:"required"`
	AuditType          string `json:"audit_type,omitempty"`
	Strict             *bool  `json:"strict,omitempty"`
	Model              string `json:"model,omitempty"`
}

// ToAudit 转换为编排请求；strict 默认开启
func (r *AuditRequest) ToAudit(userID string) generation.AuditRequest {
	return generation.AuditRequest{
		UserID:             userID,
		ProjectID:          strings.TrimSpace(r.ProjectID),
		SectionID:          strings.TrimSpace(r.SectionID),
		TemplateContent:    r.TemplateContent,
		RequirementContent: r.RequirementContent,
		AuditType:          r.AuditType,
		Strict:             r.Strict == nil || *r.Strict,
		ModelOverride:      r.Model,
	}
}

// AuditResponse 稽核结果
type AuditResponse struct {
	Success bool `json:"success"`
	*generation.AuditResult
}

// EstimateRequest 费用估算请求
type EstimateRequest struct {
	Model        string `json:"model" binding:"required"`
	InputTokens  int    `json:"input_tokens" binding:"gte=0"`
	OutputTokens int    `json:"output_tokens" binding:"gte=0"`
	CachedTokens int    `json:"cached_tokens" binding:"gte=0"`
}

// EstimateResponse 费用估算结果
type EstimateResponse struct {
	Model string `json:"model"`
	cost.Breakdown
}

// RecommendLevelRequest 层级推荐请求
type RecommendLevelRequest struct {
	ChapterNumber string `json:"chapter_number,omitempty"`
	Title         string `json:"title" binding:"required"`
	Depth         int    `json:"depth,omitempty" binding:"gte=0"`
}

// RecommendLevelResponse 层级推荐结果，附带该层级的策略
type RecommendLevelResponse struct {
	Level    catalog.SectionLevel  `json:"level"`
	Strategy catalog.LevelStrategy `json:"strategy"`
}

// ModelListResponse 模型目录
type ModelListResponse struct {
	Models []catalog.ModelDescriptor `json:"models"`
}

// StrategyListResponse 策略表
type StrategyListResponse struct {
	Strategies   []catalog.LevelStrategy `json:"strategies"`
	DefaultLevel catalog.SectionLevel    `json:"default_level"`
}
