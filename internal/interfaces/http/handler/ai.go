// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"proposal-ai-api/internal/application/cost"
	"proposal-ai-api/internal/application/generation"
	"proposal-ai-api/internal/domain/catalog"
	"proposal-ai-api/internal/interfaces/http/dto"
	"proposal-ai-api/internal/interfaces/http/middleware"
)

var errInvalidMode = errors.New("mode must be one of generate, rewrite, summarize, expand")

// Generator 编排层能力
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
	GenerateStream(ctx context.Context, req generation.Request) (<-chan generation.StreamEvent, error)
	Audit(ctx context.Context, req generation.AuditRequest) (*generation.AuditResult, error)
	Rewrite(ctx context.Context, req generation.Request) (*generation.Result, error)
	EstimateCost(model string, inputTokens, outputTokens, cachedTokens int) cost.Breakdown
	ListModels() []catalog.ModelDescriptor
	ListStrategies() []catalog.LevelStrategy
	RecommendLevel(chapterNumber, title string, depth int) catalog.SectionLevel
}

// AIHandler 生成类接口处理器
type AIHandler struct {
	gen Generator
}

// NewAIHandler 创建生成处理器
func NewAIHandler(gen Generator) *AIHandler {
	return &AIHandler{gen: gen}
}

func (h *AIHandler) bindGenerate(c *gin.Context) (generation.Request, bool) {
	var body dto.GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return generation.Request{}, false
	}
	req, ok := body.ToGeneration(middleware.GetUserIDFromGin(c))
	if !ok {
		badRequest(c, errInvalidMode)
		return generation.Request{}, false
	}
	return req, true
}

// Generate 生成章节内容
// @Summary 生成章节内容
// @Tags AI
// @Accept json
// @Produce json
// @Param body body dto.GenerateRequest true "生成参数"
// @Success 200 {object} dto.Response[dto.GenerateResponse]
// @Failure 402 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/ai/generate [post]
func (h *AIHandler) Generate(c *gin.Context) {
	req, ok := h.bindGenerate(c)
	if !ok {
		return
	}
	res, err := h.gen.Generate(c.Request.Context(), req)
	if err != nil {
		respondError(c, "generate", err)
		return
	}
	dto.Success(c, dto.ToGenerateResponse(res))
}

// Rewrite 改写章节内容
// @Summary 改写章节内容
// @Tags AI
// @Accept json
// @Produce json
// @Param body body dto.GenerateRequest true "改写参数"
// @Success 200 {object} dto.Response[dto.GenerateResponse]
// @Router /v1/ai/rewrite [post]
func (h *AIHandler) Rewrite(c *gin.Context) {
	req, ok := h.bindGenerate(c)
	if !ok {
		return
	}
	res, err := h.gen.Rewrite(c.Request.Context(), req)
	if err != nil {
		respondError(c, "rewrite", err)
		return
	}
	dto.Success(c, dto.ToGenerateResponse(res))
}

// GenerateStream 流式生成章节内容
// @Summary 流式生成章节内容
// @Description 以 SSE 推送 message 片段，最后一个事件为 done 或 error
// @Tags AI
// @Accept json
// @Produce text/event-stream
// @Param body body dto.GenerateRequest true "生成参数"
// @Success 200 "SSE stream"
// @Router /v1/ai/generate/stream [post]
func (h *AIHandler) GenerateStream(c *gin.Context) {
	req, ok := h.bindGenerate(c)
	if !ok {
		return
	}
	// 停止读取 events 前必须取消 ctx，否则上游 goroutine 会阻塞在发送上
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	events, err := h.gen.GenerateStream(ctx, req)
	if err != nil {
		// 首次建连前的失败仍以普通 JSON 错误返回
		respondError(c, "generate stream", err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			switch {
			case ev.Err != nil:
				appErr, _ := classify(ev.Err)
				c.SSEvent("error", gin.H{"error": appErr.Message, "error_code": string(appErr.Code)})
				return false
			case ev.Done:
				payload := gin.H{"status": "complete"}
				if ev.Result != nil {
					payload["model_used"] = ev.Result.ModelUsed
					payload["input_tokens"] = ev.Result.InputTokens
					payload["output_tokens"] = ev.Result.OutputTokens
					payload["cost_usd"] = ev.Result.Cost.TotalCost
					if ev.Result.FallbackFrom != "" {
						payload["fallback_from"] = ev.Result.FallbackFrom
					}
				}
				c.SSEvent("done", payload)
				return false
			default:
				c.SSEvent("message", gin.H{"content": ev.Content})
				return true
			}
		}
	})
}

// Audit 合规稽核
// @Summary 合规稽核
// @Tags AI
// @Accept json
// @Produce json
// @Param body body dto.AuditRequest true "稽核参数"
// @Success 200 {object} dto.Response[dto.AuditResponse]
// @Router /v1/ai/audit [post]
func (h *AIHandler) Audit(c *gin.Context) {
	var body dto.AuditRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.gen.Audit(c.Request.Context(), body.ToAudit(middleware.GetUserIDFromGin(c)))
	if err != nil {
		respondError(c, "audit", err)
		return
	}
	dto.Success(c, dto.AuditResponse{Success: true, AuditResult: res})
}

// Estimate 费用估算，不调用模型
// @Summary 费用估算
// @Tags AI
// @Accept json
// @Produce json
// @Param body body dto.EstimateRequest true "token 数"
// @Success 200 {object} dto.Response[dto.EstimateResponse]
// @Router /v1/ai/estimate [post]
func (h *AIHandler) Estimate(c *gin.Context) {
	var body dto.EstimateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	b := h.gen.EstimateCost(body.Model, body.InputTokens, body.OutputTokens, body.CachedTokens)
	dto.Success(c, dto.EstimateResponse{Model: body.Model, Breakdown: b})
}

// ListModels 模型目录
// @Summary 模型目录
// @Tags AI
// @Produce json
// @Success 200 {object} dto.Response[dto.ModelListResponse]
// @Router /v1/ai/models [get]
func (h *AIHandler) ListModels(c *gin.Context) {
	dto.Success(c, dto.ModelListResponse{Models: h.gen.ListModels()})
}

// ListStrategies 层级策略表
// @Summary 层级策略表
// @Tags AI
// @Produce json
// @Success 200 {object} dto.Response[dto.StrategyListResponse]
// @Router /v1/ai/strategies [get]
func (h *AIHandler) ListStrategies(c *gin.Context) {
	dto.Success(c, dto.StrategyListResponse{
		Strategies:   h.gen.ListStrategies(),
		DefaultLevel: catalog.DefaultLevel,
	})
}

// RecommendLevel 根据章节编号与标题推荐层级
// @Summary 推荐章节层级
// @Tags AI
// @Accept json
// @Produce json
// @Param body body dto.RecommendLevelRequest true "章节信息"
// @Success 200 {object} dto.Response[dto.RecommendLevelResponse]
// @Router /v1/ai/recommend-level [post]
func (h *AIHandler) RecommendLevel(c *gin.Context) {
	var body dto.RecommendLevelRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	level := h.gen.RecommendLevel(body.ChapterNumber, body.Title, body.Depth)
	resp := dto.RecommendLevelResponse{Level: level}
	for _, s := range h.gen.ListStrategies() {
		if s.Level == level {
			resp.Strategy = s
			break
		}
	}
	dto.Success(c, resp)
}
