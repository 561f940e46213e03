package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"proposal-ai-api/internal/application/cost"
	"proposal-ai-api/internal/domain/catalog"
	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/pkg/logger"
	"proposal-ai-api/pkg/metrics"
	"proposal-ai-api/pkg/tracer"
)

// Orchestrator 生成编排器，单次调用内无共享可变状态
type Orchestrator struct {
	providers service.ProviderResolver
	budget    service.BudgetChecker
	ledger    service.UsageRecorder

	defaultMaxTokens int
	now              func() time.Time
}

// NewOrchestrator 创建生成编排器
func NewOrchestrator(providers service.ProviderResolver, budget service.BudgetChecker, ledger service.UsageRecorder, defaultMaxTokens int) *Orchestrator {
	if defaultMaxTokens <= 0 {
		defaultMaxTokens = DefaultMaxTokens
	}
	return &Orchestrator{
		providers:        providers,
		budget:           budget,
		ledger:           ledger,
		defaultMaxTokens: defaultMaxTokens,
		now:              time.Now,
	}
}

// plan 一次调用解析出的执行计划
type plan struct {
	level       catalog.SectionLevel
	primary     string
	fallback    string
	thinking    int
	temperature float64
	maxTokens   int
	messages    []service.Message
}

func (p plan) request(model string, thinking int) service.ChatRequest {
	return service.ChatRequest{
		Model:          model,
		Messages:       p.messages,
		MaxTokens:      p.maxTokens,
		Temperature:    p.temperature,
		ThinkingBudget: thinking,
	}
}

// served 实际完成调用的模型
type served struct {
	model          string
	fallbackFrom   string
	fallbackReason string
}

// Generate 生成章节内容
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Mode == "" {
		req.Mode = catalog.ModeGenerate
	}
	return o.run(ctx, req)
}

// Rewrite 改写内容，仅用量记录的操作类型不同
func (o *Orchestrator) Rewrite(ctx context.Context, req Request) (*Result, error) {
	req.Mode = catalog.ModeRewrite
	return o.run(ctx, req)
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "generation."+string(req.Mode), trace.WithAttributes(
		attribute.String("project.id", req.ProjectID),
		attribute.String("section.level", req.Level),
	))
	defer span.End()
	ctx = logger.WithContext(ctx, logger.ProjectIDKey, req.ProjectID)
	start := o.now()

	if err := o.gate(ctx, req.ProjectID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	p := o.plan(req)
	ctx = service.WithLevel(service.WithAction(ctx, string(req.Mode)), string(p.level))

	resp, by, err := o.complete(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res := o.settle(ctx, usageContext{
		userID:    req.UserID,
		projectID: req.ProjectID,
		sectionID: req.SectionID,
		action:    string(req.Mode),
		level:     string(p.level),
	}, by, resp.Usage, nil)
	res.Content = resp.Content
	res.ElapsedMS = o.now().Sub(start).Milliseconds()
	span.SetAttributes(attribute.String("llm.model", res.ModelUsed), attribute.Float64("llm.cost_usd", res.Cost.TotalCost))
	return res, nil
}

// gate 预算门禁：剩余预算不足时直接拒绝，不发起远程调用
func (o *Orchestrator) gate(ctx context.Context, projectID string) error {
	status, err := o.budget.Check(ctx, projectID)
	if err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	if !status.Allowed || status.Remaining <= 0 {
		metrics.BudgetRejectionsTotal.Inc()
		logger.Warn(ctx, "generation rejected by budget gate",
			"used", status.Used,
			"limit", status.Limit,
		)
		return &service.BudgetExhaustedError{ProjectID: projectID, Status: *status}
	}
	return nil
}

func (o *Orchestrator) plan(req Request) plan {
	s := catalog.Resolve(req.Level)
	p := plan{
		level:       s.Level,
		primary:     s.PrimaryModel,
		fallback:    s.FallbackModel,
		thinking:    s.ThinkingBudget,
		temperature: s.Temperature,
		maxTokens:   req.MaxTokens,
	}
	if m := strings.TrimSpace(req.ModelOverride); m != "" {
		p.primary = m
	}
	if req.ThinkingBudget != nil {
		p.thinking = max(*req.ThinkingBudget, 0)
	}
	if req.Temperature != nil {
		p.temperature = *req.Temperature
	}
	if p.maxTokens <= 0 {
		p.maxTokens = o.defaultMaxTokens
	}
	p.messages = buildMessages(s.SystemPrompt, req)
	return p
}

// complete 主模型调用失败时，以推理预算 0 对备用模型重试一次
func (o *Orchestrator) complete(ctx context.Context, p plan) (*service.ChatResponse, served, error) {
	resp, err := o.attempt(ctx, p.request(p.primary, p.thinking))
	if err == nil {
		return resp, served{model: p.primary}, nil
	}
	if !o.canFallback(ctx, p, err) {
		return nil, served{}, err
	}

	o.noteFallback(ctx, p, err)
	resp, fbErr := o.attempt(ctx, p.request(p.fallback, 0))
	if fbErr != nil {
		return nil, served{}, fbErr
	}
	return resp, served{model: p.fallback, fallbackFrom: p.primary, fallbackReason: err.Error()}, nil
}

func (o *Orchestrator) canFallback(ctx context.Context, p plan, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if _, ok := service.AsProviderError(err); !ok {
		return false
	}
	return p.fallback != "" && p.fallback != p.primary
}

func (o *Orchestrator) noteFallback(ctx context.Context, p plan, err error) {
	metrics.LLMFallbackTotal.WithLabelValues(p.primary, p.fallback).Inc()
	logger.Warn(ctx, "primary model failed, falling back",
		"primary", p.primary,
		"fallback", p.fallback,
		"rate_limited", service.IsRateLimit(err),
		"error", err.Error(),
	)
}

// attempt 单次同步调用
func (o *Orchestrator) attempt(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error) {
	provider, err := o.providers.ForModel(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	name := string(provider.Name())

	ctx, span := tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.provider", name),
		attribute.String("llm.model", req.Model),
	))
	defer span.End()

	start := time.Now()
	resp, err := provider.Generate(ctx, req)
	metrics.LLMCallDuration.WithLabelValues(name, req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(name, req.Model, callStatus(err)).Inc()
		span.RecordError(err)
		return nil, err
	}
	metrics.LLMCallTotal.WithLabelValues(name, req.Model, "success").Inc()
	return resp, nil
}

func callStatus(err error) string {
	if service.IsRateLimit(err) {
		return "rate_limited"
	}
	return "error"
}

// usageContext 写入用量记录所需的调用方信息
type usageContext struct {
	userID    string
	projectID string
	sectionID string
	action    string
	level     string
}

// settle 计费并写入用量记录，返回不含正文的结果
func (o *Orchestrator) settle(ctx context.Context, uc usageContext, by served, usage service.TokenUsage, extra map[string]any) *Result {
	breakdown := cost.Estimate(by.model, usage.InputTokens, usage.OutputTokens, usage.CachedTokens)
	provider, _ := catalog.ProviderOf(by.model)
	observeUsage(string(provider), by.model, usage, breakdown)

	meta := map[string]any{
		"section_level":   uc.level,
		"cached_tokens":   usage.CachedTokens,
		"thinking_tokens": usage.ThinkingTokens,
		"provider":        string(provider),
	}
	if by.fallbackFrom != "" {
		meta["fallback_from"] = by.fallbackFrom
		meta["fallback_reason"] = by.fallbackReason
	}
	for k, v := range extra {
		meta[k] = v
	}

	o.record(ctx, service.UsageRecord{
		UserID:       uc.userID,
		ProjectID:    uc.projectID,
		SectionID:    uc.sectionID,
		Model:        by.model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      breakdown.TotalCost,
		ActionKind:   uc.action,
		Metadata:     meta,
	})

	return &Result{
		ModelUsed:      by.model,
		InputTokens:    usage.InputTokens,
		OutputTokens:   usage.OutputTokens,
		CachedTokens:   usage.CachedTokens,
		ThinkingTokens: usage.ThinkingTokens,
		Cost:           breakdown,
		SectionLevel:   uc.level,
		CacheHit:       usage.CachedTokens > 0,
		FallbackFrom:   by.fallbackFrom,
	}
}

// record 写入用量流水；失败只记录日志，不影响已得到的生成结果
func (o *Orchestrator) record(ctx context.Context, rec service.UsageRecord) {
	// 门禁检查可能已过期，这里重新查询
	status, err := o.budget.Check(ctx, rec.ProjectID)
	if err != nil {
		logger.Warn(ctx, "post-call budget check failed", "error", err.Error())
	} else {
		rec.BudgetExceeded = !status.Allowed
	}

	if err := o.ledger.Record(ctx, rec); err != nil {
		metrics.UsageRecordFailures.Inc()
		logger.Error(ctx, "failed to record usage", err,
			"model", rec.Model,
			"action", rec.ActionKind,
		)
	}
}

func observeUsage(provider, model string, u service.TokenUsage, b cost.Breakdown) {
	metrics.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(u.InputTokens))
	metrics.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(u.OutputTokens))
	if u.CachedTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(provider, model, "cached").Add(float64(u.CachedTokens))
	}
	if u.ThinkingTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(provider, model, "thinking").Add(float64(u.ThinkingTokens))
	}
	metrics.LLMCostUSD.WithLabelValues(model).Add(b.TotalCost)
}
