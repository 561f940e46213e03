package generation

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"proposal-ai-api/internal/application/cost"
	"proposal-ai-api/internal/domain/catalog"
	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/pkg/logger"
	"proposal-ai-api/pkg/tracer"
)

// Audit 对照招标需求稽核公司范本
func (o *Orchestrator) Audit(ctx context.Context, req AuditRequest) (*AuditResult, error) {
	if strings.TrimSpace(req.AuditType) == "" {
		req.AuditType = DefaultAuditType
	}
	ctx, span := tracer.Start(ctx, "generation.audit", trace.WithAttributes(
		attribute.String("project.id", req.ProjectID),
		attribute.String("audit.type", req.AuditType),
	))
	defer span.End()
	ctx = logger.WithContext(ctx, logger.ProjectIDKey, req.ProjectID)

	if err := o.gate(ctx, req.ProjectID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	primary := auditModel
	if m := strings.TrimSpace(req.ModelOverride); m != "" {
		primary = m
	}
	p := plan{
		level:       catalog.LevelCompliance,
		primary:     primary,
		fallback:    auditFallback,
		temperature: auditTemperature,
		maxTokens:   auditMaxTokens,
		messages: []service.Message{
			{Role: service.RoleSystem, Content: catalog.SystemPrompt(catalog.PromptAudit, catalog.ProviderAnthropic), Cacheable: true},
			{Role: service.RoleUser, Content: auditUserPrompt(req)},
		},
	}
	ctx = service.WithLevel(service.WithAction(ctx, string(catalog.ModeAudit)), string(p.level))

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
		action:    string(catalog.ModeAudit),
		level:     string(p.level),
	}, by, resp.Usage, map[string]any{"audit_type": req.AuditType})

	out := &AuditResult{
		NeedsModification: !strings.Contains(resp.Content, NoChangeSentinel),
		ModelUsed:         res.ModelUsed,
		InputTokens:       res.InputTokens,
		OutputTokens:      res.OutputTokens,
		CachedTokens:      res.CachedTokens,
		Cost:              res.Cost,
		FallbackFrom:      res.FallbackFrom,
	}
	if out.NeedsModification {
		out.ModifiedContent = resp.Content
	}
	return out, nil
}

// EstimateCost 纯计算，无副作用
func (o *Orchestrator) EstimateCost(model string, inputTokens, outputTokens, cachedTokens int) cost.Breakdown {
	return cost.Estimate(model, inputTokens, outputTokens, cachedTokens)
}

// ListModels 模型目录
func (o *Orchestrator) ListModels() []catalog.ModelDescriptor {
	return catalog.Models()
}

// ListStrategies 层级策略表
func (o *Orchestrator) ListStrategies() []catalog.LevelStrategy {
	return catalog.Strategies()
}

// RecommendLevel 按章节编号、标题与深度推荐层级
func (o *Orchestrator) RecommendLevel(chapterNumber, title string, depth int) catalog.SectionLevel {
	return catalog.RecommendLevel(chapterNumber, title, depth)
}
