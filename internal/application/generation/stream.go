package generation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"proposal-ai-api/internal/domain/catalog"
	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/pkg/logger"
	"proposal-ai-api/pkg/metrics"
	"proposal-ai-api/pkg/tracer"
)

// GenerateStream 流式生成。预算门禁与首次建连同步执行，失败直接返回错误；
// 之后依次产出文本片段，最后恰好一个 Done 或 Err 事件。
// 备用模型只在首个片段之前切换。ctx 取消后 channel 关闭，不写用量记录。
// 调用方不再读取 channel 时必须取消 ctx，否则转发 goroutine 会一直阻塞。
func (o *Orchestrator) GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if req.Mode == "" {
		req.Mode = catalog.ModeGenerate
	}
	ctx, span := tracer.Start(ctx, "generation.stream", trace.WithAttributes(
		attribute.String("project.id", req.ProjectID),
		attribute.String("section.level", req.Level),
	))
	ctx = logger.WithContext(ctx, logger.ProjectIDKey, req.ProjectID)
	start := o.now()

	if err := o.gate(ctx, req.ProjectID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	p := o.plan(req)
	ctx = service.WithLevel(service.WithAction(ctx, string(req.Mode)), string(p.level))

	s := &streamRun{o: o, p: p, req: req, start: start, span: span}
	chunks, err := s.open(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	out := make(chan StreamEvent)
	go s.forward(ctx, chunks, out)
	return out, nil
}

// streamRun 单次流式调用的状态，只在转发 goroutine 内修改
type streamRun struct {
	o     *Orchestrator
	p     plan
	req   Request
	start time.Time
	span  trace.Span

	by       served
	provider string
	fellBack bool
}

// open 打开主模型流，建连失败时切换备用模型
func (s *streamRun) open(ctx context.Context) (<-chan service.StreamChunk, error) {
	chunks, err := s.dial(ctx, s.p.primary, s.p.thinking)
	if err == nil {
		s.by = served{model: s.p.primary}
		return chunks, nil
	}
	return s.switchToFallback(ctx, err)
}

func (s *streamRun) switchToFallback(ctx context.Context, cause error) (<-chan service.StreamChunk, error) {
	if s.fellBack || !s.o.canFallback(ctx, s.p, cause) {
		return nil, cause
	}
	s.fellBack = true
	s.o.noteFallback(ctx, s.p, cause)
	chunks, err := s.dial(ctx, s.p.fallback, 0)
	if err != nil {
		return nil, err
	}
	s.by = served{model: s.p.fallback, fallbackFrom: s.p.primary, fallbackReason: cause.Error()}
	return chunks, nil
}

func (s *streamRun) dial(ctx context.Context, model string, thinking int) (<-chan service.StreamChunk, error) {
	provider, err := s.o.providers.ForModel(ctx, model)
	if err != nil {
		return nil, err
	}
	name := string(provider.Name())
	chunks, err := provider.Stream(ctx, s.p.request(model, thinking))
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(name, model, callStatus(err)).Inc()
		return nil, err
	}
	s.provider = name
	return chunks, nil
}

func (s *streamRun) forward(ctx context.Context, chunks <-chan service.StreamChunk, out chan<- StreamEvent) {
	defer close(out)
	defer s.span.End()

	emit := func(ev StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	fragments := 0
	for {
		var (
			chunk service.StreamChunk
			ok    bool
		)
		select {
		case chunk, ok = <-chunks:
		case <-ctx.Done():
			return
		}
		if !ok {
			// 适配器未发送终止片段就关闭了 channel，只可能是 ctx 已取消
			return
		}

		switch {
		case chunk.Err != nil:
			if fragments == 0 {
				next, err := s.switchToFallback(ctx, chunk.Err)
				if err == nil {
					chunks = next
					continue
				}
			}
			s.fail(ctx, chunk.Err)
			emit(StreamEvent{Err: chunk.Err})
			return

		case chunk.Done:
			if ctx.Err() != nil {
				return
			}
			res := s.finish(ctx, chunk.Usage)
			emit(StreamEvent{Done: true, Result: res})
			return

		case chunk.Content != "":
			fragments++
			if !emit(StreamEvent{Content: chunk.Content}) {
				return
			}
		}
	}
}

func (s *streamRun) fail(ctx context.Context, err error) {
	metrics.LLMCallTotal.WithLabelValues(s.provider, s.by.model, callStatus(err)).Inc()
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	logger.Warn(ctx, "stream generation failed", "model", s.by.model, "error", err.Error())
}

// finish 流正常结束：按最终用量计费并写入一条用量记录
func (s *streamRun) finish(ctx context.Context, usage *service.TokenUsage) *Result {
	var u service.TokenUsage
	if usage != nil {
		u = *usage
	}
	metrics.LLMCallTotal.WithLabelValues(s.provider, s.by.model, "success").Inc()
	metrics.LLMCallDuration.WithLabelValues(s.provider, s.by.model).Observe(time.Since(s.start).Seconds())

	res := s.o.settle(ctx, usageContext{
		userID:    s.req.UserID,
		projectID: s.req.ProjectID,
		sectionID: s.req.SectionID,
		action:    string(s.req.Mode),
		level:     string(s.p.level),
	}, s.by, u, map[string]any{"stream": true})
	res.ElapsedMS = s.o.now().Sub(s.start).Milliseconds()
	s.span.SetAttributes(attribute.String("llm.model", res.ModelUsed))
	return res
}
