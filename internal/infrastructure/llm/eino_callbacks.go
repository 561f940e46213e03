package llm

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"proposal-ai-api/pkg/logger"
)

var einoCallbacksOnce sync.Once

// startTimeKey 调用开始时间
type startTimeKey struct{}

// InstallEinoCallbacks 注册 Eino 全局 ChatModel 回调（进程级一次）。
// 调用计数与耗时指标由编排层统一上报，这里只补充组件级 span 与调试日志。
func InstallEinoCallbacks() {
	einoCallbacksOnce.Do(func() {
		handler := cbtemplate.NewHandlerHelper().
			ChatModel(newChatModelCallbackHandler()).
			Handler()
		einocb.AppendGlobalHandlers(handler)
	})
}

// withEinoRunInfo 为独立调用的 ChatModel 初始化回调上下文
func withEinoRunInfo(ctx context.Context) context.Context {
	return einocb.InitCallbacks(ctx, &einocb.RunInfo{
		Name:      "openai",
		Type:      "OpenAI",
		Component: components.ComponentOfChatModel,
	})
}

func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := []attribute.KeyValue{attribute.String("llm.model", modelNameFromInput(input))}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}
			ctx, _ = otel.Tracer("eino").Start(ctx, "eino.chat_model", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			finishChatModelSpan(ctx, modelNameFromOutput(output), tokenUsageOf(output))
			return ctx
		},

		OnEndWithStreamOutput: func(ctx context.Context, _ *einocb.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
			// 回调拿到的是流的副本，必须读完并关闭
			go func() {
				defer output.Close()
				var (
					name  string
					usage *model.TokenUsage
				)
				for {
					chunk, err := output.Recv()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						failChatModelSpan(ctx, err)
						return
					}
					if n := modelNameFromOutput(chunk); n != "" {
						name = n
					}
					if u := tokenUsageOf(chunk); u != nil {
						usage = u
					}
				}
				finishChatModelSpan(ctx, name, usage)
			}()
			return ctx
		},

		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			failChatModelSpan(ctx, err)
			return ctx
		},
	}
}

func finishChatModelSpan(ctx context.Context, modelName string, usage *model.TokenUsage) {
	span := trace.SpanFromContext(ctx)
	args := []any{"model", modelName, "elapsed_ms", elapsed(ctx).Milliseconds()}
	if usage != nil {
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", usage.PromptTokens),
			attribute.Int("llm.completion_tokens", usage.CompletionTokens),
		)
		args = append(args, "prompt_tokens", usage.PromptTokens, "completion_tokens", usage.CompletionTokens)
	}
	span.End()
	logger.Debug(ctx, "eino chat model finished", args...)
}

func failChatModelSpan(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
	logger.Debug(ctx, "eino chat model failed", "error", err.Error(), "elapsed_ms", elapsed(ctx).Milliseconds())
}

func elapsed(ctx context.Context) time.Duration {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start)
}

func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}

func tokenUsageOf(out *model.CallbackOutput) *model.TokenUsage {
	if out == nil {
		return nil
	}
	return out.TokenUsage
}
