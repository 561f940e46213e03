package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"proposal-ai-api/internal/config"
	"proposal-ai-api/internal/domain/catalog"
	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/pkg/metrics"
)

const openAIDefaultModel = "gpt-4o-mini"

// OpenAIProvider 基于 Eino ChatModel 的 OpenAI 适配器。
// OpenAI 自动缓存不需要请求侧标记，命中数在 prompt_tokens_details.cached_tokens 中返回。
type OpenAIProvider struct {
	cfg   config.ProviderConfig
	model model.BaseChatModel
}

// NewOpenAIProvider 创建 OpenAI 适配器
func NewOpenAIProvider(ctx context.Context, cfg config.ProviderConfig) (*OpenAIProvider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.UpstreamModel(openAIDefaultModel),
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for openai: %w", err)
	}
	return newOpenAIProviderWithModel(cfg, cm), nil
}

func newOpenAIProviderWithModel(cfg config.ProviderConfig, cm model.BaseChatModel) *OpenAIProvider {
	return &OpenAIProvider{cfg: cfg, model: cm}
}

func (p *OpenAIProvider) Name() catalog.Provider {
	return catalog.ProviderOpenAI
}

func (p *OpenAIProvider) toSchema(req service.ChatRequest) ([]*schema.Message, []model.Option) {
	msgs := make([]*schema.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case service.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		case service.RoleAssistant:
			msgs = append(msgs, &schema.Message{Role: schema.Assistant, Content: m.Content})
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}

	opts := []model.Option{
		model.WithModel(p.cfg.UpstreamModel(req.Model)),
		model.WithTemperature(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	return msgs, opts
}

// Generate 同步调用
func (p *OpenAIProvider) Generate(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error) {
	msgs, opts := p.toSchema(req)
	out, err := p.model.Generate(withEinoRunInfo(ctx), msgs, opts...)
	if err != nil {
		return nil, wrapError(string(catalog.ProviderOpenAI), err)
	}
	if out == nil {
		return nil, service.NewProviderError(string(catalog.ProviderOpenAI), 0, "empty response", nil)
	}
	return &service.ChatResponse{
		Content: out.Content,
		Model:   req.Model,
		Usage:   openAIUsage(out),
	}, nil
}

func openAIUsage(m *schema.Message) service.TokenUsage {
	if m == nil || m.ResponseMeta == nil || m.ResponseMeta.Usage == nil {
		return service.TokenUsage{}
	}
	u := m.ResponseMeta.Usage
	return service.TokenUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		CachedTokens: u.PromptTokenDetails.CachedTokens,
	}
}

// Stream 流式调用
func (p *OpenAIProvider) Stream(ctx context.Context, req service.ChatRequest) (<-chan service.StreamChunk, error) {
	msgs, opts := p.toSchema(req)
	sr, err := p.model.Stream(withEinoRunInfo(ctx), msgs, opts...)
	if err != nil {
		return nil, wrapError(string(catalog.ProviderOpenAI), err)
	}

	ch := make(chan service.StreamChunk)
	go func() {
		defer close(ch)
		defer sr.Close()

		send := func(c service.StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage service.TokenUsage
		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				u := usage
				send(service.StreamChunk{Done: true, Usage: &u})
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					send(service.StreamChunk{Err: wrapError(string(catalog.ProviderOpenAI), err)})
				}
				return
			}
			if u := openAIUsage(msg); u.InputTokens > 0 || u.OutputTokens > 0 {
				usage = u
			}
			if msg != nil && msg.Content != "" {
				metrics.LLMStreamFragments.WithLabelValues(string(catalog.ProviderOpenAI)).Inc()
				if !send(service.StreamChunk{Content: msg.Content}) {
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close Eino ChatModel 无需显式释放
func (p *OpenAIProvider) Close() error {
	return nil
}
