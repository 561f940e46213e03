package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"proposal-ai-api/internal/config"
	"proposal-ai-api/internal/domain/catalog"
	"proposal-ai-api/internal/domain/service"
)

const (
	anthropicVersion      = "2023-06-01"
	anthropicMessagesPath = "/v1/messages"
)

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicTextBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicRequest struct {
	Model       string               `json:"model"`
	MaxTokens   int                  `json:"max_tokens"`
	System      []anthropicTextBlock `json:"system,omitempty"`
	Messages    []anthropicMessage   `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	Thinking    *anthropicThinking   `json:"thinking,omitempty"`
}

// AnthropicProvider Anthropic Messages API 适配器
type AnthropicProvider struct {
	cfg       config.ProviderConfig
	transport *jsonTransport
	closeOnce sync.Once
}

// NewAnthropicProvider 创建 Anthropic 适配器
func NewAnthropicProvider(cfg config.ProviderConfig) *AnthropicProvider {
	return &AnthropicProvider{
		cfg: cfg,
		transport: newJSONTransport(string(catalog.ProviderAnthropic), cfg.BaseURL, cfg.Timeout, map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": anthropicVersion,
		}),
	}
}

func (p *AnthropicProvider) Name() catalog.Provider {
	return catalog.ProviderAnthropic
}

func (p *AnthropicProvider) buildRequest(req service.ChatRequest) ([]byte, error) {
	body := anthropicRequest{
		Model:     p.cfg.UpstreamModel(req.Model),
		MaxTokens: req.MaxTokens,
	}
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		if m.Role == service.RoleSystem {
			block := anthropicTextBlock{Type: "text", Text: m.Content}
			if m.Cacheable {
				block.CacheControl = &anthropicCacheControl{Type: "ephemeral"}
			}
			body.System = append(body.System, block)
			continue
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	// 开启推理时不能同时设置 temperature，且 max_tokens 必须大于推理预算
	if req.ThinkingBudget > 0 && catalog.SupportsThinking(req.Model) {
		body.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: req.ThinkingBudget}
		if body.MaxTokens <= req.ThinkingBudget {
			body.MaxTokens += req.ThinkingBudget
		}
	} else {
		t := req.Temperature
		body.Temperature = &t
	}
	return json.Marshal(body)
}

// Generate 同步调用
func (p *AnthropicProvider) Generate(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error) {
	body, err := p.buildRequest(req)
	if err != nil {
		return nil, service.NewProviderError(string(catalog.ProviderAnthropic), 0, "encode request", err)
	}
	payload, err := p.transport.postJSON(ctx, anthropicMessagesPath, body)
	if err != nil {
		return nil, err
	}
	return parseAnthropicResponse(req.Model, payload)
}

func parseAnthropicResponse(model string, payload []byte) (*service.ChatResponse, error) {
	if !gjson.ValidBytes(payload) {
		return nil, service.NewProviderError(string(catalog.ProviderAnthropic), 0, "malformed response", nil)
	}
	doc := gjson.ParseBytes(payload)

	var sb strings.Builder
	for _, block := range doc.Get("content").Array() {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
	}

	return &service.ChatResponse{
		Content: sb.String(),
		Model:   model,
		Usage:   anthropicUsage(doc.Get("usage")),
	}, nil
}

// anthropicUsage input_tokens 不含缓存读写部分，这里合并为总输入。
// Anthropic 不单列思考 token，推理消耗已计入 output_tokens 并按输出价计费，
// 因此 ThinkingTokens 保持为 0，响应中的 thinking 块仅为摘要，不能用来反推。
func anthropicUsage(u gjson.Result) service.TokenUsage {
	cacheRead := int(u.Get("cache_read_input_tokens").Int())
	cacheWrite := int(u.Get("cache_creation_input_tokens").Int())
	return service.TokenUsage{
		InputTokens:  int(u.Get("input_tokens").Int()) + cacheRead + cacheWrite,
		OutputTokens: int(u.Get("output_tokens").Int()),
		CachedTokens: cacheRead,
	}
}

// Stream 流式调用
func (p *AnthropicProvider) Stream(ctx context.Context, req service.ChatRequest) (<-chan service.StreamChunk, error) {
	body, err := p.buildRequest(req)
	if err != nil {
		return nil, service.NewProviderError(string(catalog.ProviderAnthropic), 0, "encode request", err)
	}
	body, err = sjson.SetBytes(body, "stream", true)
	if err != nil {
		return nil, service.NewProviderError(string(catalog.ProviderAnthropic), 0, "encode request", err)
	}

	resp, err := p.transport.post(ctx, anthropicMessagesPath, body, true)
	if err != nil {
		return nil, err
	}
	return pumpSSE(ctx, string(catalog.ProviderAnthropic), resp.Body, decodeAnthropicEvent, false), nil
}

func decodeAnthropicEvent(ev sseEvent, usage *service.TokenUsage) (string, bool, error) {
	doc := gjson.ParseBytes(ev.Data)
	typ := doc.Get("type").String()
	if typ == "" {
		typ = ev.Name
	}

	switch typ {
	case "message_start":
		u := anthropicUsage(doc.Get("message.usage"))
		usage.InputTokens = u.InputTokens
		usage.CachedTokens = u.CachedTokens
		usage.OutputTokens = u.OutputTokens
	case "content_block_delta":
		if doc.Get("delta.type").String() == "text_delta" {
			return doc.Get("delta.text").String(), false, nil
		}
	case "message_delta":
		if out := int(doc.Get("usage.output_tokens").Int()); out > usage.OutputTokens {
			usage.OutputTokens = out
		}
	case "message_stop":
		return "", true, nil
	case "error":
		return "", false, statusError(string(catalog.ProviderAnthropic), 0, ev.Data)
	}
	return "", false, nil
}

// Close 释放连接池，可重复调用
func (p *AnthropicProvider) Close() error {
	p.closeOnce.Do(p.transport.close)
	return nil
}
