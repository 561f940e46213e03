package llm

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"proposal-ai-api/internal/config"
	"proposal-ai-api/internal/domain/catalog"
	"proposal-ai-api/internal/domain/service"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	Temperature     *float64              `json:"temperature,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

// GeminiProvider Gemini generateContent API 适配器。
// 缓存依赖隐式前缀缓存：可缓存的 system 块保持稳定顺序放在 systemInstruction 中。
type GeminiProvider struct {
	cfg       config.ProviderConfig
	transport *jsonTransport
	closeOnce sync.Once
}

// NewGeminiProvider 创建 Gemini 适配器
func NewGeminiProvider(cfg config.ProviderConfig) *GeminiProvider {
	return &GeminiProvider{
		cfg: cfg,
		transport: newJSONTransport(string(catalog.ProviderGoogle), cfg.BaseURL, cfg.Timeout, map[string]string{
			"x-goog-api-key": cfg.APIKey,
		}),
	}
}

func (p *GeminiProvider) Name() catalog.Provider {
	return catalog.ProviderGoogle
}

func (p *GeminiProvider) buildRequest(req service.ChatRequest) ([]byte, error) {
	var system []string
	body := geminiRequest{
		GenerationConfig: geminiGenerationConfig{MaxOutputTokens: req.MaxTokens},
	}
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case service.RoleSystem:
			system = append(system, m.Content)
		case service.RoleAssistant:
			body.Contents = append(body.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n")}}}
	}

	supportsThinking := catalog.SupportsThinking(req.Model)
	switch {
	case req.ThinkingBudget > 0 && supportsThinking:
		body.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: req.ThinkingBudget}
	default:
		t := req.Temperature
		body.GenerationConfig.Temperature = &t
		// 支持推理的模型默认会思考，预算为 0 时显式关闭
		if supportsThinking {
			body.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: 0}
		}
	}
	return json.Marshal(body)
}

func (p *GeminiProvider) path(model, method string) string {
	return "/v1beta/models/" + url.PathEscape(p.cfg.UpstreamModel(model)) + ":" + method
}

// Generate 同步调用
func (p *GeminiProvider) Generate(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error) {
	body, err := p.buildRequest(req)
	if err != nil {
		return nil, service.NewProviderError(string(catalog.ProviderGoogle), 0, "encode request", err)
	}
	payload, err := p.transport.postJSON(ctx, p.path(req.Model, "generateContent"), body)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(payload) {
		return nil, service.NewProviderError(string(catalog.ProviderGoogle), 0, "malformed response", nil)
	}

	doc := gjson.ParseBytes(payload)
	text := geminiText(doc)
	if err := geminiRejected(doc, text); err != nil {
		return nil, err
	}
	return &service.ChatResponse{
		Content: text,
		Model:   req.Model,
		Usage:   geminiUsage(doc.Get("usageMetadata")),
	}, nil
}

// geminiText 拼接首个候选的文本，跳过思考片段
func geminiText(doc gjson.Result) string {
	var sb strings.Builder
	for _, part := range doc.Get("candidates.0.content.parts").Array() {
		if part.Get("thought").Bool() {
			continue
		}
		sb.WriteString(part.Get("text").String())
	}
	return sb.String()
}

// geminiRejected 提示词被拦截，或候选没有文本且以 SAFETY、RECITATION 等原因结束。
// MAX_TOKENS 按正常截断处理。
func geminiRejected(doc gjson.Result, text string) error {
	if reason := doc.Get("promptFeedback.blockReason").String(); reason != "" {
		return service.NewProviderError(string(catalog.ProviderGoogle), 0, "prompt blocked: "+reason, nil)
	}
	reason := doc.Get("candidates.0.finishReason").String()
	if text == "" && reason != "" && reason != "STOP" && reason != "MAX_TOKENS" {
		return service.NewProviderError(string(catalog.ProviderGoogle), 0, "finish reason: "+reason, nil)
	}
	return nil
}

func geminiUsage(u gjson.Result) service.TokenUsage {
	return service.TokenUsage{
		InputTokens:    int(u.Get("promptTokenCount").Int()),
		OutputTokens:   int(u.Get("candidatesTokenCount").Int()),
		CachedTokens:   int(u.Get("cachedContentTokenCount").Int()),
		ThinkingTokens: int(u.Get("thoughtsTokenCount").Int()),
	}
}

// Stream 流式调用
func (p *GeminiProvider) Stream(ctx context.Context, req service.ChatRequest) (<-chan service.StreamChunk, error) {
	body, err := p.buildRequest(req)
	if err != nil {
		return nil, service.NewProviderError(string(catalog.ProviderGoogle), 0, "encode request", err)
	}
	resp, err := p.transport.post(ctx, p.path(req.Model, "streamGenerateContent")+"?alt=sse", body, true)
	if err != nil {
		return nil, err
	}
	return pumpSSE(ctx, string(catalog.ProviderGoogle), resp.Body, decodeGeminiEvent, true), nil
}

func decodeGeminiEvent(ev sseEvent, usage *service.TokenUsage) (string, bool, error) {
	doc := gjson.ParseBytes(ev.Data)
	if doc.Get("error").Exists() {
		return "", false, statusError(string(catalog.ProviderGoogle), int(doc.Get("error.code").Int()), ev.Data)
	}
	// usageMetadata 为累计值，以最后一次为准
	if u := doc.Get("usageMetadata"); u.Exists() {
		*usage = geminiUsage(u)
	}
	text := geminiText(doc)
	if err := geminiRejected(doc, text); err != nil {
		return "", false, err
	}
	return text, false, nil
}

// Close 释放连接池，可重复调用
func (p *GeminiProvider) Close() error {
	p.closeOnce.Do(p.transport.close)
	return nil
}
