package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"proposal-ai-api/internal/config"
	"proposal-ai-api/internal/domain/service"
)

func newAnthropicTestServer(t *testing.T, handler func(w http.ResponseWriter, body gjson.Result)) (*AnthropicProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, anthropicMessagesPath, r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		handler(w, gjson.ParseBytes(raw))
	}))
	t.Cleanup(srv.Close)

	p := NewAnthropicProvider(config.ProviderConfig{
		APIKey:       "sk-test",
		BaseURL:      srv.URL,
		Timeout:      5 * time.Second,
		ModelAliases: []config.ModelAlias{{ID: "claude-4.5-sonnet", Upstream: "claude-sonnet-4-5"}},
	})
	t.Cleanup(func() { _ = p.Close() })
	return p, srv
}

func cachedRequest(model string, thinking int) service.ChatRequest {
	return service.ChatRequest{
		Model: model,
		Messages: []service.Message{
			{Role: service.RoleSystem, Content: "sys", Cacheable: true},
			{Role: service.RoleSystem, Content: "## 招標文件摘要\nctx", Cacheable: true},
			{Role: service.RoleUser, Content: "write"},
		},
		MaxTokens:      4096,
		Temperature:    0.7,
		ThinkingBudget: thinking,
	}
}

func TestAnthropic_GenerateWithThinkingAndCaching(t *testing.T) {
	p, _ := newAnthropicTestServer(t, func(w http.ResponseWriter, body gjson.Result) {
		assert.Equal(t, "claude-sonnet-4-5", body.Get("model").String())
		assert.Equal(t, "enabled", body.Get("thinking.type").String())
		assert.Equal(t, int64(2000), body.Get("thinking.budget_tokens").Int())
		assert.False(t, body.Get("temperature").Exists())
		assert.Equal(t, "ephemeral", body.Get("system.0.cache_control.type").String())
		assert.Equal(t, "ephemeral", body.Get("system.1.cache_control.type").String())
		assert.Equal(t, "user", body.Get("messages.0.role").String())
		assert.Equal(t, int64(1), body.Get("messages.#").Int())
		assert.False(t, body.Get("stream").Exists())

		fmt.Fprint(w, `{
			"model":"claude-sonnet-4-5",
			"content":[{"type":"thinking","thinking":"..."},{"type":"text","text":"Hello "},{"type":"text","text":"world"}],
			"usage":{"input_tokens":400,"output_tokens":200,"cache_read_input_tokens":100,"cache_creation_input_tokens":0}
		}`)
	})

	resp, err := p.Generate(context.Background(), cachedRequest("claude-4.5-sonnet", 2000))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, "claude-4.5-sonnet", resp.Model)
	assert.Equal(t, service.TokenUsage{InputTokens: 500, OutputTokens: 200, CachedTokens: 100}, resp.Usage)
	// 推理消耗包含在 output_tokens 中
	assert.Zero(t, resp.Usage.ThinkingTokens)
}

func TestAnthropic_ThinkingIgnoredForUnsupportedModel(t *testing.T) {
	p, _ := newAnthropicTestServer(t, func(w http.ResponseWriter, body gjson.Result) {
		assert.False(t, body.Get("thinking").Exists())
		assert.Equal(t, 0.7, body.Get("temperature").Float())
		fmt.Fprint(w, `{"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
	})

	_, err := p.Generate(context.Background(), cachedRequest("claude-3.5-sonnet", 2000))
	require.NoError(t, err)
}

func TestAnthropic_RateLimit(t *testing.T) {
	p, _ := newAnthropicTestServer(t, func(w http.ResponseWriter, _ gjson.Result) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests exceeded"}}`)
	})

	_, err := p.Generate(context.Background(), cachedRequest("claude-3.5-sonnet", 0))
	require.Error(t, err)
	assert.True(t, service.IsRateLimit(err))
	pe, _ := service.AsProviderError(err)
	assert.Equal(t, "anthropic", pe.Provider)
	assert.Equal(t, 429, pe.StatusCode)
}

func TestAnthropic_Stream(t *testing.T) {
	p, _ := newAnthropicTestServer(t, func(w http.ResponseWriter, body gjson.Result) {
		assert.True(t, body.Get("stream").Bool())
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`event: message_start` + "\n" + `data: {"type":"message_start","message":{"usage":{"input_tokens":20,"cache_read_input_tokens":5,"output_tokens":1}}}`,
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}`,
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"A"}}`,
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"B"}}`,
			`event: message_delta` + "\n" + `data: {"type":"message_delta","usage":{"output_tokens":12}}`,
			`event: message_stop` + "\n" + `data: {"type":"message_stop"}`,
		}
		for _, ev := range events {
			fmt.Fprint(w, ev+"\n\n")
			w.(http.Flusher).Flush()
		}
	})

	ch, err := p.Stream(context.Background(), cachedRequest("claude-3.5-sonnet", 0))
	require.NoError(t, err)

	var texts []string
	var final *service.TokenUsage
	for c := range ch {
		require.NoError(t, c.Err)
		if c.Done {
			final = c.Usage
			continue
		}
		texts = append(texts, c.Content)
	}
	assert.Equal(t, []string{"A", "B"}, texts)
	require.NotNil(t, final)
	assert.Equal(t, service.TokenUsage{InputTokens: 25, OutputTokens: 12, CachedTokens: 5}, *final)
}

func TestAnthropic_StreamErrorEvent(t *testing.T) {
	p, _ := newAnthropicTestServer(t, func(w http.ResponseWriter, _ gjson.Result) {
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	})

	ch, err := p.Stream(context.Background(), cachedRequest("claude-3.5-sonnet", 0))
	require.NoError(t, err)

	var gotErr error
	for c := range ch {
		if c.Err != nil {
			gotErr = c.Err
		}
	}
	require.Error(t, gotErr)
	assert.False(t, service.IsRateLimit(gotErr))
	assert.Contains(t, gotErr.Error(), "Overloaded")
}

func TestAnthropic_StreamTruncatedBeforeStop(t *testing.T) {
	p, _ := newAnthropicTestServer(t, func(w http.ResponseWriter, _ gjson.Result) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":20,\"output_tokens\":1}}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"partial\"}}\n\n")
	})

	ch, err := p.Stream(context.Background(), cachedRequest("claude-3.5-sonnet", 0))
	require.NoError(t, err)

	var (
		texts  []string
		gotErr error
		done   bool
	)
	for c := range ch {
		switch {
		case c.Err != nil:
			gotErr = c.Err
		case c.Done:
			done = true
		default:
			texts = append(texts, c.Content)
		}
	}
	assert.Equal(t, []string{"partial"}, texts)
	assert.False(t, done)
	require.Error(t, gotErr)
	pe, ok := service.AsProviderError(gotErr)
	require.True(t, ok)
	assert.Equal(t, "anthropic", pe.Provider)
	assert.ErrorIs(t, gotErr, errStreamTruncated)
}

func TestAnthropic_StreamCancelStopsPump(t *testing.T) {
	release := make(chan struct{})
	p, _ := newAnthropicTestServer(t, func(w http.ResponseWriter, _ gjson.Result) {
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"A\"}}\n\n")
		w.(http.Flusher).Flush()
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Stream(ctx, cachedRequest("claude-3.5-sonnet", 0))
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "A", first.Content)
	cancel()

	for c := range ch {
		assert.False(t, c.Done, "no completion after cancel")
	}
}

func TestAnthropic_CloseIdempotent(t *testing.T) {
	p := NewAnthropicProvider(config.ProviderConfig{APIKey: "k", BaseURL: "http://127.0.0.1:0"})
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}
