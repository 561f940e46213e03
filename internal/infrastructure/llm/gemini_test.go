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

func newGeminiTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body gjson.Result)) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		handler(w, r, gjson.ParseBytes(raw))
	}))
	t.Cleanup(srv.Close)

	p := NewGeminiProvider(config.ProviderConfig{APIKey: "g-key", BaseURL: srv.URL, Timeout: 5 * time.Second})
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestGemini_GenerateWithThinking(t *testing.T) {
	p := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request, body gjson.Result) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "sys\n## 招標文件摘要\nctx", body.Get("systemInstruction.parts.0.text").String())
		assert.Equal(t, "user", body.Get("contents.0.role").String())
		assert.Equal(t, "write", body.Get("contents.0.parts.0.text").String())
		assert.Equal(t, int64(2000), body.Get("generationConfig.thinkingConfig.thinkingBudget").Int())
		assert.Equal(t, int64(4096), body.Get("generationConfig.maxOutputTokens").Int())
		assert.False(t, body.Get("generationConfig.temperature").Exists())

		fmt.Fprint(w, `{
			"candidates":[{"content":{"parts":[{"text":"plan","thought":true},{"text":"答案"}]}}],
			"usageMetadata":{"promptTokenCount":300,"candidatesTokenCount":80,"cachedContentTokenCount":120,"thoughtsTokenCount":40}
		}`)
	})

	resp, err := p.Generate(context.Background(), cachedRequest("gemini-2.5-flash", 2000))
	require.NoError(t, err)
	assert.Equal(t, "答案", resp.Content)
	assert.Equal(t, service.TokenUsage{InputTokens: 300, OutputTokens: 80, CachedTokens: 120, ThinkingTokens: 40}, resp.Usage)
}

func TestGemini_ZeroBudgetDisablesThinking(t *testing.T) {
	p := newGeminiTestServer(t, func(w http.ResponseWriter, _ *http.Request, body gjson.Result) {
		cfg := body.Get("generationConfig")
		assert.True(t, cfg.Get("thinkingConfig.thinkingBudget").Exists())
		assert.Equal(t, int64(0), cfg.Get("thinkingConfig.thinkingBudget").Int())
		assert.Equal(t, 0.7, cfg.Get("temperature").Float())
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":1}}`)
	})

	_, err := p.Generate(context.Background(), cachedRequest("gemini-2.5-flash", 0))
	require.NoError(t, err)
}

func TestGemini_NonThinkingModelOmitsThinkingConfig(t *testing.T) {
	p := newGeminiTestServer(t, func(w http.ResponseWriter, _ *http.Request, body gjson.Result) {
		assert.False(t, body.Get("generationConfig.thinkingConfig").Exists())
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	})

	_, err := p.Generate(context.Background(), cachedRequest("gemini-2.5-flash-lite", 1000))
	require.NoError(t, err)
}

func TestGemini_ResourceExhausted(t *testing.T) {
	p := newGeminiTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ gjson.Result) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded"}}`)
	})

	_, err := p.Generate(context.Background(), cachedRequest("gemini-2.5-flash", 0))
	require.Error(t, err)
	assert.True(t, service.IsRateLimit(err))
}

func TestGemini_PromptBlocked(t *testing.T) {
	p := newGeminiTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ gjson.Result) {
		fmt.Fprint(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	})

	_, err := p.Generate(context.Background(), cachedRequest("gemini-2.5-flash", 0))
	require.Error(t, err)
	pe, ok := service.AsProviderError(err)
	require.True(t, ok)
	assert.Contains(t, pe.Message, "SAFETY")
	assert.False(t, pe.RateLimited)
}

func TestGemini_EmptyCandidateFinishReason(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"safety", `{"candidates":[{"finishReason":"SAFETY"}]}`, "SAFETY"},
		{"recitation", `{"candidates":[{"content":{"parts":[]},"finishReason":"RECITATION"}]}`, "RECITATION"},
		{"stop with empty text", `{"candidates":[{"content":{"parts":[{"text":""}]},"finishReason":"STOP"}]}`, ""},
		{"max tokens", `{"candidates":[{"finishReason":"MAX_TOKENS"}]}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newGeminiTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ gjson.Result) {
				fmt.Fprint(w, tt.body)
			})
			resp, err := p.Generate(context.Background(), cachedRequest("gemini-2.5-flash", 0))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Empty(t, resp.Content)
				return
			}
			pe, ok := service.AsProviderError(err)
			require.True(t, ok)
			assert.Contains(t, pe.Message, tt.wantErr)
			assert.False(t, pe.RateLimited)
		})
	}
}

func TestGemini_StreamSafetyStopIsError(t *testing.T) {
	p := newGeminiTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ gjson.Result) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"A\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"finishReason\":\"SAFETY\"}]}\n\n")
	})

	ch, err := p.Stream(context.Background(), cachedRequest("gemini-2.5-flash", 0))
	require.NoError(t, err)

	var chunks []service.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "A", chunks[0].Content)
	pe, ok := service.AsProviderError(chunks[1].Err)
	require.True(t, ok)
	assert.Contains(t, pe.Message, "SAFETY")
	assert.False(t, chunks[1].Done)
}

func TestGemini_Stream(t *testing.T) {
	p := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request, _ gjson.Result) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, data := range []string{
			`{"candidates":[{"content":{"parts":[{"text":"A"}]}}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":1}}`,
			`{"candidates":[{"content":{"parts":[{"text":"B"}]}}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":3}}`,
			`{"candidates":[{"content":{"parts":[{"text":"C"}]}}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"cachedContentTokenCount":4}}`,
		} {
			fmt.Fprintf(w, "data: %s\r\n\r\n", data)
			w.(http.Flusher).Flush()
		}
	})

	ch, err := p.Stream(context.Background(), cachedRequest("gemini-2.5-flash", 0))
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
	assert.Equal(t, []string{"A", "B", "C"}, texts)
	require.NotNil(t, final)
	assert.Equal(t, service.TokenUsage{InputTokens: 10, OutputTokens: 5, CachedTokens: 4}, *final)
}

func TestGemini_StreamMidwayError(t *testing.T) {
	p := newGeminiTestServer(t, func(w http.ResponseWriter, _ *http.Request, _ gjson.Result) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"A\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"code\":503,\"status\":\"UNAVAILABLE\",\"message\":\"overloaded\"}}\n\n")
	})

	ch, err := p.Stream(context.Background(), cachedRequest("gemini-2.5-flash", 0))
	require.NoError(t, err)

	var chunks []service.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "A", chunks[0].Content)
	require.Error(t, chunks[1].Err)
	pe, ok := service.AsProviderError(chunks[1].Err)
	require.True(t, ok)
	assert.Equal(t, 503, pe.StatusCode)
}
