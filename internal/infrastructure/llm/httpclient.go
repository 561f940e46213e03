package llm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"proposal-ai-api/pkg/logger"
)

const defaultTimeout = 120 * time.Second

// jsonTransport 供应商 REST 调用的公共部分
type jsonTransport struct {
	provider string
	baseURL  string
	headers  map[string]string
	client   *http.Client
}

func newJSONTransport(provider, baseURL string, timeout time.Duration, headers map[string]string) *jsonTransport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &jsonTransport{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		headers:  headers,
		client: &http.Client{
			Timeout:   timeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
	}
}

// post 发送 JSON 请求；非 2xx 响应转换为 ProviderError。成功时调用方负责关闭 Body
func (t *jsonTransport) post(ctx context.Context, path string, body []byte, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, wrapError(t.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		logger.Debug(ctx, "llm request failed", "provider", t.provider, "path", path, "error", err.Error())
		return nil, wrapError(t.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		logger.Debug(ctx, "llm upstream error", "provider", t.provider, "status", resp.StatusCode)
		return nil, statusError(t.provider, resp.StatusCode, payload)
	}
	return resp, nil
}

// postJSON 发送请求并读取完整响应体
func (t *jsonTransport) postJSON(ctx context.Context, path string, body []byte) ([]byte, error) {
	resp, err := t.post(ctx, path, body, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError(t.provider, err)
	}
	return payload, nil
}

// close 释放空闲连接
func (t *jsonTransport) close() {
	t.client.CloseIdleConnections()
}
