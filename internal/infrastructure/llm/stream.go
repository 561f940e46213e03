package llm

import (
	"context"
	"errors"
	"io"

	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/pkg/metrics"
)

// eventDecoder 解码单个 SSE 事件：返回文本片段、是否终止
type eventDecoder func(ev sseEvent, usage *service.TokenUsage) (text string, done bool, err error)

// errStreamTruncated 协议要求显式结束事件，但连接先关闭
var errStreamTruncated = errors.New("stream ended before terminal event")

// pumpSSE 在独立 goroutine 中读取事件并写入无缓冲 channel。
// eofIsDone 为 false 时，未收到结束事件的 EOF 视为截断并返回错误。
// ctx 取消时关闭响应体，不再发送终止片段；消费方停止读取时必须取消 ctx。
func pumpSSE(ctx context.Context, provider string, body io.ReadCloser, decode eventDecoder, eofIsDone bool) <-chan service.StreamChunk {
	ch := make(chan service.StreamChunk)
	go func() {
		defer close(ch)
		defer body.Close()

		send := func(c service.StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage service.TokenUsage
		reader := newSSEReader(body)
		for {
			ev, err := reader.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					if !eofIsDone {
						if ctx.Err() != nil {
							return
						}
						send(service.StreamChunk{Err: service.NewProviderError(provider, 0, errStreamTruncated.Error(), errStreamTruncated)})
						return
					}
					u := usage
					send(service.StreamChunk{Done: true, Usage: &u})
					return
				}
				if ctx.Err() == nil {
					send(service.StreamChunk{Err: wrapError(provider, err)})
				}
				return
			}

			text, done, err := decode(ev, &usage)
			if err != nil {
				send(service.StreamChunk{Err: err})
				return
			}
			if text != "" {
				metrics.LLMStreamFragments.WithLabelValues(provider).Inc()
				if !send(service.StreamChunk{Content: text}) {
					return
				}
			}
			if done {
				u := usage
				send(service.StreamChunk{Done: true, Usage: &u})
				return
			}
		}
	}()
	return ch
}
