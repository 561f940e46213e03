package llm

import (
	"bytes"
	"errors"
	"io"
)

const sseReadChunk = 4096

// sseEvent 一个完整的 SSE 事件
type sseEvent struct {
	Name string
	Data []byte
}

// sseReader 从响应体中逐个读取 SSE 事件，兼容 \n\n 与 \r\n\r\n 分隔
type sseReader struct {
	r   io.Reader
	buf []byte
	eof bool
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: r, buf: make([]byte, 0, sseReadChunk)}
}

// Next 返回下一个含 data 的事件；流结束返回 io.EOF
func (s *sseReader) Next() (sseEvent, error) {
	chunk := make([]byte, sseReadChunk)
	for {
		raw, rest, ok := nextSSEEvent(s.buf, s.eof)
		if ok {
			s.buf = rest
			if ev, keep := parseSSEEvent(raw); keep {
				return ev, nil
			}
			continue
		}
		if s.eof {
			return sseEvent{}, io.EOF
		}

		n, err := s.r.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return sseEvent{}, err
			}
			s.eof = true
		}
	}
}

func nextSSEEvent(buf []byte, flush bool) ([]byte, []byte, bool) {
	crlf := bytes.Index(buf, []byte("\r\n\r\n"))
	lf := bytes.Index(buf, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return buf[:crlf], buf[crlf+4:], true
	case lf >= 0:
		return buf[:lf], buf[lf+2:], true
	}
	if flush {
		if trimmed := bytes.TrimSpace(buf); len(trimmed) > 0 {
			return trimmed, nil, true
		}
	}
	return nil, nil, false
}

// parseSSEEvent 解析 event/data 行；无 data 或 data 为 [DONE] 时丢弃
func parseSSEEvent(raw []byte) (sseEvent, bool) {
	var ev sseEvent
	var data [][]byte
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimSpace(line)
		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			ev.Name = string(bytes.TrimSpace(bytes.TrimPrefix(line, []byte("event:"))))
		case bytes.HasPrefix(line, []byte("data:")):
			payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
			if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
				continue
			}
			data = append(data, payload)
		}
	}
	if len(data) == 0 {
		return sseEvent{}, false
	}
	ev.Data = bytes.Join(data, []byte("\n"))
	return ev, true
}
