package llm

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"proposal-ai-api/internal/domain/service"
)

const maxErrorBody = 512

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// rateLimitMarkers 出现在错误信息中即视为限流/配额不足
var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"quota",
	"resource_exhausted",
	"too many requests",
}

// statusError 将非 2xx 响应转换为 ProviderError
func statusError(provider string, status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").String()
	errType := gjson.GetBytes(body, "error.type").String()
	if errType == "" {
		errType = gjson.GetBytes(body, "error.status").String()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			n := maxErrorBody
			for n > 0 && !utf8.RuneStart(msg[n]) {
				n--
			}
			msg = msg[:n]
		}
	}
	if msg == "" {
		msg = "empty error response"
	}
	if errType != "" {
		msg = errType + ": " + msg
	}

	if status == 429 || hasRateLimitMarker(msg) {
		return service.NewRateLimitError(provider, status, msg, nil)
	}
	return service.NewProviderError(provider, status, msg, nil)
}

// wrapError 将 SDK/网络层错误归一化为 ProviderError，已归一化的错误原样返回
func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := service.AsProviderError(err); ok {
		return err
	}
	msg := err.Error()
	status := 0
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		status, _ = strconv.Atoi(m[1])
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return service.NewProviderError(provider, status, msg, err)
	}
	if status == 429 || hasRateLimitMarker(msg) {
		return service.NewRateLimitError(provider, status, msg, err)
	}
	return service.NewProviderError(provider, status, msg, err)
}

func hasRateLimitMarker(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range rateLimitMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
