// Package catalog 定义模型目录、章节层级策略与系统提示词
package catalog

import (
	"sort"
	"strings"
)

// Provider 模型供应商
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderOpenAI    Provider = "openai"
)

// Providers 返回全部已支持的供应商
func Providers() []Provider {
	return []Provider{ProviderAnthropic, ProviderGoogle, ProviderOpenAI}
}

// ParseProvider 解析供应商名称（大小写不敏感）
func ParseProvider(s string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderAnthropic:
		return ProviderAnthropic, true
	case ProviderGoogle:
		return ProviderGoogle, true
	case ProviderOpenAI:
		return ProviderOpenAI, true
	default:
		return "", false
	}
}

// String 实现 fmt.Stringer
func (p Provider) String() string {
	return string(p)
}

// ModelDescriptor 模型描述：价格（每百万 token，美元）、能力与输出上限
type ModelDescriptor struct {
	ID               string   `json:"name"`
	Provider         Provider `json:"provider"`
	InputPerMillion  float64  `json:"input_price"`
	OutputPerMillion float64  `json:"output_price"`
	CachedPerMillion float64  `json:"cached_price"`
	SupportsCaching  bool     `json:"supports_caching"`
	SupportsThinking bool     `json:"supports_thinking"`
	MaxOutputTokens  int      `json:"max_output_tokens"`
}

// modelTable 进程内只读的模型目录
var modelTable = map[string]ModelDescriptor{
	"claude-4.5-sonnet": {
		ID:               "claude-4.5-sonnet",
		Provider:         ProviderAnthropic,
		InputPerMillion:  3.00,
		OutputPerMillion: 15.00,
		CachedPerMillion: 0.30,
		SupportsCaching:  true,
		SupportsThinking: true,
		MaxOutputTokens:  16384,
	},
	"claude-3.5-sonnet": {
		ID:               "claude-3.5-sonnet",
		Provider:         ProviderAnthropic,
		InputPerMillion:  3.00,
		OutputPerMillion: 15.00,
		CachedPerMillion: 0.30,
		SupportsCaching:  true,
		SupportsThinking: false,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-flash": {
		ID:               "gemini-2.5-flash",
		Provider:         ProviderGoogle,
		InputPerMillion:  0.30,
		OutputPerMillion: 2.50,
		CachedPerMillion: 0.03,
		SupportsCaching:  true,
		SupportsThinking: true,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-flash-lite": {
		ID:               "gemini-2.5-flash-lite",
		Provider:         ProviderGoogle,
		InputPerMillion:  0.10,
		OutputPerMillion: 0.40,
		CachedPerMillion: 0,
		SupportsCaching:  false,
		SupportsThinking: false,
		MaxOutputTokens:  8192,
	},
	"gpt-4o-mini": {
		ID:               "gpt-4o-mini",
		Provider:         ProviderOpenAI,
		InputPerMillion:  0.15,
		OutputPerMillion: 0.60,
		CachedPerMillion: 0.075,
		SupportsCaching:  true,
		SupportsThinking: false,
		MaxOutputTokens:  4096,
	},
}

// LookupModel 按模型 ID 查找描述，未登记的模型返回 false
func LookupModel(id string) (ModelDescriptor, bool) {
	d, ok := modelTable[id]
	return d, ok
}

// ProviderOf 返回模型所属供应商
func ProviderOf(id string) (Provider, bool) {
	d, ok := modelTable[id]
	if !ok {
		return "", false
	}
	return d.Provider, true
}

// SupportsThinking 模型是否支持推理预算
func SupportsThinking(id string) bool {
	d, ok := modelTable[id]
	return ok && d.SupportsThinking
}

// Models 返回全部模型描述（按供应商、ID 排序）
func Models() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(modelTable))
	for _, d := range modelTable {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}
