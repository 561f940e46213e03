package catalog

import (
	"embed"
	"fmt"
	"strings"
	"sync"
)

//go:embed prompts/*.txt
var promptsFS embed.FS

// PromptKey 系统提示词键
type PromptKey string

const (
	PromptBasic      PromptKey = "basic"
	PromptCompliance PromptKey = "compliance"
	PromptStandard   PromptKey = "standard"
	PromptStrategic  PromptKey = "strategic"
	PromptAudit      PromptKey = "audit"
)

// promptFiles 提示词键 × 供应商 → 模板文件
var promptFiles = map[PromptKey]map[Provider]string{
	PromptBasic: {
		ProviderAnthropic: "prompts/basic.txt",
		ProviderGoogle:    "prompts/basic.txt",
		ProviderOpenAI:    "prompts/basic.txt",
	},
	PromptCompliance: {
		ProviderAnthropic: "prompts/audit.txt",
		ProviderGoogle:    "prompts/compliance.txt",
		ProviderOpenAI:    "prompts/standard_fluent.txt",
	},
	PromptStandard: {
		ProviderAnthropic: "prompts/standard.txt",
		ProviderGoogle:    "prompts/standard.txt",
		ProviderOpenAI:    "prompts/standard_fluent.txt",
	},
	PromptStrategic: {
		ProviderAnthropic: "prompts/strategic.txt",
		ProviderGoogle:    "prompts/standard.txt",
		ProviderOpenAI:    "prompts/standard_fluent.txt",
	},
	PromptAudit: {
		ProviderAnthropic: "prompts/audit.txt",
		ProviderGoogle:    "prompts/audit.txt",
		ProviderOpenAI:    "prompts/audit.txt",
	},
}

// PromptRegistry 内嵌提示词模板的只读缓存
type PromptRegistry struct {
	mu    sync.RWMutex
	cache map[string]string
}

// NewPromptRegistry 创建提示词注册表
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{cache: make(map[string]string)}
}

var defaultPrompts = NewPromptRegistry()

// SystemPrompt 按提示词键与供应商取系统提示词，未知组合返回空串
func SystemPrompt(key PromptKey, provider Provider) string {
	text, err := defaultPrompts.Lookup(key, provider)
	if err != nil {
		return ""
	}
	return text
}

// Lookup 查找提示词文本
func (r *PromptRegistry) Lookup(key PromptKey, provider Provider) (string, error) {
	byProvider, ok := promptFiles[key]
	if !ok {
		return "", fmt.Errorf("unknown prompt key: %s", key)
	}
	path, ok := byProvider[provider]
	if !ok {
		return "", fmt.Errorf("no prompt for key %s and provider %s", key, provider)
	}

	r.mu.RLock()
	if text, ok := r.cache[path]; ok {
		r.mu.RUnlock()
		return text, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if text, ok := r.cache[path]; ok {
		return text, nil
	}
	b, err := promptsFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(b))
	r.cache[path] = text
	return text, nil
}
