// Package llm 提供三家供应商的适配器及按需构造的适配器注册表
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"proposal-ai-api/internal/config"
	"proposal-ai-api/internal/domain/catalog"
	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/pkg/logger"
)

// Builder 根据供应商配置构造适配器
type Builder func(ctx context.Context, cfg config.ProviderConfig) (service.ChatProvider, error)

// DefaultBuilders 三家供应商的默认构造函数
func DefaultBuilders() map[catalog.Provider]Builder {
	return map[catalog.Provider]Builder{
		catalog.ProviderAnthropic: func(_ context.Context, cfg config.ProviderConfig) (service.ChatProvider, error) {
			return NewAnthropicProvider(cfg), nil
		},
		catalog.ProviderGoogle: func(_ context.Context, cfg config.ProviderConfig) (service.ChatProvider, error) {
			return NewGeminiProvider(cfg), nil
		},
		catalog.ProviderOpenAI: func(ctx context.Context, cfg config.ProviderConfig) (service.ChatProvider, error) {
			return NewOpenAIProvider(ctx, cfg)
		},
	}
}

// Registry 每个供应商一个惰性构造、进程内共享的适配器。
// 构造失败不缓存，下次调用重新构造。
type Registry struct {
	cfg      config.LLMConfig
	builders map[catalog.Provider]Builder

	mu       sync.RWMutex
	adapters map[catalog.Provider]service.ChatProvider
}

// NewRegistry 创建适配器注册表
func NewRegistry(cfg *config.Config) *Registry {
	return NewRegistryWithBuilders(cfg.LLM, DefaultBuilders())
}

// NewRegistryWithBuilders 使用自定义构造函数创建注册表
func NewRegistryWithBuilders(cfg config.LLMConfig, builders map[catalog.Provider]Builder) *Registry {
	return &Registry{
		cfg:      cfg,
		builders: builders,
		adapters: make(map[catalog.Provider]service.ChatProvider),
	}
}

// Get 获取供应商适配器
func (r *Registry) Get(ctx context.Context, provider catalog.Provider) (service.ChatProvider, error) {
	r.mu.RLock()
	a, ok := r.adapters[provider]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 再次检查防止竞态
	if a, ok = r.adapters[provider]; ok {
		return a, nil
	}

	build, ok := r.builders[provider]
	if !ok {
		return nil, service.NewProviderError(string(provider), 0, "unsupported provider", nil)
	}
	pcfg := r.cfg.Provider(string(provider))
	if strings.TrimSpace(pcfg.APIKey) == "" {
		return nil, service.NewProviderError(string(provider), 0, apiKeyEnv(provider)+" not configured", nil)
	}

	a, err := build(ctx, pcfg)
	if err != nil {
		return nil, service.NewProviderError(string(provider), 0, "adapter construction failed", err)
	}
	r.adapters[provider] = a
	logger.Debug(ctx, "llm adapter created", "provider", string(provider))
	return a, nil
}

// ForModel 按模型所属供应商获取适配器
func (r *Registry) ForModel(ctx context.Context, model string) (service.ChatProvider, error) {
	provider, ok := catalog.ProviderOf(model)
	if !ok {
		return nil, service.NewProviderError("unknown", 0, fmt.Sprintf("unknown model %q", model), nil)
	}
	return r.Get(ctx, provider)
}

// Close 关闭并清空全部已构造的适配器，可重复调用
func (r *Registry) Close() error {
	r.mu.Lock()
	adapters := r.adapters
	r.adapters = make(map[catalog.Provider]service.ChatProvider)
	r.mu.Unlock()

	var g errgroup.Group
	for name, a := range adapters {
		g.Go(func() error {
			if err := a.Close(); err != nil {
				return fmt.Errorf("close %s adapter: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Len 已构造的适配器数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

func apiKeyEnv(p catalog.Provider) string {
	return strings.ToUpper(string(p)) + "_API_KEY"
}
