package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proposal-ai-api/internal/config"
	"proposal-ai-api/internal/domain/catalog"
	"proposal-ai-api/internal/domain/service"
)

type stubProvider struct {
	name   catalog.Provider
	closed atomic.Int32
}

func (s *stubProvider) Name() catalog.Provider { return s.name }

func (s *stubProvider) Generate(context.Context, service.ChatRequest) (*service.ChatResponse, error) {
	return &service.ChatResponse{}, nil
}

func (s *stubProvider) Stream(context.Context, service.ChatRequest) (<-chan service.StreamChunk, error) {
	ch := make(chan service.StreamChunk)
	close(ch)
	return ch, nil
}

func (s *stubProvider) Close() error {
	s.closed.Add(1)
	return nil
}

func llmConfig(keys map[string]string) config.LLMConfig {
	cfg := config.LLMConfig{Providers: map[string]config.ProviderConfig{}}
	for name, key := range keys {
		cfg.Providers[name] = config.ProviderConfig{APIKey: key}
	}
	return cfg
}

func countingBuilder(calls *atomic.Int32, fail *atomic.Bool) Builder {
	return func(_ context.Context, _ config.ProviderConfig) (service.ChatProvider, error) {
		calls.Add(1)
		if fail != nil && fail.Load() {
			return nil, errors.New("dial failed")
		}
		return &stubProvider{name: catalog.ProviderGoogle}, nil
	}
}

func TestRegistry_LazySingleton(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistryWithBuilders(llmConfig(map[string]string{"google": "g"}), map[catalog.Provider]Builder{
		catalog.ProviderGoogle: countingBuilder(&calls, nil),
	})
	assert.Equal(t, 0, r.Len())

	var wg sync.WaitGroup
	got := make([]service.ChatProvider, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := r.Get(context.Background(), catalog.ProviderGoogle)
			assert.NoError(t, err)
			got[i] = a
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, a := range got[1:] {
		assert.Same(t, got[0], a)
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_FailureNotCached(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool
	fail.Store(true)
	r := NewRegistryWithBuilders(llmConfig(map[string]string{"google": "g"}), map[catalog.Provider]Builder{
		catalog.ProviderGoogle: countingBuilder(&calls, &fail),
	})

	_, err := r.Get(context.Background(), catalog.ProviderGoogle)
	require.Error(t, err)
	pe, ok := service.AsProviderError(err)
	require.True(t, ok)
	assert.Contains(t, pe.Message, "adapter construction failed")
	assert.Equal(t, 0, r.Len())

	fail.Store(false)
	a, err := r.Get(context.Background(), catalog.ProviderGoogle)
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRegistry_MissingAPIKey(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistryWithBuilders(llmConfig(map[string]string{"google": "  "}), map[catalog.Provider]Builder{
		catalog.ProviderGoogle: countingBuilder(&calls, nil),
	})

	_, err := r.Get(context.Background(), catalog.ProviderGoogle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY not configured")
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, service.IsRateLimit(err))
}

func TestRegistry_UnsupportedProvider(t *testing.T) {
	r := NewRegistryWithBuilders(llmConfig(nil), map[catalog.Provider]Builder{})
	_, err := r.Get(context.Background(), catalog.Provider("mistral"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestRegistry_ForModel(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistryWithBuilders(llmConfig(map[string]string{"google": "g"}), map[catalog.Provider]Builder{
		catalog.ProviderGoogle: countingBuilder(&calls, nil),
	})

	a, err := r.ForModel(context.Background(), "gemini-2.5-flash")
	require.NoError(t, err)
	assert.Equal(t, catalog.ProviderGoogle, a.Name())

	_, err = r.ForModel(context.Background(), "llama-3")
	require.Error(t, err)
	pe, ok := service.AsProviderError(err)
	require.True(t, ok)
	assert.Contains(t, pe.Message, "unknown model")
}

func TestRegistry_CloseClearsAndIsIdempotent(t *testing.T) {
	stubs := map[catalog.Provider]*stubProvider{
		catalog.ProviderGoogle:    {name: catalog.ProviderGoogle},
		catalog.ProviderAnthropic: {name: catalog.ProviderAnthropic},
	}
	builders := map[catalog.Provider]Builder{}
	for name, s := range stubs {
		builders[name] = func(context.Context, config.ProviderConfig) (service.ChatProvider, error) { return s, nil }
	}
	r := NewRegistryWithBuilders(llmConfig(map[string]string{"google": "g", "anthropic": "a"}), builders)

	for name := range stubs {
		_, err := r.Get(context.Background(), name)
		require.NoError(t, err)
	}
	require.Equal(t, 2, r.Len())

	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.Len())
	for _, s := range stubs {
		assert.Equal(t, int32(1), s.closed.Load())
	}

	require.NoError(t, r.Close())
	for _, s := range stubs {
		assert.Equal(t, int32(1), s.closed.Load())
	}
}

func TestRegistry_DefaultBuildersCoverAllProviders(t *testing.T) {
	b := DefaultBuilders()
	for _, p := range catalog.Providers() {
		assert.Contains(t, b, p)
	}
}
