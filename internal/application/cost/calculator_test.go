package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"proposal-ai-api/internal/domain/catalog"
)

func TestEstimate_CachedExample(t *testing.T) {
	b := Estimate("claude-4.5-sonnet", 500, 200, 100)

	assert.InDelta(t, (400*3.0+100*0.30)/1e6, b.InputCost, 1e-9)
	assert.InDelta(t, (200*15.0)/1e6, b.OutputCost, 1e-9)
	assert.InDelta(t, (500*3.0-(400*3.0+100*0.30))/1e6, b.CacheSavings, 1e-9)
	assert.InDelta(t, 0.00423, b.TotalCost, 1e-9)
}

func TestEstimate_UnknownModel(t *testing.T) {
	assert.Equal(t, Breakdown{}, Estimate("no-such-model", 1000, 1000, 10))
}

func TestEstimate_NoCacheNoSavings(t *testing.T) {
	b := Estimate("gpt-4o-mini", 1000, 1000, 0)
	assert.Zero(t, b.CacheSavings)
	assert.InDelta(t, 0.00015, b.InputCost, 1e-9)
	assert.InDelta(t, 0.0006, b.OutputCost, 1e-9)
}

func TestEstimate_OpenAICachedRate(t *testing.T) {
	b := Estimate("gpt-4o-mini", 2000, 0, 1536)
	assert.InDelta(t, (464*0.15+1536*0.075)/1e6, b.InputCost, 1e-6)
	assert.InDelta(t, 1536*(0.15-0.075)/1e6, b.CacheSavings, 1e-6)
}

func TestEstimate_ClampsCached(t *testing.T) {
	over := Estimate("gemini-2.5-flash", 100, 0, 500)
	exact := Estimate("gemini-2.5-flash", 100, 0, 100)
	assert.Equal(t, exact, over)

	neg := Estimate("gemini-2.5-flash", 100, 10, -5)
	assert.Equal(t, Estimate("gemini-2.5-flash", 100, 10, 0), neg)
}

func TestEstimate_Properties(t *testing.T) {
	inputs := []int{0, 1, 7, 999, 12345, 1_000_000}
	for _, d := range catalog.Models() {
		for _, in := range inputs {
			for _, out := range inputs {
				for _, cached := range []int{0, in / 3, in} {
					b := Estimate(d.ID, in, out, cached)
					sum := math.Round((b.InputCost+b.OutputCost)*1e6) / 1e6
					assert.Equal(t, sum, b.TotalCost, "%s %d/%d/%d", d.ID, in, out, cached)
					assert.GreaterOrEqual(t, b.CacheSavings, 0.0)
					assert.GreaterOrEqual(t, b.InputCost, 0.0)
					assert.GreaterOrEqual(t, b.OutputCost, 0.0)
				}
			}
		}
	}
}

func TestCacheSavings(t *testing.T) {
	assert.InDelta(t, 100*(3.0-0.30)/1e6, CacheSavings("claude-3.5-sonnet", 100), 1e-9)
	assert.Zero(t, CacheSavings("claude-3.5-sonnet", 0))
	assert.Zero(t, CacheSavings("unknown", 100))
}
