// Package cost 提供按模型定价的费用计算
package cost

import (
	"math"

	"proposal-ai-api/internal/domain/catalog"
)

const perMillion = 1_000_000

// Breakdown 费用明细（美元，6 位小数）
type Breakdown struct {
	InputCost    float64 `json:"input_cost"`
	OutputCost   float64 `json:"output_cost"`
	CacheSavings float64 `json:"cache_savings"`
	TotalCost    float64 `json:"total_cost"`
}

// Estimate 计算费用。未登记的模型返回全零明细。
// cached 限定在 [0, input] 内，缓存部分按折扣价计费。
func Estimate(model string, inputTokens, outputTokens, cachedTokens int) Breakdown {
	d, ok := catalog.LookupModel(model)
	if !ok {
		return Breakdown{}
	}

	input := max(inputTokens, 0)
	output := max(outputTokens, 0)
	cached := min(max(cachedTokens, 0), input)
	billable := input - cached

	paid := float64(billable)*d.InputPerMillion/perMillion + float64(cached)*d.CachedPerMillion/perMillion
	inputCost := Round(paid)
	outputCost := Round(float64(output) * d.OutputPerMillion / perMillion)

	var savings float64
	if cached > 0 {
		full := float64(input) * d.InputPerMillion / perMillion
		savings = Round(math.Max(0, full-paid))
	}

	return Breakdown{
		InputCost:    inputCost,
		OutputCost:   outputCost,
		CacheSavings: savings,
		TotalCost:    Round(inputCost + outputCost),
	}
}

// CacheSavings 仅计算缓存节省金额
func CacheSavings(model string, cachedTokens int) float64 {
	d, ok := catalog.LookupModel(model)
	if !ok || cachedTokens <= 0 {
		return 0
	}
	return Round(float64(cachedTokens) * (d.InputPerMillion - d.CachedPerMillion) / perMillion)
}

// Round 保留 6 位小数
func Round(v float64) float64 {
	return math.Round(v*perMillion) / perMillion
}
