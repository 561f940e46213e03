package catalog

import "strings"

// SectionLevel 章节层级
type SectionLevel string

const (
	LevelBasic      SectionLevel = "L1"
	LevelCompliance SectionLevel = "L2"
	LevelStandard   SectionLevel = "L3"
	LevelStrategic  SectionLevel = "L4"

	// DefaultLevel 未识别层级时使用的层级
	DefaultLevel = LevelStandard
)

var levelAliases = map[string]SectionLevel{
	"l1":         LevelBasic,
	"basic":      LevelBasic,
	"l2":         LevelCompliance,
	"compliance": LevelCompliance,
	"l3":         LevelStandard,
	"standard":   LevelStandard,
	"l4":         LevelStrategic,
	"strategic":  LevelStrategic,
}

// ParseLevel 解析层级（支持 L1-L4 与 basic/compliance/standard/strategic）
func ParseLevel(s string) (SectionLevel, bool) {
	lvl, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]
	return lvl, ok
}

// NormalizeLevel 解析层级，无法识别时返回默认层级
func NormalizeLevel(s string) SectionLevel {
	if lvl, ok := ParseLevel(s); ok {
		return lvl
	}
	return DefaultLevel
}

// LevelStrategy 层级策略
type LevelStrategy struct {
	Level          SectionLevel `json:"level"`
	PrimaryModel   string       `json:"primary_model"`
	FallbackModel  string       `json:"fallback_model"`
	ThinkingBudget int          `json:"thinking_budget"`
	Temperature    float64      `json:"temperature"`
	PromptKey      PromptKey    `json:"-"`
	Description    string       `json:"description"`
}

var strategyTable = map[SectionLevel]LevelStrategy{
	LevelBasic: {
		Level:          LevelBasic,
		PrimaryModel:   "gemini-2.5-flash-lite",
		FallbackModel:  "gpt-4o-mini",
		ThinkingBudget: 0,
		Temperature:    0.3,
		PromptKey:      PromptBasic,
		Description:    "基礎層：目錄、簡介、基本格式文字",
	},
	LevelCompliance: {
		Level:          LevelCompliance,
		PrimaryModel:   "claude-3.5-sonnet",
		FallbackModel:  "gemini-2.5-flash",
		ThinkingBudget: 0,
		Temperature:    0.2,
		PromptKey:      PromptCompliance,
		Description:    "合規層：資安、法規、合規性審查（稽核模式）",
	},
	LevelStandard: {
		Level:          LevelStandard,
		PrimaryModel:   "gemini-2.5-flash",
		FallbackModel:  "gpt-4o-mini",
		ThinkingBudget: 1000,
		Temperature:    0.5,
		PromptKey:      PromptStandard,
		Description:    "標準層：專案管理、時程、人力配置",
	},
	LevelStrategic: {
		Level:          LevelStrategic,
		PrimaryModel:   "claude-4.5-sonnet",
		FallbackModel:  "claude-3.5-sonnet",
		ThinkingBudget: 2000,
		Temperature:    0.7,
		PromptKey:      PromptStrategic,
		Description:    "決勝層：解決方案、技術架構、創新提案",
	},
}

var levelOrder = []SectionLevel{LevelBasic, LevelCompliance, LevelStandard, LevelStrategic}

// Strategies 按层级顺序返回全部策略
func Strategies() []LevelStrategy {
	out := make([]LevelStrategy, 0, len(levelOrder))
	for _, lvl := range levelOrder {
		out = append(out, strategyTable[lvl])
	}
	return out
}

// ResolvedStrategy 解析后的策略，附带实际系统提示词
type ResolvedStrategy struct {
	Level          SectionLevel
	PrimaryModel   string
	FallbackModel  string
	ThinkingBudget int
	Temperature    float64
	SystemPrompt   string
	Provider       Provider
	Description    string
}

// Resolve 解析层级策略，未识别层级解析为标准层
func Resolve(level string) ResolvedStrategy {
	s, ok := strategyTable[NormalizeLevel(level)]
	if !ok {
		s = strategyTable[DefaultLevel]
	}
	provider, ok := ProviderOf(s.PrimaryModel)
	if !ok {
		provider = ProviderGoogle
	}
	return ResolvedStrategy{
		Level:          s.Level,
		PrimaryModel:   s.PrimaryModel,
		FallbackModel:  s.FallbackModel,
		ThinkingBudget: s.ThinkingBudget,
		Temperature:    s.Temperature,
		SystemPrompt:   SystemPrompt(s.PromptKey, provider),
		Provider:       provider,
		Description:    s.Description,
	}
}
