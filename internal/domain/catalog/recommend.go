package catalog

import "strings"

// GenerationMode 生成模式，同时作为用量记录的操作类型
type GenerationMode string

const (
	ModeGenerate  GenerationMode = "generate"
	ModeRewrite   GenerationMode = "rewrite"
	ModeAudit     GenerationMode = "audit"
	ModeSummarize GenerationMode = "summarize"
	ModeExpand    GenerationMode = "expand"
)

// ParseMode 解析生成模式，空串视为 generate
func ParseMode(s string) (GenerationMode, bool) {
	switch GenerationMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeGenerate:
		return ModeGenerate, true
	case ModeRewrite:
		return ModeRewrite, true
	case ModeAudit:
		return ModeAudit, true
	case ModeSummarize:
		return ModeSummarize, true
	case ModeExpand:
		return ModeExpand, true
	default:
		return "", false
	}
}

type levelKeywords struct {
	level    SectionLevel
	keywords []string
}

// 按顺序匹配，先命中者优先
var recommendRules = []levelKeywords{
	{LevelBasic, []string{"目錄", "簡介", "封面", "附件", "附錄", "索引"}},
	{LevelCompliance, []string{"資安", "法規", "合規", "隱私", "安全", "稽核", "iso", "個資"}},
	{LevelStrategic, []string{"解決方案", "技術架構", "創新", "策略", "核心", "設計"}},
}

// RecommendLevel 根据章节标题推荐层级，未命中返回标准层
func RecommendLevel(chapterNumber, title string, depth int) SectionLevel {
	t := strings.ToLower(title)
	for _, rule := range recommendRules {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.level
			}
		}
	}
	return DefaultLevel
}
