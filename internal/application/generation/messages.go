package generation

import (
	"fmt"
	"strings"

	"proposal-ai-api/internal/domain/service"
)

const (
	contextHeading  = "## 招標文件摘要\n"
	templateHeading = "## 參考範本\n"
	strictSuffix    = " 嚴格模式：任何不符合需求的內容都必須標記。"
)

// buildMessages 按 系统提示词 → 招标摘要 → 参考范本 → 用户提示 的顺序组装消息。
// 稳定内容在前，供应商按前缀命中缓存。
func buildMessages(systemPrompt string, req Request) []service.Message {
	msgs := make([]service.Message, 0, 4)
	system := func(content string) {
		msgs = append(msgs, service.Message{Role: service.RoleSystem, Content: content, Cacheable: req.UseCache})
	}
	if systemPrompt != "" {
		system(systemPrompt)
	}
	if req.Context != "" {
		system(contextHeading + req.Context)
	}
	if req.Template != "" {
		system(templateHeading + req.Template)
	}
	msgs = append(msgs, service.Message{Role: service.RoleUser, Content: req.Prompt})
	return msgs
}

func auditUserPrompt(req AuditRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## 公司標準範本\n%s\n\n## 招標需求\n%s\n\n請進行%s稽核。", req.TemplateContent, req.RequirementContent, req.AuditType)
	if req.Strict {
		sb.WriteString(strictSuffix)
	}
	return sb.String()
}
