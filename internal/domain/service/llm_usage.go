package service

import "context"

// BudgetStatus 项目预算状态
type BudgetStatus struct {
	Allowed      bool    `json:"allowed"`
	Remaining    int64   `json:"remaining"`
	Used         int64   `json:"used"`
	Limit        int64   `json:"limit"`
	UsagePercent float64 `json:"usage_percent"`
	Alert        bool    `json:"alert"`
}

// BudgetChecker 查询项目预算；同一请求内可调用多次
type BudgetChecker interface {
	Check(ctx context.Context, projectID string) (*BudgetStatus, error)
}

// UsageRecord 一次完成调用的用量记录，写入后不再修改
type UsageRecord struct {
	UserID         string
	ProjectID      string
	SectionID      string
	Model          string
	InputTokens    int
	OutputTokens   int
	CostUSD        float64
	ActionKind     string
	BudgetExceeded bool
	Metadata       map[string]any
}

// UsageRecorder 写入用量流水（并累加项目已用 token）。
// 约定：该接口的实现应尽量“best-effort”，调用方不因记录失败中断主流程。
type UsageRecorder interface {
	Record(ctx context.Context, rec UsageRecord) error
}
