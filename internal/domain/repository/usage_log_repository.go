// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"proposal-ai-api/internal/domain/entity"
)

// UsageFilter 用量查询条件，空字段不参与过滤
type UsageFilter struct {
	UserID    string
	ProjectID string
	Since     time.Time
}

// UsageTotals 用量合计
type UsageTotals struct {
	Requests     int64   `json:"total_requests"`
	InputTokens  int64   `json:"total_input_tokens"`
	OutputTokens int64   `json:"total_output_tokens"`
	CachedTokens int64   `json:"-"`
	CostUSD      float64 `json:"total_cost_usd"`
}

// UsageGroup 按维度分组的用量
type UsageGroup struct {
	Key          string  `json:"key"`
	Requests     int64   `json:"request_count"`
	TotalTokens  int64   `json:"total_tokens"`
	CachedTokens int64   `json:"-"`
	CostUSD      float64 `json:"total_cost"`
}

// UsageGroupBy 分组维度
type UsageGroupBy string

const (
	GroupByModel UsageGroupBy = "model"
	GroupByLevel UsageGroupBy = "level"
	GroupByDay   UsageGroupBy = "day"
)

// UsageLogRepository 用量流水仓储接口
type UsageLogRepository interface {
	// Create 写入一条用量流水
	Create(ctx context.Context, log *entity.UsageLog) error

	// Totals 汇总用量
	Totals(ctx context.Context, filter UsageFilter) (*UsageTotals, error)

	// Group 按维度分组汇总，按 Key 升序
	Group(ctx context.Context, filter UsageFilter, by UsageGroupBy) ([]UsageGroup, error)

	// ListRecent 按创建时间倒序列出最近流水
	ListRecent(ctx context.Context, filter UsageFilter, limit int) ([]*entity.UsageLog, error)
}
