package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"proposal-ai-api/internal/domain/entity"
	"proposal-ai-api/internal/domain/repository"
)

const (
	cachedTokensExpr = "COALESCE(SUM(COALESCE((metadata->>'cached_tokens')::int, 0)), 0)"
	unknownLevel     = "unknown"
)

// groupKeyExprs 分组维度 → SQL 表达式
var groupKeyExprs = map[repository.UsageGroupBy]string{
	repository.GroupByModel: "model_used",
	repository.GroupByLevel: "COALESCE(metadata->>'section_level', '" + unknownLevel + "')",
	repository.GroupByDay:   "to_char(date(created_at), 'YYYY-MM-DD')",
}

// UsageLogRepository 用量流水仓储实现
type UsageLogRepository struct {
	client *Client
}

// NewUsageLogRepository 创建用量流水仓储
func NewUsageLogRepository(client *Client) *UsageLogRepository {
	return &UsageLogRepository{client: client}
}

// Create 写入一条用量流水
func (r *UsageLogRepository) Create(ctx context.Context, log *entity.UsageLog) error {
	ctx, span := tracer.Start(ctx, "postgres.UsageLogRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(log).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create usage log: %w", err)
	}
	return nil
}

// Totals 汇总用量
func (r *UsageLogRepository) Totals(ctx context.Context, filter repository.UsageFilter) (*repository.UsageTotals, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageLogRepository.Totals")
	defer span.End()

	var totals repository.UsageTotals
	err := totalsQuery(getDB(ctx, r.client.db), filter).Scan(&totals).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to sum usage: %w", err)
	}
	return &totals, nil
}

// Group 按维度分组汇总，按 Key 升序
func (r *UsageLogRepository) Group(ctx context.Context, filter repository.UsageFilter, by repository.UsageGroupBy) ([]repository.UsageGroup, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageLogRepository.Group")
	defer span.End()

	q, err := groupQuery(getDB(ctx, r.client.db), filter, by)
	if err != nil {
		return nil, err
	}
	var groups []repository.UsageGroup
	if err := q.Scan(&groups).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to group usage by %s: %w", by, err)
	}
	return groups, nil
}

// ListRecent 按创建时间倒序列出最近流水
func (r *UsageLogRepository) ListRecent(ctx context.Context, filter repository.UsageFilter, limit int) ([]*entity.UsageLog, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageLogRepository.ListRecent")
	defer span.End()

	var logs []*entity.UsageLog
	err := applyUsageFilter(getDB(ctx, r.client.db).Model(&entity.UsageLog{}), filter).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list usage logs: %w", err)
	}
	return logs, nil
}

func applyUsageFilter(db *gorm.DB, f repository.UsageFilter) *gorm.DB {
	if f.UserID != "" {
		db = db.Where("user_id = ?", f.UserID)
	}
	if f.ProjectID != "" {
		db = db.Where("project_id::text = ?", f.ProjectID)
	}
	if !f.Since.IsZero() {
		db = db.Where("created_at >= ?", f.Since)
	}
	return db
}

func totalsQuery(db *gorm.DB, f repository.UsageFilter) *gorm.DB {
	return applyUsageFilter(db.Model(&entity.UsageLog{}), f).Select(
		"COUNT(*) AS requests, " +
			"COALESCE(SUM(input_tokens), 0) AS input_tokens, " +
			"COALESCE(SUM(output_tokens), 0) AS output_tokens, " +
			cachedTokensExpr + " AS cached_tokens, " +
			"COALESCE(SUM(cost_usd), 0) AS cost_usd",
	)
}

func groupQuery(db *gorm.DB, f repository.UsageFilter, by repository.UsageGroupBy) (*gorm.DB, error) {
	keyExpr, ok := groupKeyExprs[by]
	if !ok {
		return nil, fmt.Errorf("unsupported usage grouping: %q", by)
	}
	return applyUsageFilter(db.Model(&entity.UsageLog{}), f).
		Select(keyExpr + " AS key, " +
			"COUNT(*) AS requests, " +
			"COALESCE(SUM(total_tokens), 0) AS total_tokens, " +
			cachedTokensExpr + " AS cached_tokens, " +
			"COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Group(keyExpr).
		Order("key ASC"), nil
}
