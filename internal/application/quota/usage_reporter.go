package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"proposal-ai-api/internal/application/cost"
	"proposal-ai-api/internal/domain/entity"
	"proposal-ai-api/internal/domain/repository"
	"proposal-ai-api/pkg/logger"
)

const (
	recentLogLimit  = 50
	defaultDays     = 30
	maxDays         = 365
	defaultStatsTTL = 30 * time.Second

	statsKeyPrefix = "usage:stats:"
)

var (
	// ErrProjectNotFound 项目不存在
	ErrProjectNotFound = errors.New("project not found")
	// ErrProjectForbidden 非管理员访问他人项目
	ErrProjectForbidden = errors.New("project belongs to another user")
)

// StatsCache 统计结果的读穿缓存
type StatsCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
}

// ModelUsage 按模型汇总
type ModelUsage struct {
	Model        string  `json:"model"`
	RequestCount int64   `json:"request_count"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// LevelUsage 按章节层级汇总
type LevelUsage struct {
	Level        string  `json:"level"`
	RequestCount int64   `json:"request_count"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// DailyUsage 按日汇总
type DailyUsage struct {
	Date         string  `json:"date"`
	RequestCount int64   `json:"request_count"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// UsageStats 用量总览
type UsageStats struct {
	TotalRequests     int64        `json:"total_requests"`
	TotalInputTokens  int64        `json:"total_input_tokens"`
	TotalOutputTokens int64        `json:"total_output_tokens"`
	TotalTokens       int64        `json:"total_tokens"`
	TotalCostUSD      float64      `json:"total_cost_usd"`
	CacheSavingsUSD   float64      `json:"cache_savings_usd"`
	ByModel           []ModelUsage `json:"by_model"`
	ByLevel           []LevelUsage `json:"by_level"`
}

// ProjectUsage 项目预算与最近流水
type ProjectUsage struct {
	ProjectID       string             `json:"project_id"`
	MaxTokenBudget  int64              `json:"max_token_budget"`
	UsedTokens      int64              `json:"used_tokens"`
	RemainingTokens int64              `json:"remaining_tokens"`
	UsagePercent    float64            `json:"usage_percent"`
	Alert           bool               `json:"alert"`
	TotalCostUSD    float64            `json:"total_cost_usd"`
	Logs            []*entity.UsageLog `json:"logs"`
}

// UsageReporter 用量统计查询
type UsageReporter struct {
	logs     repository.UsageLogRepository
	projects repository.ProjectRepository
	cache    StatsCache
	ttl      time.Duration
	now      func() time.Time
}

// NewUsageReporter 创建用量统计服务，cache 可为 nil
func NewUsageReporter(logs repository.UsageLogRepository, projects repository.ProjectRepository, cache StatsCache, ttl time.Duration) *UsageReporter {
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}
	return &UsageReporter{logs: logs, projects: projects, cache: cache, ttl: ttl, now: time.Now}
}

// Stats 用量总览；非管理员只统计本人
func (r *UsageReporter) Stats(ctx context.Context, userID string, admin bool) (*UsageStats, error) {
	filter := repository.UsageFilter{}
	scope := "all"
	if !admin {
		filter.UserID = userID
		scope = "user:" + userID
	}

	if r.cache == nil {
		return r.loadStats(ctx, filter)
	}

	var loadErr error
	raw, err := r.cache.GetOrLoadSafe(ctx, statsKeyPrefix+scope, r.ttl, func() (interface{}, error) {
		stats, err := r.loadStats(ctx, filter)
		loadErr = err
		return stats, err
	})
	if loadErr != nil {
		return nil, loadErr
	}
	if err != nil {
		// 缓存不可用时直接查库
		logger.Warn(ctx, "usage stats cache unavailable", "error", err.Error())
		return r.loadStats(ctx, filter)
	}
	var stats UsageStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("decode cached usage stats: %w", err)
	}
	return &stats, nil
}

func (r *UsageReporter) loadStats(ctx context.Context, filter repository.UsageFilter) (*UsageStats, error) {
	totals, err := r.logs.Totals(ctx, filter)
	if err != nil {
		return nil, err
	}
	models, err := r.logs.Group(ctx, filter, repository.GroupByModel)
	if err != nil {
		return nil, err
	}
	levels, err := r.logs.Group(ctx, filter, repository.GroupByLevel)
	if err != nil {
		return nil, err
	}

	stats := &UsageStats{
		TotalRequests:     totals.Requests,
		TotalInputTokens:  totals.InputTokens,
		TotalOutputTokens: totals.OutputTokens,
		TotalTokens:       totals.InputTokens + totals.OutputTokens,
		TotalCostUSD:      totals.CostUSD,
		ByModel:           make([]ModelUsage, 0, len(models)),
		ByLevel:           make([]LevelUsage, 0, len(levels)),
	}
	for _, g := range models {
		stats.ByModel = append(stats.ByModel, ModelUsage{
			Model:        g.Key,
			RequestCount: g.Requests,
			TotalTokens:  g.TotalTokens,
			TotalCost:    g.CostUSD,
		})
		stats.CacheSavingsUSD += cost.CacheSavings(g.Key, int(g.CachedTokens))
	}
	stats.CacheSavingsUSD = cost.Round(stats.CacheSavingsUSD)
	for _, g := range levels {
		stats.ByLevel = append(stats.ByLevel, LevelUsage{
			Level:        g.Key,
			RequestCount: g.Requests,
			TotalTokens:  g.TotalTokens,
			TotalCost:    g.CostUSD,
		})
	}
	return stats, nil
}

// Project 项目预算与最近 50 条流水；非管理员仅可查看本人或无负责人的项目
func (r *UsageReporter) Project(ctx context.Context, projectID, userID string, admin bool) (*ProjectUsage, error) {
	p, err := r.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProjectNotFound
	}
	if !admin && p.OwnerID != "" && p.OwnerID != userID {
		return nil, ErrProjectForbidden
	}
	status := budgetStatus(p)

	filter := repository.UsageFilter{ProjectID: projectID}
	totals, err := r.logs.Totals(ctx, filter)
	if err != nil {
		return nil, err
	}
	logs, err := r.logs.ListRecent(ctx, filter, recentLogLimit)
	if err != nil {
		return nil, err
	}
	return &ProjectUsage{
		ProjectID:       projectID,
		MaxTokenBudget:  status.Limit,
		UsedTokens:      status.Used,
		RemainingTokens: status.Remaining,
		UsagePercent:    status.UsagePercent,
		Alert:           status.Alert,
		TotalCostUSD:    totals.CostUSD,
		Logs:            logs,
	}, nil
}

// Daily 最近 days 天的按日用量，日期倒序；days 超出 [1,365] 时使用 30
func (r *UsageReporter) Daily(ctx context.Context, userID, projectID string, admin bool, days int) ([]DailyUsage, error) {
	if days < 1 || days > maxDays {
		days = defaultDays
	}
	now := r.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	filter := repository.UsageFilter{
		ProjectID: projectID,
		Since:     today.AddDate(0, 0, -(days - 1)),
	}
	if !admin {
		filter.UserID = userID
	}

	groups, err := r.logs.Group(ctx, filter, repository.GroupByDay)
	if err != nil {
		return nil, err
	}
	out := make([]DailyUsage, 0, len(groups))
	for _, g := range groups {
		out = append(out, DailyUsage{
			Date:         g.Key,
			RequestCount: g.Requests,
			TotalTokens:  g.TotalTokens,
			TotalCost:    g.CostUSD,
		})
	}
	slices.Reverse(out)
	return out, nil
}
