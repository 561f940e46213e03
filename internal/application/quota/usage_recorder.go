package quota

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"proposal-ai-api/internal/domain/entity"
	"proposal-ai-api/internal/domain/repository"
	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/pkg/logger"
)

// maxUserIDLen 与 usage_logs.user_id 列宽一致
const maxUserIDLen = 255

// ErrInvalidProjectID 项目 ID 不是 UUID，无法计入预算
var ErrInvalidProjectID = errors.New("project id is not a uuid")

// UsageRecorder 在同一事务内写入用量流水并累加项目已用 Token
type UsageRecorder struct {
	tx       repository.Transactor
	projects repository.ProjectRepository
	logs     repository.UsageLogRepository
	stats    StatsInvalidator
}

// StatsInvalidator 用量写入后清除统计缓存
type StatsInvalidator interface {
	InvalidatePattern(ctx context.Context, pattern string) error
}

// NewUsageRecorder 创建用量记录器
func NewUsageRecorder(tx repository.Transactor, projects repository.ProjectRepository, logs repository.UsageLogRepository) *UsageRecorder {
	return &UsageRecorder{tx: tx, projects: projects, logs: logs}
}

// WithStatsInvalidator 写入成功后清除 usage:stats:* 缓存
func (r *UsageRecorder) WithStatsInvalidator(inv StatsInvalidator) *UsageRecorder {
	r.stats = inv
	return r
}

var _ service.UsageRecorder = (*UsageRecorder)(nil)

// Record 写入一条用量记录
func (r *UsageRecorder) Record(ctx context.Context, rec service.UsageRecord) error {
	if rec.InputTokens < 0 || rec.OutputTokens < 0 {
		return fmt.Errorf("invalid token usage: input=%d output=%d", rec.InputTokens, rec.OutputTokens)
	}

	projectID, ok := uuidOrNil(rec.ProjectID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidProjectID, rec.ProjectID)
	}
	// 非 UUID 的章节 ID 不能写入 uuid 列，转存到 metadata
	sectionID, ok := uuidOrNil(rec.SectionID)
	metadata := rec.Metadata
	if !ok {
		metadata = withEntry(metadata, "section_ref", strings.TrimSpace(rec.SectionID))
	}

	row := &entity.UsageLog{
		UserID:         clampRunes(strings.TrimSpace(rec.UserID), maxUserIDLen),
		ProjectID:      projectID,
		SectionID:      sectionID,
		ModelUsed:      rec.Model,
		InputTokens:    rec.InputTokens,
		OutputTokens:   rec.OutputTokens,
		CostUSD:        rec.CostUSD,
		ActionType:     rec.ActionKind,
		BudgetExceeded: rec.BudgetExceeded,
		Metadata:       metadata,
	}

	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := r.logs.Create(ctx, row); err != nil {
			return err
		}
		delta := int64(rec.InputTokens + rec.OutputTokens)
		if row.ProjectID == nil || delta == 0 {
			return nil
		}
		return r.projects.AddUsedTokens(ctx, *row.ProjectID, delta)
	})
	if err != nil {
		return err
	}
	if r.stats != nil {
		if err := r.stats.InvalidatePattern(ctx, statsKeyPrefix+"*"); err != nil {
			logger.Warn(ctx, "failed to invalidate usage stats cache", "error", err.Error())
		}
	}
	return nil
}

// uuidOrNil 空值返回 nil；非 UUID 时 ok=false
func uuidOrNil(id string) (*string, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, true
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, false
	}
	s := parsed.String()
	return &s, true
}

func withEntry(m map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(m)+1)
	maps.Copy(out, m)
	out[key] = value
	return out
}

// clampRunes 截断到不超过 n 字节且不拆分多字节字符
func clampRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
