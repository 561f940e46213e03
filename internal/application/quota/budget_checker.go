// Package quota 提供项目 Token 预算检查、用量记录与统计
package quota

import (
	"context"
	"fmt"
	"math"
	"strings"

	"proposal-ai-api/internal/domain/entity"
	"proposal-ai-api/internal/domain/repository"
	"proposal-ai-api/internal/domain/service"
)

// BudgetChecker 基于项目表的预算检查
type BudgetChecker struct {
	projects repository.ProjectRepository
}

// NewBudgetChecker 创建预算检查器
func NewBudgetChecker(projects repository.ProjectRepository) *BudgetChecker {
	return &BudgetChecker{projects: projects}
}

var _ service.BudgetChecker = (*BudgetChecker)(nil)

// Check 返回项目预算状态；项目不存在时 Allowed 为 false
func (c *BudgetChecker) Check(ctx context.Context, projectID string) (*service.BudgetStatus, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return &service.BudgetStatus{}, nil
	}

	p, err := c.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project budget: %w", err)
	}
	if p == nil {
		return &service.BudgetStatus{}, nil
	}

	return budgetStatus(p), nil
}

func budgetStatus(p *entity.Project) *service.BudgetStatus {
	remaining := p.RemainingTokens()
	var pct float64
	if p.MaxTokenBudget > 0 {
		pct = math.Round(float64(p.UsedTokens)/float64(p.MaxTokenBudget)*100*100) / 100
	}
	return &service.BudgetStatus{
		Allowed:      remaining > 0,
		Remaining:    remaining,
		Used:         p.UsedTokens,
		Limit:        p.MaxTokenBudget,
		UsagePercent: pct,
		Alert:        pct >= p.BudgetAlertThreshold*100,
	}
}
