// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"proposal-ai-api/internal/domain/entity"
)

// ProjectRepository 项目仓储接口
type ProjectRepository interface {
	// Create 创建项目
	Create(ctx context.Context, project *entity.Project) error

	// GetByID 根据 ID 获取项目，不存在时返回 nil
	GetByID(ctx context.Context, id string) (*entity.Project, error)

	// AddUsedTokens 原子累加已用 Token
	AddUsedTokens(ctx context.Context, id string, delta int64) error
}
