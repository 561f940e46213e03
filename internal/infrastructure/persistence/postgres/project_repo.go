package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"proposal-ai-api/internal/domain/entity"
)

// ProjectRepository 项目仓储实现
type ProjectRepository struct {
	client *Client
}

// NewProjectRepository 创建项目仓储
func NewProjectRepository(client *Client) *ProjectRepository {
	return &ProjectRepository{client: client}
}

// Create 创建项目
func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(project).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取项目，不存在时返回 nil
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.GetByID")
	defer span.End()

	// 非 UUID 的 ID 不可能存在，避免数据库类型转换报错
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var project entity.Project
	if err := getDB(ctx, r.client.db).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// AddUsedTokens 原子累加已用 Token
func (r *ProjectRepository) AddUsedTokens(ctx context.Context, id string, delta int64) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.AddUsedTokens")
	defer span.End()

	res := getDB(ctx, r.client.db).
		Model(&entity.Project{}).
		Where("id = ?", id).
		UpdateColumn("used_tokens", gorm.Expr("used_tokens + ?", delta))
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to add used tokens: %w", res.Error)
	}
	return nil
}
