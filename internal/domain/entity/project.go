// Package entity 定义领域实体
package entity

import (
	"time"
)

// 项目预算默认值
const (
	DefaultMaxTokenBudget       int64   = 1_000_000
	DefaultBudgetAlertThreshold float64 = 0.8
)

// Project 标书项目，按项目维度控制 Token 预算
type Project struct {
	ID                   string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerID              string    `json:"owner_id,omitempty" gorm:"type:varchar(255);index"`
	Name                 string    `json:"name" gorm:"type:varchar(255);not null"`
	MaxTokenBudget       int64     `json:"max_token_budget" gorm:"not null;default:1000000"`
	UsedTokens           int64     `json:"used_tokens" gorm:"not null;default:0"`
	BudgetAlertThreshold float64   `json:"budget_alert_threshold" gorm:"type:numeric(3,2);not null;default:0.8"`
	CreatedAt            time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Project) TableName() string {
	return "projects"
}

// NewProject 创建新项目，预算与阈值非法时使用默认值
func NewProject(ownerID, name string, budget int64, threshold float64) *Project {
	if budget <= 0 {
		budget = DefaultMaxTokenBudget
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultBudgetAlertThreshold
	}
	return &Project{
		OwnerID:              ownerID,
		Name:                 name,
		MaxTokenBudget:       budget,
		BudgetAlertThreshold: threshold,
	}
}

// RemainingTokens 剩余预算，可能为负
func (p *Project) RemainingTokens() int64 {
	return p.MaxTokenBudget - p.UsedTokens
}
