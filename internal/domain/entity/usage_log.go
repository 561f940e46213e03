package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageLog 单次模型调用的用量流水，写入后不再修改
type UsageLog struct {
	ID             string         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         string         `json:"user_id" gorm:"type:varchar(255);index;not null"`
	ProjectID      *string        `json:"project_id,omitempty" gorm:"type:uuid;index"`
	SectionID      *string        `json:"section_id,omitempty" gorm:"type:uuid"`
	ModelUsed      string         `json:"model_used" gorm:"type:varchar(50);not null"`
	InputTokens    int            `json:"input_tokens" gorm:"not null;default:0"`
	OutputTokens   int            `json:"output_tokens" gorm:"not null;default:0"`
	TotalTokens    int            `json:"total_tokens" gorm:"not null;default:0"`
	CostUSD        float64        `json:"cost_usd" gorm:"type:numeric(10,6);not null;default:0"`
	ActionType     string         `json:"action_type" gorm:"type:varchar(50);not null"`
	BudgetExceeded bool           `json:"budget_exceeded" gorm:"not null;default:false"`
	Metadata       map[string]any `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName 指定表名
func (UsageLog) TableName() string {
	return "usage_logs"
}

// BeforeCreate 生成主键并补齐合计 Token
func (l *UsageLog) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.TotalTokens = l.InputTokens + l.OutputTokens
	return nil
}
