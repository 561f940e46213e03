package dto

// DailyUsageQuery 按日用量查询参数
type DailyUsageQuery struct {
	Days      int    `form:"days"`
	ProjectID string `form:"project_id"`
}
