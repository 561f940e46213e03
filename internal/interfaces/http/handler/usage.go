package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"proposal-ai-api/internal/application/quota"
	"proposal-ai-api/internal/interfaces/http/dto"
	"proposal-ai-api/internal/interfaces/http/middleware"
)

// UsageReporter 用量统计查询
type UsageReporter interface {
	Stats(ctx context.Context, userID string, admin bool) (*quota.UsageStats, error)
	Project(ctx context.Context, projectID, userID string, admin bool) (*quota.ProjectUsage, error)
	Daily(ctx context.Context, userID, projectID string, admin bool, days int) ([]quota.DailyUsage, error)
}

// UsageHandler 用量查询处理器
type UsageHandler struct {
	reporter UsageReporter
}

// NewUsageHandler 创建用量查询处理器
func NewUsageHandler(reporter UsageReporter) *UsageHandler {
	return &UsageHandler{reporter: reporter}
}

// Stats 用量总览
// @Summary 用量总览
// @Description 非管理员只返回本人的用量
// @Tags Usage
// @Produce json
// @Success 200 {object} dto.Response[quota.UsageStats]
// @Router /v1/usage/stats [get]
func (h *UsageHandler) Stats(c *gin.Context) {
	stats, err := h.reporter.Stats(c.Request.Context(), middleware.GetUserIDFromGin(c), middleware.IsAdminFromGin(c))
	if err != nil {
		respondError(c, "usage stats", err)
		return
	}
	dto.Success(c, stats)
}

// Project 项目预算与最近流水
// @Summary 项目用量
// @Tags Usage
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[quota.ProjectUsage]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/usage/projects/{pid} [get]
func (h *UsageHandler) Project(c *gin.Context) {
	usage, err := h.reporter.Project(c.Request.Context(), c.Param("pid"), middleware.GetUserIDFromGin(c), middleware.IsAdminFromGin(c))
	if err != nil {
		respondError(c, "project usage", err)
		return
	}
	dto.Success(c, usage)
}

// Daily 按日用量
// @Summary 按日用量
// @Tags Usage
// @Produce json
// @Param days query int false "天数" default(30)
// @Param project_id query string false "项目 ID"
// @Success 200 {object} dto.Response[[]quota.DailyUsage]
// @Router /v1/usage/daily [get]
func (h *UsageHandler) Daily(c *gin.Context) {
	var q dto.DailyUsageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	rows, err := h.reporter.Daily(c.Request.Context(), middleware.GetUserIDFromGin(c), q.ProjectID, middleware.IsAdminFromGin(c), q.Days)
	if err != nil {
		respondError(c, "daily usage", err)
		return
	}
	dto.Success(c, rows)
}
