package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"proposal-ai-api/internal/application/quota"
	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/internal/interfaces/http/dto"
	apperrors "proposal-ai-api/pkg/errors"
	"proposal-ai-api/pkg/logger"
)

// classify 将编排层错误映射为应用错误；预算拒绝时附带预算状态
func classify(err error) (*apperrors.AppError, any) {
	var budgetErr *service.BudgetExhaustedError
	if errors.As(err, &budgetErr) {
		return apperrors.ErrBudgetExhausted, budgetErr.Status
	}
	if errors.Is(err, service.ErrBudgetExhausted) {
		return apperrors.ErrBudgetExhausted, nil
	}
	if errors.Is(err, quota.ErrProjectNotFound) {
		return apperrors.ErrProjectNotFound, nil
	}
	if errors.Is(err, quota.ErrProjectForbidden) {
		return apperrors.ErrForbidden, nil
	}
	if pe, ok := service.AsProviderError(err); ok {
		if pe.RateLimited {
			return apperrors.ErrLLMRateLimited.WithDetail(pe.Error()), nil
		}
		return apperrors.ErrLLMProviderError.WithDetail(pe.Error()), nil
	}
	if apperrors.IsAppError(err) {
		return apperrors.AsAppError(err), nil
	}
	return apperrors.ErrInternalError, nil
}

// respondError 写出错误响应，5xx 记录错误日志
func respondError(c *gin.Context, op string, err error) {
	appErr, budget := classify(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error(c.Request.Context(), op+" failed", err)
	} else {
		logger.Warn(c.Request.Context(), op+" rejected", "error", err.Error())
	}
	dto.AppError(c, appErr, budget)
}

func badRequest(c *gin.Context, err error) {
	dto.AppError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()), nil)
}
