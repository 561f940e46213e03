// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "proposal-ai-api/pkg/errors"
	"proposal-ai-api/pkg/logger"
	"proposal-ai-api/pkg/utils"
)

// AnonymousUserID 未启用认证时使用的用户 ID
const AnonymousUserID = "anonymous"

// AuthConfig 认证配置
type AuthConfig struct {
	Secret    string
	Issuer    string
	SkipPaths []string
	Enabled   bool
}

// Auth 认证中间件，向 Context 注入 user_id 与 role
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		if !cfg.Enabled {
			setIdentity(c, AnonymousUserID, "")
			c.Next()
			return
		}

		// 前缀匹配（/health, /ready, /live, /metrics）
		for _, path := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithAppError(c, apperrors.ErrTokenMissing.WithDetail("missing authorization header"))
			return
		}
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abortWithAppError(c, apperrors.ErrTokenInvalid.WithDetail("invalid authorization format"))
			return
		}

		claims, err := jwtManager.ParseToken(strings.TrimSpace(token))
		if err != nil {
			appErr := apperrors.ErrTokenInvalid.WithDetail("invalid token")
			if errors.Is(err, utils.ErrExpiredToken) {
				appErr = apperrors.ErrTokenExpired.WithDetail("token expired")
			}
			abortWithAppError(c, appErr)
			return
		}

		setIdentity(c, claims.UserID, claims.Role)
		c.Next()
	}
}

func setIdentity(c *gin.Context, userID, role string) {
	c.Set("user_id", userID)
	c.Set("role", role)
	ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, userID)
	c.Request = c.Request.WithContext(ctx)
}

// GetUserIDFromGin 当前用户 ID
func GetUserIDFromGin(c *gin.Context) string {
	return c.GetString("user_id")
}

// IsAdminFromGin 当前用户是否管理员
func IsAdminFromGin(c *gin.Context) bool {
	return c.GetString("role") == utils.RoleAdmin
}

// abortWithAppError 以应用错误码终止请求，message 优先取 Detail
func abortWithAppError(c *gin.Context, appErr *apperrors.AppError) {
	msg := appErr.Message
	if appErr.Detail != "" {
		msg = appErr.Detail
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"code":       appErr.HTTPStatus,
		"message":    msg,
		"error_code": appErr.Code,
		"trace_id":   c.GetString("trace_id"),
	})
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
