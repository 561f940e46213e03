package router

import (
	"github.com/gin-gonic/gin"

	"proposal-ai-api/internal/interfaces/http/handler"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, aiHandler *handler.AIHandler, usageHandler *handler.UsageHandler) {
	// 生成与稽核
	ai := v1.Group("/ai")
	{
		ai.POST("/generate", aiHandler.Generate)
		ai.POST("/generate/stream", aiHandler.GenerateStream)
		ai.POST("/audit", aiHandler.Audit)
		ai.POST("/rewrite", aiHandler.Rewrite)
		ai.POST("/estimate", aiHandler.Estimate)
		ai.POST("/recommend-level", aiHandler.RecommendLevel)

		// 目录
		ai.GET("/models", aiHandler.ListModels)
		ai.GET("/strategies", aiHandler.ListStrategies)
	}

	// 用量统计
	usage := v1.Group("/usage")
	{
		usage.GET("/stats", usageHandler.Stats)
		usage.GET("/projects/:pid", usageHandler.Project)
		usage.GET("/daily", usageHandler.Daily)
	}
}
