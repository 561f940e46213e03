// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proposal-ai-api/internal/config"
	"proposal-ai-api/internal/infrastructure/persistence/redis"
	"proposal-ai-api/internal/interfaces/http/dto"
	"proposal-ai-api/internal/interfaces/http/handler"
	"proposal-ai-api/internal/interfaces/http/middleware"
	apperrors "proposal-ai-api/pkg/errors"
)

// Handlers 路由依赖的处理器集合
type Handlers struct {
	AI     *handler.AIHandler
	Usage  *handler.UsageHandler
	Health *handler.HealthHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
}

// New 创建路由器；limiter 为 nil 时不启用限流
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
	r.engine.Use(middleware.AccessLog(r.skipPaths()))
}

func (r *Router) skipPaths() []string {
	paths := append([]string{}, middleware.DefaultSkipPaths...)
	if p := r.cfg.Observability.Metrics.Path; p != "" {
		paths = append(paths, p)
	}
	return paths
}

func (r *Router) setupRoutes() {
	if h := r.handlers.Health; h != nil {
		r.engine.GET("/health", h.Health)
		r.engine.GET("/ready", h.Ready)
		r.engine.GET("/live", h.Live)
	}

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	v1.Use(middleware.Auth(middleware.AuthConfig{
		Enabled:   r.cfg.Security.JWT.Enabled,
		Secret:    r.cfg.Security.JWT.Secret,
		Issuer:    r.cfg.Security.JWT.Issuer,
		SkipPaths: r.skipPaths(),
	}))
	if r.limiter != nil {
		v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Enabled: r.cfg.Security.RateLimit.Enabled,
			Limit:   r.cfg.Security.RateLimit.Limit,
			Window:  r.cfg.Security.RateLimit.Window,
		}, r.limiter, redis.BuildUserRateLimitKey))
	}

	RegisterV1Routes(v1, r.handlers.AI, r.handlers.Usage)

	r.engine.NoRoute(func(c *gin.Context) {
		dto.AppError(c, apperrors.ErrNotFound, nil)
	})
}
