//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"proposal-ai-api/internal/application/generation"
	"proposal-ai-api/internal/application/quota"
	"proposal-ai-api/internal/config"
	"proposal-ai-api/internal/domain/repository"
	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/internal/infrastructure/llm"
	"proposal-ai-api/internal/infrastructure/persistence/postgres"
	"proposal-ai-api/internal/infrastructure/persistence/redis"
	"proposal-ai-api/internal/interfaces/http/handler"
	"proposal-ai-api/internal/interfaces/http/middleware"
	"proposal-ai-api/internal/interfaces/http/router"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		LLMSet,
		QuotaSet,
		GenerationSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializePostgresOnly 仅初始化 PostgreSQL 数据层（用于 bootstrap）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*PostgresOnlyDataLayer, func(), error) {
	wire.Build(
		PostgresSet,
		wire.Struct(new(PostgresOnlyDataLayer), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewProjectRepository,
	postgres.NewUsageLogRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.ProjectRepository), new(*postgres.ProjectRepository)),
	wire.Bind(new(repository.UsageLogRepository), new(*postgres.UsageLogRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	ProvideStatsCache,
	redis.NewRateLimiter,
	wire.Bind(new(quota.StatsCache), new(*redis.Cache)),
	wire.Bind(new(quota.StatsInvalidator), new(*redis.Cache)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// LLMSet 模型适配器注册表
var LLMSet = wire.NewSet(
	ProvideLLMRegistry,
	wire.Bind(new(service.ProviderResolver), new(*llm.Registry)),
)

// QuotaSet 预算与用量
var QuotaSet = wire.NewSet(
	quota.NewBudgetChecker,
	ProvideUsageRecorder,
	ProvideUsageReporter,
	wire.Bind(new(service.BudgetChecker), new(*quota.BudgetChecker)),
	wire.Bind(new(service.UsageRecorder), new(*quota.UsageRecorder)),
	wire.Bind(new(handler.UsageReporter), new(*quota.UsageReporter)),
)

// GenerationSet 生成编排
var GenerationSet = wire.NewSet(
	ProvideOrchestrator,
	wire.Bind(new(handler.Generator), new(*generation.Orchestrator)),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	handler.NewAIHandler,
	handler.NewUsageHandler,
	ProvideHealthHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
