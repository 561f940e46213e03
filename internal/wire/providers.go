package wire

import (
	"context"

	"proposal-ai-api/internal/application/generation"
	"proposal-ai-api/internal/application/quota"
	"proposal-ai-api/internal/config"
	"proposal-ai-api/internal/domain/repository"
	"proposal-ai-api/internal/domain/service"
	"proposal-ai-api/internal/infrastructure/llm"
	"proposal-ai-api/internal/infrastructure/persistence/postgres"
	"proposal-ai-api/internal/infrastructure/persistence/redis"
	"proposal-ai-api/internal/interfaces/http/handler"
	"proposal-ai-api/pkg/logger"
)

const statsCacheName = "usage_stats"

// PostgresOnlyDataLayer 仅包含 PostgreSQL 的数据层（用于 bootstrap）
type PostgresOnlyDataLayer struct {
	PgClient     *postgres.Client
	TxManager    *postgres.TxManager
	ProjectRepo  *postgres.ProjectRepository
	UsageLogRepo *postgres.UsageLogRepository
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideStatsCache 用量统计缓存
func ProvideStatsCache(client *redis.Client) *redis.Cache {
	return redis.NewCache(client, statsCacheName)
}

// ProvideLLMRegistry 提供适配器注册表，清理时关闭全部已建适配器
func ProvideLLMRegistry(ctx context.Context, cfg *config.Config) (*llm.Registry, func()) {
	reg := llm.NewRegistry(cfg)
	cleanup := func() {
		if err := reg.Close(); err != nil {
			logger.Error(ctx, "failed to close llm providers", err)
		}
	}
	return reg, cleanup
}

// ProvideUsageRecorder 用量记录器，记录后使统计缓存失效
func ProvideUsageRecorder(tx repository.Transactor, projects repository.ProjectRepository, logs repository.UsageLogRepository, stats quota.StatsInvalidator) *quota.UsageRecorder {
	return quota.NewUsageRecorder(tx, projects, logs).WithStatsInvalidator(stats)
}

// ProvideUsageReporter 用量统计查询
func ProvideUsageReporter(cfg *config.Config, logs repository.UsageLogRepository, projects repository.ProjectRepository, cache quota.StatsCache) *quota.UsageReporter {
	return quota.NewUsageReporter(logs, projects, cache, cfg.Budget.StatsCacheTTL)
}

// ProvideOrchestrator 生成编排器
func ProvideOrchestrator(cfg *config.Config, providers service.ProviderResolver, budget service.BudgetChecker, ledger service.UsageRecorder) *generation.Orchestrator {
	return generation.NewOrchestrator(providers, budget, ledger, cfg.LLM.DefaultMaxTokens)
}

// ProvideHealthHandler 健康检查处理器
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rdb *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, pg, rdb)
}
