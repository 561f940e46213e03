package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"proposal-ai-api/internal/config"
	"proposal-ai-api/internal/domain/entity"
	"proposal-ai-api/internal/wire"
	"proposal-ai-api/pkg/utils"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化数据层（仅 PostgreSQL）
	dataLayer, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	// 3. 建表
	if err := dataLayer.PgClient.AutoMigrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	fmt.Println("Schema migrated.")

	// 4. 创建默认项目；已设置 BOOTSTRAP_PROJECT_ID 且存在时跳过
	if id := os.Getenv("BOOTSTRAP_PROJECT_ID"); id != "" {
		existing, err := dataLayer.ProjectRepo.GetByID(ctx, id)
		if err != nil {
			log.Fatalf("failed to check project existence: %v", err)
		}
		if existing != nil {
			fmt.Printf("Default project already exists with ID: %s\n", existing.ID)
			issueOwnerToken(cfg, existing.OwnerID)
			fmt.Println("Bootstrap completed successfully.")
			return
		}
	}

	name := os.Getenv("BOOTSTRAP_PROJECT_NAME")
	if name == "" {
		name = "Default Proposal"
	}
	budget := cfg.Budget.DefaultProjectTokens
	if raw := os.Getenv("BOOTSTRAP_PROJECT_BUDGET"); raw != "" {
		if budget, err = strconv.ParseInt(raw, 10, 64); err != nil {
			log.Fatalf("invalid BOOTSTRAP_PROJECT_BUDGET: %v", err)
		}
	}

	project := entity.NewProject(os.Getenv("BOOTSTRAP_OWNER_ID"), name, budget, cfg.Budget.WarningThreshold)
	project.ID = os.Getenv("BOOTSTRAP_PROJECT_ID")
	if err := dataLayer.ProjectRepo.Create(ctx, project); err != nil {
		log.Fatalf("failed to create default project: %v", err)
	}
	fmt.Printf("Default project created with ID: %s (budget %d tokens)\n", project.ID, project.MaxTokenBudget)

	// 5. 为项目负责人签发管理员令牌
	issueOwnerToken(cfg, project.OwnerID)

	fmt.Println("Bootstrap completed successfully.")
}

// issueOwnerToken 启用 JWT 时打印负责人令牌
func issueOwnerToken(cfg *config.Config, ownerID string) {
	if !cfg.Security.JWT.Enabled || ownerID == "" {
		return
	}
	token, err := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer).
		GenerateToken(ownerID, utils.RoleAdmin, cfg.Security.JWT.Expiration)
	if err != nil {
		log.Fatalf("failed to issue owner token: %v", err)
	}
	fmt.Printf("Owner token (expires in %s): %s\n", cfg.Security.JWT.Expiration, token)
}
