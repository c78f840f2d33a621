package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qiyuan/conceptrank/backend/pkg/config"
	"github.com/qiyuan/conceptrank/backend/pkg/database"
	"github.com/qiyuan/conceptrank/backend/pkg/logger"
	"github.com/qiyuan/conceptrank/backend/pkg/redis"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "检查基础设施连接",
	Long: `检查数据库和 Redis 连接, 验证日志配置。

Example:
  go run ./cmd/conceptrank doctor`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ConceptRank Doctor ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Printf("✅ Config loaded (env=%s)\n", cfg.Env)

	log := logger.New(cfg)
	log.Debug("Logger initialized")
	fmt.Printf("✅ Logger ready (level=%s, format=%s)\n", cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("❌ database: %w", err)
	}
	defer db.Close()

	health, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("❌ database health check: %w", err)
	}
	fmt.Printf("✅ Database ok (latency=%s, conns=%d/%d)\n",
		health.ResponseTime, health.Stats.TotalConns, health.Stats.MaxConns)

	rds, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("❌ redis: %w", err)
	}
	defer rds.Close()

	if rds.Enabled() {
		if err := rds.Redis().Ping(ctx).Err(); err != nil {
			return fmt.Errorf("❌ redis ping: %w", err)
		}
		fmt.Println("✅ Redis ok")
	} else {
		fmt.Println("⚠️  Redis disabled (caching off)")
	}

	fmt.Println("\nAll checks passed")
	return nil
}
