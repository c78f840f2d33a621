package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qiyuan/conceptrank/backend/internal/api"
	"github.com/qiyuan/conceptrank/backend/internal/api/handlers"
	"github.com/qiyuan/conceptrank/backend/internal/compute"
	"github.com/qiyuan/conceptrank/backend/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "启动 API 服务器",
	Long: `启动 REST API 服务器。

这个命令:
- 启动 HTTP API 服务器
- 提供文件上传导入入口
- 提供排名与汇总查询

Endpoints:
  GET  /health                                  - Health check
  POST /api/admin/import/upload                 - 上传指标/成员文件
  GET  /api/admin/import/batches                - 批次列表
  GET  /api/admin/import/batches/{id}           - 批次详情
  POST /api/admin/import/batches/{id}/recompute - 重新计算
  GET  /api/admin/metrics                       - 指标类型列表
  GET  /api/rankings/{conceptID}                - 概念排名
  GET  /api/summaries/{conceptID}               - 概念汇总

Example:
  go run ./cmd/conceptrank api
  go run ./cmd/conceptrank api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 服务器端口")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ConceptRank API Server ===")

	// 1. Load config and wire the pipeline
	d, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	// Override port if flag is set
	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	d.log.WithFields(map[string]interface{}{
		"port": d.cfg.Port,
		"env":  d.cfg.Env,
	}).Info("Initializing API server")

	// 2. Create handlers
	cache := redis.NewCache(d.rds, "conceptrank")
	computeRepo := compute.NewRepository(d.db.Pool)
	importHandler := handlers.NewImportHandler(d.cfg, d.registry, d.importer, d.engine, cache, d.log)
	rankingHandler := handlers.NewRankingHandler(computeRepo, cache, d.log)

	// 3. Create router and server
	router := api.NewRouter(importHandler, rankingHandler, d.log)
	server := api.New(d.cfg, d.log, router)

	// 4. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			d.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", d.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	d.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	d.log.Info("Server stopped")
	return nil
}
