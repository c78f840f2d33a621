package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qiyuan/conceptrank/backend/internal/scheduler"
	"github.com/qiyuan/conceptrank/backend/internal/scheduler/jobs"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "启动后台导入工作进程",
	Long: `启动后台工作进程, 处理排队的导入批次。

这个进程:
- 轮询上传暂存目录, 导入待处理批次
- 每日维护: 清理过期暂存文件, 标记僵死批次
- Graceful shutdown 支持

Example:
  go run ./cmd/conceptrank worker`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ConceptRank Background Worker ===")

	d, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Spool dir:     %s\n", d.cfg.Import.UploadDir)
	fmt.Printf("Poll interval: %s\n", d.cfg.Import.PollInterval)
	fmt.Printf("Parse workers: %d\n\n", d.cfg.Import.Workers)

	sched := scheduler.New(d.log)

	if err := sched.AddJob(jobs.NewPendingImportsJob(d.cfg, d.registry, d.importer, d.log)); err != nil {
		return err
	}
	if err := sched.AddJob(jobs.NewMaintenanceJob(d.cfg, d.db.Pool, d.log)); err != nil {
		return err
	}

	sched.Start()

	fmt.Println("🚀 Worker started")
	fmt.Println("   Press Ctrl+C to stop gracefully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	sched.Stop()
	return nil
}
