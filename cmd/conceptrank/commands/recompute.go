package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// recomputeCmd represents the recompute command
var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "重新计算批次的派生数据",
	Long: `对一个已完成的导入批次重新计算排名和汇总。

使用当前的成员映射重新派生, 原始行数据保持不变。
同一批次重复执行结果一致。

Example:
  go run ./cmd/conceptrank recompute --batch 42`,
	RunE: runRecompute,
}

var (
	recomputeBatchID int64
)

func init() {
	rootCmd.AddCommand(recomputeCmd)

	// Flags
	recomputeCmd.Flags().Int64Var(&recomputeBatchID, "batch", 0, "批次 ID (必填)")
	recomputeCmd.MarkFlagRequired("batch")
}

func runRecompute(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ConceptRank Recompute ===")
	fmt.Printf("Batch: #%d\n\n", recomputeBatchID)

	d, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := d.engine.RecomputeBatch(context.Background(), recomputeBatchID); err != nil {
		return fmt.Errorf("recompute failed: %w", err)
	}

	fmt.Println("✅ Recompute completed")
	return nil
}
