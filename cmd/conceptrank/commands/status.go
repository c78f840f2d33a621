package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qiyuan/conceptrank/backend/internal/membership"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看导入批次状态",
	Long: `显示最近的导入批次和成员索引概况。

表示信息:
- 最近批次及其状态/行数统计
- 每个状态的批次数量
- 成员索引规模 (股票数, 概念数)

Example:
  go run ./cmd/conceptrank status
  go run ./cmd/conceptrank status --limit 20
  go run ./cmd/conceptrank status --status failed`,
	RunE: runStatus,
}

var (
	statusLimit  int
	statusFilter string
)

func init() {
	rootCmd.AddCommand(statusCmd)

	// Flags
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "显示批次数量")
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "状态过滤 (pending|processing|completed|failed|replaced)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ConceptRank Status ===")

	d, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()

	idx, err := membership.BuildIndex(ctx, d.db.Pool)
	if err != nil {
		return fmt.Errorf("build membership index: %w", err)
	}
	fmt.Printf("\nMembership: %d stocks, %d concepts\n\n", idx.StockCount(), idx.ConceptCount())

	batches, err := d.registry.List(ctx, statusFilter, 1, statusLimit)
	if err != nil {
		return fmt.Errorf("list batches: %w", err)
	}

	if len(batches) == 0 {
		fmt.Println("No batches found")
		return nil
	}

	fmt.Printf("%-6s %-28s %-5s %-10s %-10s %10s %8s\n",
		"ID", "FILE", "TYPE", "STATUS", "COMPUTE", "ROWS", "ERRORS")
	for _, b := range batches {
		name := b.FileName
		if len(name) > 28 {
			name = name[:25] + "..."
		}
		fmt.Printf("%-6d %-28s %-5s %-10s %-10s %10d %8d\n",
			b.ID, name, b.FileType, b.Status, b.ComputeState, b.TotalRows, b.ErrorRows)
	}

	return nil
}
