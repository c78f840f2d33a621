package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qiyuan/conceptrank/backend/internal/batch"
	"github.com/qiyuan/conceptrank/backend/internal/contracts"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "导入指标或成员文件",
	Long: `从本地文件导入交易指标数据或概念成员映射。

文件类型:
  .txt - 指标文件 (代码 日期 数值, 制表符分隔)
  .csv - 成员映射文件 (股票代码, 股票名称, 概念, 行业)

指标和日期默认从文件名推断, 也可以显式指定。

Example:
  go run ./cmd/conceptrank import netinflow_20240115.txt
  go run ./cmd/conceptrank import mapping.csv
  go run ./cmd/conceptrank import data.txt --metric netinflow --date 2024-01-15`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importMetricCode string
	importDate       string
)

func init() {
	rootCmd.AddCommand(importCmd)

	// Flags
	importCmd.Flags().StringVar(&importMetricCode, "metric", "", "指标代码 (默认从文件名推断)")
	importCmd.Flags().StringVar(&importDate, "date", "", "数据日期 YYYY-MM-DD (默认从文件名/内容推断)")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]

	fmt.Println("=== ConceptRank Import ===")
	fmt.Printf("File: %s\n\n", path)

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	d, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	in := batch.NewBatch{
		FileName:   filepath.Base(path),
		FileType:   fileTypeOf(path),
		Content:    content,
		MetricCode: importMetricCode,
	}
	if importDate != "" {
		date, err := time.Parse("2006-01-02", importDate)
		if err != nil {
			return fmt.Errorf("invalid --date (want YYYY-MM-DD): %w", err)
		}
		in.DataDate = &date
	}

	ctx := context.Background()

	b, err := d.registry.CreateBatch(ctx, in)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}

	fmt.Printf("Batch #%d created (%s, %d bytes)\n", b.ID, b.FileType, b.FileSize)

	if err := d.importer.Run(ctx, b, content); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	final, err := d.registry.Get(ctx, b.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ Import completed\n")
	fmt.Printf("   Status:  %s / compute %s\n", final.Status, final.ComputeState)
	fmt.Printf("   Rows:    %d total, %d ok, %d errors\n",
		final.TotalRows, final.SuccessRows, final.ErrorRows)
	if final.MetricCode != "" && final.DataDate != nil {
		fmt.Printf("   Slice:   %s @ %s\n", final.MetricCode, final.DataDate.Format("2006-01-02"))
	}

	return nil
}

func fileTypeOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return contracts.FileTypeCSV
	}
	return contracts.FileTypeTXT
}
