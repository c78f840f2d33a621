package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qiyuan/conceptrank/backend/migrations"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "应用数据库 schema",
	Long: `按顺序应用内置的 SQL migration 文件。

所有文件可重复执行, 已存在的对象会被跳过。

Example:
  go run ./cmd/conceptrank migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ConceptRank Migrate ===")

	d, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := migrations.Apply(context.Background(), d.db.Pool); err != nil {
		return err
	}

	fmt.Println("✅ Schema up to date")
	return nil
}
