package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "conceptrank",
	Short: "ConceptRank - 概念板块交易指标排名系统",
	Long: `ConceptRank Unified CLI

股票交易指标导入与概念板块排名计算系统。
支持指标文件批量导入、成员映射维护、排名与汇总派生。

Usage:
  go run ./cmd/conceptrank [command]

Examples:
  go run ./cmd/conceptrank api
  go run ./cmd/conceptrank import netinflow_20240115.txt
  go run ./cmd/conceptrank worker
  go run ./cmd/conceptrank status`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
