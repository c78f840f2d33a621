package main

import (
	"os"

	"github.com/qiyuan/conceptrank/backend/cmd/conceptrank/commands"
)

// main is the entry point for the ConceptRank CLI
// ⭐ 统一 CLI 入口: go run ./cmd/conceptrank [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
