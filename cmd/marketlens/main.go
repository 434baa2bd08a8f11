package main

import (
	"os"

	"github.com/wonny/marketlens/cmd/marketlens/commands"
)

// main is the entry point for the marketlens CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/marketlens [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
