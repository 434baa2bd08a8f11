package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose     bool
	symbolsFlag []string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "marketlens",
	Short: "marketlens - 시세 스냅샷, 랭킹, 가격 예측",
	Long: `marketlens Unified CLI

추적 종목의 최근 시세 스냅샷, 랭킹/집계, 일별 종가 기반 예측을 제공합니다.
모든 뷰는 하나의 market.Service (TTL 캐시)를 공유합니다.

Usage:
  go run ./cmd/marketlens [command]

Examples:
  go run ./cmd/marketlens api
  go run ./cmd/marketlens snapshot
  go run ./cmd/marketlens rank --metric change --n 5
  go run ./cmd/marketlens forecast AAPL --horizon 90
  go run ./cmd/marketlens compare AAPL MSFT
  go run ./cmd/marketlens collect
  go run ./cmd/marketlens scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug 로그 출력")
	rootCmd.PersistentFlags().StringSliceVar(&symbolsFlag, "symbols", nil, "종목 목록 (SYMBOLS 환경변수보다 우선)")
}
