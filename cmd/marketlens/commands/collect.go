package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/internal/data"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "일별 종가 히스토리 수집 (Yahoo → PostgreSQL)",
	Long: `추적 종목의 일별 종가를 Yahoo에서 받아 market.daily_prices 에 저장합니다.
저장된 종가는 이후 예측 시 Yahoo보다 먼저 사용됩니다.

DATABASE_URL 이 필요합니다.

Example:
  go run ./cmd/marketlens collect
  go run ./cmd/marketlens collect --workers 8 --years 5`,
	RunE: runCollect,
}

var (
	collectWorkers int
	collectYears   float64
)

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().IntVar(&collectWorkers, "workers", 4, "동시 워커 수")
	collectCmd.Flags().Float64Var(&collectYears, "years", 0, "수집 기간(년) (0 = HISTORY_LOOKBACK_YEARS)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.repo == nil {
		return fmt.Errorf("collect requires DATABASE_URL")
	}

	years := collectYears
	if years <= 0 {
		years = a.cfg.Market.LookbackYears
	}
	symbols := a.svc.Symbols()

	PrintHeader("History Collection", fmt.Sprintf("%d symbols, %.1f years, %d workers", len(symbols), years, collectWorkers))

	start := time.Now()
	col := data.NewCollector(a.yahoo, a.repo, a.log)
	results, err := col.CollectAll(cmd.Context(), symbols, data.CollectConfig{
		Workers:       collectWorkers,
		LookbackYears: years,
	})
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	var saved, failed int
	for _, r := range results {
		if r.Error != nil {
			failed++
			fmt.Printf("   ❌ %-6s %v\n", r.Symbol, r.Error)
			continue
		}
		saved += r.Saved
	}

	fmt.Println()
	PrintKeyValue("Symbols", fmt.Sprintf("%d ok / %d failed", len(results)-failed, failed), 8)
	PrintKeyValue("Rows", fmt.Sprintf("%d upserted", saved), 8)
	PrintSuccess(fmt.Sprintf("Collection completed in %.2fs", time.Since(start).Seconds()))

	if failed == len(results) && failed > 0 {
		return fmt.Errorf("every symbol failed")
	}
	return nil
}
