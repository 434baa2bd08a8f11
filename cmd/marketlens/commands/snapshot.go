package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/internal/ranking"
)

// snapshotCmd represents the snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "전체 종목 스냅샷 조회",
	Long: `추적 종목 전체의 최근 시세 스냅샷과 시장 집계를 출력합니다.

Example:
  go run ./cmd/marketlens snapshot
  go run ./cmd/marketlens snapshot --symbols AAPL,MSFT,KO`,
	RunE: runSnapshot,
}

var (
	rankMetric string
	rankOrder  string
	rankN      int
)

// rankCmd represents the rank command
var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "지표별 상위/하위 종목",
	Long: `스냅샷을 지표 기준으로 정렬해 상위(또는 하위) N개를 출력합니다.

Metrics: change, volume, market_cap, price, dividend_yield, pe_ratio
값이 없는 종목(전일 종가 0, P/E 없음)은 정렬 방향과 무관하게 뒤로 갑니다.

Example:
  go run ./cmd/marketlens rank
  go run ./cmd/marketlens rank --metric volume --n 5
  go run ./cmd/marketlens rank --metric change --order asc`,
	RunE: runRank,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().StringVar(&rankMetric, "metric", "change", "정렬 지표")
	rankCmd.Flags().StringVar(&rankOrder, "order", "desc", "desc (상위) | asc (하위)")
	rankCmd.Flags().IntVarP(&rankN, "n", "n", 10, "출력 개수")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := a.opContext(cmd.Context())
	defer cancel()

	start := time.Now()
	c, err := a.svc.GetSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("build snapshots: %w", err)
	}

	PrintHeader("Market Snapshot", fmt.Sprintf("%d/%d symbols, fetched %s", c.Len(), len(a.svc.Symbols()), c.FetchedAt().Format(time.RFC3339)))
	PrintSnapshots(c.All())

	agg := ranking.Aggregate(c)
	fmt.Println()
	PrintKeyValue("Total market cap", formatCount(agg.TotalMarketCap), 18)
	PrintKeyValue("Total volume", formatCount(float64(agg.TotalVolume)), 18)
	PrintKeyValue("Advancers/Decliners", fmt.Sprintf("%d / %d (%d unchanged)", agg.Advancers, agg.Decliners, agg.Unchanged), 18)
	if agg.ChangeCount > 0 {
		PrintKeyValue("Mean change", fmt.Sprintf("%+.2f%%", agg.MeanChange), 18)
	}
	if agg.PECount > 0 {
		PrintKeyValue("Mean P/E", fmt.Sprintf("%.1f", agg.MeanPE), 18)
	}

	fmt.Println()
	fmt.Println("Sectors:")
	for _, g := range ranking.GroupBySector(c) {
		fmt.Printf("   %-24s %6.1f%%  %s (%d)\n", g.Sector, g.Share*100, formatCount(g.MarketCap), g.Count)
	}

	fmt.Println()
	PrintSuccess(fmt.Sprintf("Done in %.2fs", time.Since(start).Seconds()))
	return nil
}

func runRank(cmd *cobra.Command, args []string) error {
	metric, err := ranking.ParseMetric(rankMetric)
	if err != nil {
		return err
	}
	order, err := ranking.ParseOrder(rankOrder)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := a.opContext(cmd.Context())
	defer cancel()

	items, err := a.svc.GetRanked(ctx, rankN, metric, order)
	if err != nil {
		return fmt.Errorf("rank: %w", err)
	}

	label := "Top"
	if order == ranking.Asc {
		label = "Bottom"
	}
	PrintHeader(fmt.Sprintf("%s %d by %s", label, len(items), metric), "")
	PrintSnapshots(items)
	return nil
}
