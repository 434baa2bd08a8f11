package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/internal/ranking"
)

// compareCmd represents the compare command
var compareCmd = &cobra.Command{
	Use:   "compare [symbol_a] [symbol_b]",
	Short: "두 종목 비교",
	Long: `두 종목의 스냅샷 지표를 나란히 비교합니다 (차이 = A - B).

Example:
  go run ./cmd/marketlens compare AAPL MSFT`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

var compareMetrics = []ranking.Metric{
	ranking.MetricPrice,
	ranking.MetricChange,
	ranking.MetricVolume,
	ranking.MetricMarketCap,
	ranking.MetricPERatio,
	ranking.MetricDividendYield,
}

func runCompare(cmd *cobra.Command, args []string) error {
	symA, symB := contracts.NormalizeSymbol(args[0]), contracts.NormalizeSymbol(args[1])

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := a.opContext(cmd.Context())
	defer cancel()

	cmp, err := a.svc.Compare(ctx, symA, symB)
	if err != nil {
		return fmt.Errorf("compare: %w", err)
	}

	PrintHeader(fmt.Sprintf("%s vs %s", cmp.A.Symbol, cmp.B.Symbol), fmt.Sprintf("%s | %s", cmp.A.Name, cmp.B.Name))

	widths := []int{16, 14, 14, 14}
	PrintTableHeader([]string{"METRIC", string(cmp.A.Symbol), string(cmp.B.Symbol), "DIFF"}, widths)
	for _, m := range compareMetrics {
		PrintTableRow([]string{
			string(m),
			metricString(cmp.A, m),
			metricString(cmp.B, m),
			formatOptional(cmp.Diffs[m]),
		}, widths)
	}
	return nil
}

func metricString(s contracts.StockSnapshot, m ranking.Metric) string {
	switch m {
	case ranking.MetricPrice:
		return fmt.Sprintf("%.2f", s.Price)
	case ranking.MetricChange:
		return formatPct(s.Change)
	case ranking.MetricVolume:
		return formatCount(float64(s.Volume))
	case ranking.MetricMarketCap:
		return formatCount(s.MarketCap)
	case ranking.MetricPERatio:
		return formatOptional(s.PERatio)
	case ranking.MetricDividendYield:
		return fmt.Sprintf("%.2f%%", s.DividendYield)
	}
	return "n/a"
}
