package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/internal/contracts"
)

// forecastCmd represents the forecast command
var forecastCmd = &cobra.Command{
	Use:   "forecast [symbol]",
	Short: "종가 예측",
	Long: `일별 종가 히스토리로 추세(changepoint) + 주간/연간 계절성 모델을 학습하고
horizon 거래일 만큼 예측합니다.

출력:
- 요약: 현재가, 예측가, 변화율, ± 신뢰구간
- 예측 구간 일부 (--points)
- 최근 예측 실행 기록 (--runs, RECORDER_ENABLED=true 필요)

Example:
  go run ./cmd/marketlens forecast AAPL
  go run ./cmd/marketlens forecast AAPL --horizon 90 --points 10
  go run ./cmd/marketlens forecast KO --runs 5`,
	Args: cobra.ExactArgs(1),
	RunE: runForecast,
}

var (
	forecastHorizon int
	forecastPoints  int
	forecastRuns    int
)

func init() {
	rootCmd.AddCommand(forecastCmd)

	forecastCmd.Flags().IntVar(&forecastHorizon, "horizon", 0, "예측 거래일 수 (0 = FORECAST_HORIZON)")
	forecastCmd.Flags().IntVar(&forecastPoints, "points", 5, "출력할 예측 점 개수 (구간 전체에서 균등 간격)")
	forecastCmd.Flags().IntVar(&forecastRuns, "runs", 0, "최근 예측 실행 기록 개수")
}

func runForecast(cmd *cobra.Command, args []string) error {
	sym := contracts.NormalizeSymbol(args[0])

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	horizon, err := a.svc.ResolveHorizon(forecastHorizon)
	if err != nil {
		return err
	}

	ctx, cancel := a.opContext(cmd.Context())
	defer cancel()

	start := time.Now()
	res, err := a.svc.GetForecast(ctx, sym, horizon)
	if err != nil {
		return fmt.Errorf("forecast %s: %w", sym, err)
	}
	sum, err := a.svc.GetForecastSummary(ctx, sym, horizon)
	if err != nil {
		return fmt.Errorf("forecast summary %s: %w", sym, err)
	}

	PrintHeader(fmt.Sprintf("Forecast %s (%d trading days)", sym, horizon),
		fmt.Sprintf("trained on %d closes through %s", res.Model.Observations, res.LastObserved.Format("2006-01-02")))

	PrintKeyValue("Current price", fmt.Sprintf("%.2f (%s)", sum.CurrentPrice, sum.PriceSource), 16)
	PrintKeyValue("Predicted price", fmt.Sprintf("%.2f (%s)", sum.PredictedPrice, sum.TargetDate.Format("2006-01-02")), 16)
	PrintKeyValue("Change", formatPct(sum.ChangePercent), 16)
	PrintKeyValue("Interval", fmt.Sprintf("%.2f .. %.2f (± %.2f)", sum.Lower, sum.Upper, sum.Confidence), 16)
	PrintKeyValue("Changepoints", fmt.Sprintf("%d", res.Model.Changepoints), 16)
	PrintKeyValue("Seasonality", seasonality(res.Model), 16)

	if forecastPoints > 0 {
		fmt.Println()
		widths := []int{10, 10, 10, 10, 9, 8, 8}
		PrintTableHeader([]string{"DATE", "YHAT", "LOWER", "UPPER", "TREND", "WEEKLY", "YEARLY"}, widths)
		for _, p := range sample(res.Forecast(), forecastPoints) {
			PrintTableRow([]string{
				p.Date.Format("2006-01-02"),
				fmt.Sprintf("%.2f", p.Yhat),
				fmt.Sprintf("%.2f", p.Lower),
				fmt.Sprintf("%.2f", p.Upper),
				fmt.Sprintf("%.2f", p.Trend),
				fmt.Sprintf("%+.2f", p.Weekly),
				fmt.Sprintf("%+.2f", p.Yearly),
			}, widths)
		}
	}

	if forecastRuns > 0 {
		if err := printRecentRuns(cmd, a, sym); err != nil {
			return err
		}
	}

	fmt.Println()
	PrintSuccess(fmt.Sprintf("Done in %.2fs", time.Since(start).Seconds()))
	return nil
}

func printRecentRuns(cmd *cobra.Command, a *app, sym contracts.Symbol) error {
	fmt.Println()
	if a.sqlite == nil {
		PrintWarning("recorder disabled (RECORDER_ENABLED=false)")
		return nil
	}

	runs, err := a.sqlite.RecentForecasts(cmd.Context(), sym, forecastRuns)
	if err != nil {
		return fmt.Errorf("recent forecasts: %w", err)
	}

	fmt.Println("Recent runs:")
	for _, r := range runs {
		final := "n/a"
		if r.FinalYhat != nil {
			final = fmt.Sprintf("%.2f", *r.FinalYhat)
		}
		fmt.Printf("   %s  horizon=%-4d final=%-10s took=%s\n",
			r.GeneratedAt.Format("2006-01-02 15:04:05"), r.Horizon, final, r.Took.Round(time.Millisecond))
	}
	return nil
}

func seasonality(m contracts.ModelInfo) string {
	switch {
	case m.WeeklySeasonality && m.YearlySeasonality:
		return "weekly + yearly"
	case m.WeeklySeasonality:
		return "weekly"
	case m.YearlySeasonality:
		return "yearly"
	}
	return "none"
}

// sample picks n evenly spaced points, always including the last
func sample(points []contracts.ForecastPoint, n int) []contracts.ForecastPoint {
	if n >= len(points) {
		return points
	}
	if n == 1 {
		return points[len(points)-1:]
	}
	out := make([]contracts.ForecastPoint, 0, n)
	step := float64(len(points)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		out = append(out, points[int(float64(i)*step+0.5)])
	}
	return out
}
