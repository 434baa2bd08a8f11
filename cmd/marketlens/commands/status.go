package commands

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "설정 및 연결 상태 점검",
	Long: `현재 설정과 선택적 저장소(PostgreSQL, Redis, sqlite recorder)의 연결 상태를 출력합니다.

Example:
  go run ./cmd/marketlens status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	PrintHeader("marketlens status", "ENV: "+cfg.Env)

	fmt.Println("⚙️  Configuration")
	PrintKeyValue("Symbols", fmt.Sprintf("%d (%s)", len(a.svc.Symbols()), joinSymbols(a)), 16)
	PrintKeyValue("Snapshot TTL", cfg.Market.SnapshotTTL.String(), 16)
	PrintKeyValue("History TTL", cfg.Market.HistoryTTL.String(), 16)
	PrintKeyValue("Lookback", fmt.Sprintf("%.1f years", cfg.Market.LookbackYears), 16)
	PrintKeyValue("Op timeout", cfg.Market.OpTimeout.String(), 16)
	PrintKeyValue("Horizon", fmt.Sprintf("%d (range %d..%d)", cfg.Forecast.DefaultHorizon, cfg.Forecast.MinHorizon, cfg.Forecast.MaxHorizon), 16)
	PrintKeyValue("Yahoo pacing", fmt.Sprintf("%.1f req/s, burst %d", cfg.Yahoo.RateLimit, cfg.Yahoo.Burst), 16)
	fmt.Println()

	fmt.Println("🗄️  PostgreSQL")
	if a.db == nil {
		PrintKeyValue("State", "disabled (DATABASE_URL unset)", 16)
	} else {
		PrintKeyValue("URL", redactURL(cfg.Database.URL), 16)
		health, err := a.db.HealthCheck(ctx)
		if err != nil {
			PrintKeyValue("State", "❌ "+err.Error(), 16)
		} else {
			PrintKeyValue("State", fmt.Sprintf("✅ healthy (%v)", health.ResponseTime.Round(time.Microsecond)), 16)
			PrintKeyValue("Pool", fmt.Sprintf("%d/%d conns, %d idle", health.Stats.TotalConns, health.Stats.MaxConns, health.Stats.IdleConns), 16)
		}
		if stored, err := a.repo.StoredSymbols(ctx); err == nil {
			PrintKeyValue("Stored symbols", fmt.Sprintf("%d", len(stored)), 16)
		}
	}
	fmt.Println()

	fmt.Println("🧰 Redis")
	if !a.rdb.Enabled() {
		PrintKeyValue("State", "disabled", 16)
	} else if err := a.rdb.Redis().Ping(ctx).Err(); err != nil {
		PrintKeyValue("State", "❌ "+err.Error(), 16)
	} else {
		PrintKeyValue("State", fmt.Sprintf("✅ %s:%s db=%d", cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.DB), 16)
	}
	fmt.Println()

	fmt.Println("📝 Recorder")
	if a.sqlite == nil {
		PrintKeyValue("State", "disabled", 16)
	} else {
		PrintKeyValue("State", "✅ "+cfg.Recorder.Path, 16)
	}

	return nil
}

func joinSymbols(a *app) string {
	syms := a.svc.Symbols()
	parts := make([]string, 0, len(syms))
	for i, s := range syms {
		if i == 8 {
			parts = append(parts, "…")
			break
		}
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ",")
}

// redactURL hides the password of a connection URL
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
