package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/internal/api"
	"github.com/wonny/marketlens/internal/realtime"
	"github.com/wonny/marketlens/internal/scheduler"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API + WebSocket 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작 (스냅샷, 랭킹, 집계, 비교, 예측)
- /ws/snapshots 로 갱신된 스냅샷 push
- 기본으로 스케줄러(스냅샷 갱신, 히스토리 warm-up, 캐시 정리)를 같은 프로세스에서 실행

Endpoints:
  GET  /health
  GET  /api/snapshots
  GET  /api/snapshots/{symbol}
  GET  /api/ranking?metric=change&order=desc&n=10
  GET  /api/most-active?n=10
  GET  /api/aggregates
  GET  /api/sectors
  GET  /api/compare?a=AAPL&b=MSFT
  GET  /api/forecast/{symbol}?horizon=30&full=false
  GET  /api/forecast/{symbol}/summary?horizon=30
  POST /api/refresh
  GET  /api/cache/stats
  GET  /ws/snapshots

Example:
  go run ./cmd/marketlens api
  go run ./cmd/marketlens api --port 8080 --scheduler=false`,
	RunE: runAPIServer,
}

var (
	apiPort      string
	apiScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT 환경변수)")
	apiCmd.Flags().BoolVar(&apiScheduler, "scheduler", true, "스케줄러를 함께 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	log := a.log
	log.WithFields(map[string]interface{}{
		"port":    a.cfg.Port,
		"env":     a.cfg.Env,
		"symbols": len(a.svc.Symbols()),
	}).Info("Initializing API server")

	// 1. Push hub: every rebuilt collection goes to subscribers
	hub := realtime.NewHub(a.svc.Symbols(), log.Zerolog())
	a.svc.OnSnapshot(hub.Broadcast)

	// 2. Router + server
	router := api.NewRouter(a.svc, hub, log)
	server := api.New(a.cfg, log, router)

	// 3. Scheduler (optional)
	var sched *scheduler.Scheduler
	if apiScheduler {
		sched, err = newScheduler(a)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
	}

	// 4. Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
	}

	log.Info("Shutting down server...")

	if sched != nil {
		sched.Stop()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return serveErr
}
