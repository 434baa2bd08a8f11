package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/internal/scheduler"
	"github.com/wonny/marketlens/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작 (HTTP 없이)
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Example:
  go run ./cmd/marketlens scheduler start
  go run ./cmd/marketlens scheduler list
  go run ./cmd/marketlens scheduler run history_warmup`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- snapshot_refresh: SCHEDULE_SNAPSHOT (기본 30초마다)
- history_warmup: SCHEDULE_HISTORY_WARMUP (기본 평일 06:30)
- cache_purge: SCHEDULE_CACHE_PURGE (기본 5분마다)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobOnce,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler registers the service jobs
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	opts := scheduler.DefaultOptions()
	opts.MaxRetries = a.cfg.Scheduler.MaxRetries
	opts.RetryDelay = a.cfg.Scheduler.RetryDelay
	opts.RunTimeout = 2 * a.cfg.Market.OpTimeout

	sched := scheduler.New(opts, a.log)
	for _, job := range schedulerJobs(a) {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func schedulerJobs(a *app) []scheduler.Job {
	sc := a.cfg.Scheduler
	return []scheduler.Job{
		jobs.NewSnapshotRefreshJob(a.svc, sc.SnapshotSchedule, a.log),
		jobs.NewHistoryWarmupJob(a.svc, sc.WarmupSchedule, a.log),
		jobs.NewCachePurgeJob(a.svc, sc.PurgeSchedule, a.log),
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()

	for name, stat := range sched.GetJobStats() {
		fmt.Printf("  %-18s runs=%d success=%.0f%% skipped=%d\n", name, stat.TotalRuns, stat.SuccessRate*100, stat.SkippedTicks)
	}
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("Registered jobs:")
	fmt.Printf("  - %-18s %s\n", "snapshot_refresh", cfg.Scheduler.SnapshotSchedule)
	fmt.Printf("  - %-18s %s\n", "history_warmup", cfg.Scheduler.WarmupSchedule)
	fmt.Printf("  - %-18s %s\n", "cache_purge", cfg.Scheduler.PurgeSchedule)

	return nil
}

func runJobOnce(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	for _, job := range schedulerJobs(a) {
		if job.Name() != jobName {
			continue
		}

		fmt.Printf("Running job: %s\n", jobName)
		ctx, cancel := a.opContext(cmd.Context())
		defer cancel()

		if err := job.Run(ctx); err != nil {
			return fmt.Errorf("run job: %w", err)
		}
		fmt.Println("✅ Job completed")
		return nil
	}

	return fmt.Errorf("job %s not found", jobName)
}
