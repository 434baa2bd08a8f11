package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/internal/market"
	"github.com/wonny/marketlens/pkg/logger"
)

// HistoryWarmer preloads daily history for the universe
type HistoryWarmer interface {
	WarmHistory(ctx context.Context) market.WarmResult
}

// HistoryWarmupJob loads every symbol's history before the forecast traffic arrives
type HistoryWarmupJob struct {
	svc      HistoryWarmer
	schedule string
	logger   *logger.Logger
}

// NewHistoryWarmupJob creates a new history warm-up job
func NewHistoryWarmupJob(svc HistoryWarmer, schedule string, log *logger.Logger) *HistoryWarmupJob {
	return &HistoryWarmupJob{
		svc:      svc,
		schedule: schedule,
		logger:   log.WithField("job", "history_warmup"),
	}
}

// Name returns the job name
func (j *HistoryWarmupJob) Name() string {
	return "history_warmup"
}

// Schedule returns the cron schedule
func (j *HistoryWarmupJob) Schedule() string {
	return j.schedule
}

// Run warms the history cache; fails only when nothing could be loaded
func (j *HistoryWarmupJob) Run(ctx context.Context) error {
	res := j.svc.WarmHistory(ctx)

	for sym, reason := range res.Failed {
		j.logger.WithFields(map[string]interface{}{
			"symbol": string(sym),
			"reason": reason,
		}).Debug("History warm-up skipped symbol")
	}

	if res.Loaded == 0 && len(res.Failed) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: history warm-up loaded nothing (%d failed)", contracts.ErrUnavailable, len(res.Failed))
	}
	return nil
}
