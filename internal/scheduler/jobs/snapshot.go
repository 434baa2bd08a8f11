package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/pkg/logger"
)

// SnapshotRefresher rebuilds the snapshot collection (market.Service)
type SnapshotRefresher interface {
	Refresh(ctx context.Context) (*contracts.SnapshotCollection, error)
}

// SnapshotRefreshJob keeps the snapshot cache warm; listeners (the ws hub) are
// notified by the service on every rebuild
// ⭐ SSOT: 스냅샷 주기 갱신은 이 Job에서만
type SnapshotRefreshJob struct {
	svc      SnapshotRefresher
	schedule string
	logger   *logger.Logger
}

// NewSnapshotRefreshJob creates a new snapshot refresh job
func NewSnapshotRefreshJob(svc SnapshotRefresher, schedule string, log *logger.Logger) *SnapshotRefreshJob {
	return &SnapshotRefreshJob{
		svc:      svc,
		schedule: schedule,
		logger:   log.WithField("job", "snapshot_refresh"),
	}
}

// Name returns the job name
func (j *SnapshotRefreshJob) Name() string {
	return "snapshot_refresh"
}

// Schedule returns the cron schedule
func (j *SnapshotRefreshJob) Schedule() string {
	return j.schedule
}

// Run rebuilds the collection
func (j *SnapshotRefreshJob) Run(ctx context.Context) error {
	c, err := j.svc.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh snapshots: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"epoch": c.Epoch().String(),
		"count": c.Len(),
	}).Debug("Snapshots refreshed")

	return nil
}
