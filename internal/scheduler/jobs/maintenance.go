package jobs

import (
	"context"

	"github.com/wonny/marketlens/pkg/logger"
)

// CachePurger drops expired cache entries
type CachePurger interface {
	Purge() int
}

// CachePurgeJob cleans expired entries from the in-process caches
type CachePurgeJob struct {
	cache    CachePurger
	schedule string
	logger   *logger.Logger
}

// NewCachePurgeJob creates a new cache purge job
func NewCachePurgeJob(c CachePurger, schedule string, log *logger.Logger) *CachePurgeJob {
	return &CachePurgeJob{
		cache:    c,
		schedule: schedule,
		logger:   log.WithField("job", "cache_purge"),
	}
}

// Name returns the job name
func (j *CachePurgeJob) Name() string {
	return "cache_purge"
}

// Schedule returns the cron schedule
func (j *CachePurgeJob) Schedule() string {
	return j.schedule
}

// Run executes the cache purge
func (j *CachePurgeJob) Run(ctx context.Context) error {
	count := j.cache.Purge()

	if count > 0 {
		j.logger.WithField("removed", count).Info("Cache purge completed")
	}

	return nil
}
