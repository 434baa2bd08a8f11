package scheduler

import (
	"context"
	"time"
)

// Job is one unit of scheduled work (snapshot refresh, history warm-up, cache purge)
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
//
// Run errors are classified with contracts.IsRetryable: transient upstream
// failures are retried up to Options.MaxRetries, anything else fails the run
// at once. Each attempt gets Options.RunTimeout.
type Job interface {
	Name() string
	Run(ctx context.Context) error

	// Schedule is a cron expression with a seconds field,
	// e.g. "*/30 * * * * *" or "0 30 6 * * 1-5"
	Schedule() string
}

// JobResult is one run, all its attempts included
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Retryable bool          `json:"retryable,omitempty"` // last error was transient
	Error     string        `json:"error,omitempty"`
}

const maxHistory = 100

// JobHistory keeps the last maxHistory runs of a job (oldest first)
// plus counters that survive trimming
type JobHistory struct {
	Results []JobResult

	total, failed, skipped int
	lastSuccess            *time.Time
	lastFailure            *time.Time
}

// AddResult records a finished run
func (h *JobHistory) AddResult(result JobResult) {
	h.total++
	at := result.StartTime
	if result.Success {
		h.lastSuccess = &at
	} else {
		h.failed++
		h.lastFailure = &at
	}

	h.Results = append(h.Results, result)
	if len(h.Results) > maxHistory {
		h.Results = h.Results[len(h.Results)-maxHistory:]
	}
}

// AddSkip records a tick dropped because the previous run was still going
func (h *JobHistory) AddSkip() {
	h.skipped++
}

// Latest returns the last n runs
func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n <= 0 {
		return []JobResult{}
	}
	return append([]JobResult(nil), h.Results[len(h.Results)-n:]...)
}

// Stats summarizes every run recorded so far
func (h *JobHistory) Stats(name, schedule string) JobStats {
	st := JobStats{
		JobName:      name,
		Schedule:     schedule,
		TotalRuns:    h.total,
		SuccessCount: h.total - h.failed,
		FailureCount: h.failed,
		SkippedTicks: h.skipped,
		LastSuccess:  h.lastSuccess,
		LastFailure:  h.lastFailure,
	}
	if h.total > 0 {
		st.SuccessRate = float64(st.SuccessCount) / float64(h.total)
	}
	if n := len(h.Results); n > 0 {
		last := h.Results[n-1]
		st.LastRun = &last.StartTime
		st.LastAttempts = last.Attempts
	}
	return st
}

// JobStats is the per-job summary printed when the scheduler stops
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SkippedTicks int        `json:"skipped_ticks"`
	SuccessRate  float64    `json:"success_rate"`
	LastAttempts int        `json:"last_attempts"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}
