package recorder

import (
	"context"
	"time"

	"github.com/wonny/marketlens/internal/contracts"
)

// NoopRecorder is used when RECORDER_ENABLED is off
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (NoopRecorder) RecordSnapshot(context.Context, *contracts.SnapshotCollection) error { return nil }
func (NoopRecorder) RecordForecast(context.Context, *contracts.ForecastResult, time.Duration) error {
	return nil
}
func (NoopRecorder) Close() error { return nil }
