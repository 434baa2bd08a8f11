package contracts

import (
	"context"
	"time"
)

// QuoteSource supplies the two latest sessions and static attributes.
// FetchBars may omit symbols (partial) or fail as a whole (batch).
// ⭐ SSOT: 시세 소스 인터페이스
type QuoteSource interface {
	FetchBars(ctx context.Context, symbols []Symbol) (map[Symbol]BarPair, error)
	FetchProfile(ctx context.Context, symbol Symbol) (*Profile, error)
}

// HistorySource supplies a daily close series over a lookback window.
// Fails with ErrNotFound or ErrUnavailable.
// ⭐ SSOT: 히스토리 소스 인터페이스
type HistorySource interface {
	FetchHistory(ctx context.Context, symbol Symbol, lookbackYears float64) (HistoricalSeries, error)
}

// HistoryStore persists fetched series (collect command)
type HistoryStore interface {
	SaveHistory(ctx context.Context, series HistoricalSeries) (int, error)
}

// Recorder keeps an audit trail of snapshot epochs and forecast runs
type Recorder interface {
	RecordSnapshot(ctx context.Context, c *SnapshotCollection) error
	RecordForecast(ctx context.Context, r *ForecastResult, took time.Duration) error
	Close() error
}
