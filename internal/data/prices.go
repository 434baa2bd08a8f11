package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/marketlens/internal/contracts"
)

// PriceRepository stores daily closes in market.daily_prices
// ⭐ SSOT: 가격 히스토리 저장소는 여기서만
type PriceRepository struct {
	pool     *pgxpool.Pool
	maxStale time.Duration
	now      func() time.Time
}

var (
	_ contracts.HistorySource = (*PriceRepository)(nil)
	_ contracts.HistoryStore  = (*PriceRepository)(nil)
)

// NewPriceRepository creates a new price repository.
// A stored series whose last day is older than maxStale is treated as missing.
func NewPriceRepository(pool *pgxpool.Pool, maxStale time.Duration) *PriceRepository {
	return &PriceRepository{pool: pool, maxStale: maxStale, now: time.Now}
}

// FetchHistory reads the stored series within the lookback window
func (r *PriceRepository) FetchHistory(ctx context.Context, sym contracts.Symbol, lookbackYears float64) (contracts.HistoricalSeries, error) {
	from := contracts.DayOf(r.now().AddDate(0, 0, -int(lookbackYears*365.25)))

	query := `
		SELECT trade_date, close_price
		FROM market.daily_prices
		WHERE symbol = $1 AND trade_date >= $2
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, string(sym), from)
	if err != nil {
		return contracts.HistoricalSeries{}, fmt.Errorf("query daily prices: %w", err)
	}

	pts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.PricePoint, error) {
		var p contracts.PricePoint
		err := row.Scan(&p.Date, &p.Close)
		return p, err
	})
	if err != nil {
		return contracts.HistoricalSeries{}, fmt.Errorf("scan daily prices: %w", err)
	}

	series := contracts.NewHistoricalSeries(sym, pts)
	last, ok := series.Last()
	if !ok {
		return series, contracts.NewFetchError("history.db", sym, contracts.ErrNotFound, nil)
	}
	if r.maxStale > 0 && r.now().Sub(last.Date) > r.maxStale {
		return series, contracts.NewFetchError("history.db", sym, contracts.ErrNotFound,
			fmt.Errorf("stale since %s", last.Date.Format("2006-01-02")))
	}
	return series, nil
}

// SaveHistory upserts the series and returns the number of rows written
func (r *PriceRepository) SaveHistory(ctx context.Context, series contracts.HistoricalSeries) (int, error) {
	if series.Len() == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO market.daily_prices (symbol, trade_date, close_price, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			close_price = EXCLUDED.close_price,
			updated_at = now()
	`

	batch := &pgx.Batch{}
	for _, p := range series.Points {
		batch.Queue(query, string(series.Symbol), p.Date, p.Close)
	}

	br := r.pool.SendBatch(ctx, batch)
	saved := 0
	var errs []error
	for range series.Points {
		if _, err := br.Exec(); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	if err := br.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return saved, fmt.Errorf("save %s history: %w", series.Symbol, errors.Join(errs...))
	}
	return saved, nil
}

// StoredSymbols lists symbols with at least one stored close
func (r *PriceRepository) StoredSymbols(ctx context.Context) ([]contracts.Symbol, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT symbol FROM market.daily_prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.Symbol, error) {
		var s string
		err := row.Scan(&s)
		return contracts.Symbol(s), err
	})
}
