package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/wonny/marketlens/internal/contracts"
)

// SQLiteRecorder keeps an audit trail of snapshot epochs and forecast runs
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

var _ contracts.Recorder = (*SQLiteRecorder)(nil)

// NewSQLiteRecorder opens (or creates) the database and runs migrations
func NewSQLiteRecorder(path string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// API reads while the scheduler writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", path).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshot_epochs (
			epoch       TEXT PRIMARY KEY,
			fetched_at  INTEGER NOT NULL,
			count       INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot_items (
			epoch          TEXT NOT NULL,
			symbol         TEXT NOT NULL,
			price          REAL,
			prior_close    REAL,
			change_pct     REAL,
			volume         INTEGER,
			market_cap     REAL,
			pe_ratio       REAL,
			dividend_yield REAL,
			sector         TEXT,
			PRIMARY KEY (epoch, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_epochs_ts ON snapshot_epochs(fetched_at)`,

		`CREATE TABLE IF NOT EXISTS forecast_runs (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol          TEXT NOT NULL,
			generated_at    INTEGER NOT NULL,
			horizon         INTEGER NOT NULL,
			observations    INTEGER NOT NULL,
			last_observed   INTEGER,
			final_yhat      REAL,
			final_lower     REAL,
			final_upper     REAL,
			residual_std    REAL,
			took_ms         INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol ON forecast_runs(symbol, generated_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordSnapshot stores one collection epoch; re-recording the same epoch is a no-op
func (r *SQLiteRecorder) RecordSnapshot(ctx context.Context, c *contracts.SnapshotCollection) error {
	if c.Len() == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	epoch := c.Epoch().String()
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO snapshot_epochs (epoch, fetched_at, count) VALUES (?, ?, ?)`,
		epoch, c.FetchedAt().Unix(), c.Len())
	if err != nil {
		return fmt.Errorf("insert epoch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_items
		(epoch, symbol, price, prior_close, change_pct, volume, market_cap, pe_ratio, dividend_yield, sector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare items: %w", err)
	}
	defer stmt.Close()

	for _, s := range c.All() {
		if _, err := stmt.ExecContext(ctx, epoch, string(s.Symbol), s.Price, s.PriorClose,
			nullable(s.Change), s.Volume, s.MarketCap, nullable(s.PERatio), s.DividendYield, s.Sector); err != nil {
			return fmt.Errorf("insert %s: %w", s.Symbol, err)
		}
	}

	return tx.Commit()
}

// RecordForecast stores a summary row of one forecast run
func (r *SQLiteRecorder) RecordForecast(ctx context.Context, res *contracts.ForecastResult, took time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var yhat, lower, upper sql.NullFloat64
	if p, ok := res.Final(); ok {
		yhat = sql.NullFloat64{Float64: p.Yhat, Valid: true}
		lower = sql.NullFloat64{Float64: p.Lower, Valid: true}
		upper = sql.NullFloat64{Float64: p.Upper, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO forecast_runs
		(symbol, generated_at, horizon, observations, last_observed,
		 final_yhat, final_lower, final_upper, residual_std, took_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(res.Symbol), res.GeneratedAt.Unix(), res.Horizon, res.Model.Observations, res.LastObserved.Unix(),
		yhat, lower, upper, res.Model.ResidualStd, took.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert forecast run: %w", err)
	}
	return nil
}

// ForecastRun is one recorded forecast
type ForecastRun struct {
	Symbol      contracts.Symbol `json:"symbol"`
	GeneratedAt time.Time        `json:"generated_at"`
	Horizon     int              `json:"horizon"`
	FinalYhat   *float64         `json:"final_yhat"`
	Took        time.Duration    `json:"took"`
}

// RecentForecasts returns the latest runs for a symbol, newest first
func (r *SQLiteRecorder) RecentForecasts(ctx context.Context, sym contracts.Symbol, limit int) ([]ForecastRun, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, generated_at, horizon, final_yhat, took_ms
		FROM forecast_runs WHERE symbol = ? ORDER BY generated_at DESC, id DESC LIMIT ?`, string(sym), limit)
	if err != nil {
		return nil, fmt.Errorf("query forecast runs: %w", err)
	}
	defer rows.Close()

	var out []ForecastRun
	for rows.Next() {
		var (
			run    ForecastRun
			symbol string
			ts     int64
			yhat   sql.NullFloat64
			ms     int64
		)
		if err := rows.Scan(&symbol, &ts, &run.Horizon, &yhat, &ms); err != nil {
			return nil, err
		}
		run.Symbol = contracts.Symbol(symbol)
		run.GeneratedAt = time.Unix(ts, 0).UTC()
		run.Took = time.Duration(ms) * time.Millisecond
		if yhat.Valid {
			run.FinalYhat = contracts.Float(yhat.Float64)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Close closes the database
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func nullable(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
