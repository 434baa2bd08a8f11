package market

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/marketlens/internal/cache"
	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/internal/forecast"
	"github.com/wonny/marketlens/internal/ranking"
	"github.com/wonny/marketlens/internal/snapshot"
	"github.com/wonny/marketlens/pkg/config"
)

const universeKey = "universe"

// Options configures the service
type Options struct {
	Symbols       []contracts.Symbol
	SnapshotTTL   time.Duration
	HistoryTTL    time.Duration
	LookbackYears float64
	OpTimeout     time.Duration
	Concurrency   int

	DefaultHorizon int
	MinHorizon     int
	MaxHorizon     int

	Clock func() time.Time
}

// OptionsFromConfig maps the env config onto service options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Symbols:        contracts.ParseSymbols(cfg.Market.Symbols),
		SnapshotTTL:    cfg.Market.SnapshotTTL,
		HistoryTTL:     cfg.Market.HistoryTTL,
		LookbackYears:  cfg.Market.LookbackYears,
		OpTimeout:      cfg.Market.OpTimeout,
		Concurrency:    cfg.Market.Concurrency,
		DefaultHorizon: cfg.Forecast.DefaultHorizon,
		MinHorizon:     cfg.Forecast.MinHorizon,
		MaxHorizon:     cfg.Forecast.MaxHorizon,
	}
}

type forecastKey struct {
	symbol  contracts.Symbol
	horizon int
}

// Service is the one shared entry point for every presentation view
// ⭐ SSOT: 캐시 인스턴스는 데이터 종류별로 하나, 모든 뷰가 이 서비스를 공유
type Service struct {
	opts     Options
	builder  *snapshot.Builder
	history  contracts.HistorySource
	engine   *forecast.Engine
	recorder contracts.Recorder

	snapshots *cache.Cache[string, *contracts.SnapshotCollection]
	histories *cache.Cache[contracts.Symbol, contracts.HistoricalSeries]
	forecasts *cache.Cache[forecastKey, *contracts.ForecastResult]

	mu        sync.RWMutex
	listeners []func(*contracts.SnapshotCollection)

	log zerolog.Logger
}

// NewService wires the caches around the builder, history source and engine.
// recorder may be nil.
func NewService(
	opts Options,
	builder *snapshot.Builder,
	history contracts.HistorySource,
	engine *forecast.Engine,
	recorder contracts.Recorder,
	log zerolog.Logger,
) (*Service, error) {
	if len(opts.Symbols) == 0 {
		return nil, fmt.Errorf("%w: empty symbol universe", contracts.ErrInvalidArgument)
	}
	if opts.SnapshotTTL <= 0 || opts.HistoryTTL <= 0 {
		return nil, fmt.Errorf("%w: TTLs must be positive", contracts.ErrInvalidArgument)
	}
	if opts.MinHorizon <= 0 || opts.MinHorizon > opts.MaxHorizon {
		return nil, fmt.Errorf("%w: horizon bounds [%d, %d]", contracts.ErrInvalidArgument, opts.MinHorizon, opts.MaxHorizon)
	}
	if opts.DefaultHorizon < opts.MinHorizon || opts.DefaultHorizon > opts.MaxHorizon {
		return nil, fmt.Errorf("%w: default horizon %d", contracts.ErrInvalidHorizon, opts.DefaultHorizon)
	}
	if opts.LookbackYears <= 0 {
		opts.LookbackYears = 2
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	log = log.With().Str("component", "market").Logger()

	s := &Service{
		opts:     opts,
		builder:  builder,
		history:  history,
		engine:   engine,
		recorder: recorder,
		log:      log,
	}

	// snapshots: never serve arbitrarily stale quotes
	s.snapshots = cache.New[string, *contracts.SnapshotCollection](cache.Options{
		Name:      "snapshots",
		OpTimeout: opts.OpTimeout,
		Policy:    cache.PropagateOnError,
		Clock:     opts.Clock,
		Logger:    log,
	})
	// closed trading days do not change intraday
	s.histories = cache.New[contracts.Symbol, contracts.HistoricalSeries](cache.Options{
		Name:      "histories",
		OpTimeout: opts.OpTimeout,
		Policy:    cache.ServeStaleOnError,
		Clock:     opts.Clock,
		Logger:    log,
	})
	s.forecasts = cache.New[forecastKey, *contracts.ForecastResult](cache.Options{
		Name:      "forecasts",
		OpTimeout: opts.OpTimeout,
		Policy:    cache.PropagateOnError,
		Clock:     opts.Clock,
		Logger:    log,
	})

	return s, nil
}

// Symbols returns the tracked universe
func (s *Service) Symbols() []contracts.Symbol {
	return append([]contracts.Symbol(nil), s.opts.Symbols...)
}

// OnSnapshot registers fn to run after every successful snapshot refresh
func (s *Service) OnSnapshot(fn func(*contracts.SnapshotCollection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// GetSnapshots returns the current collection, rebuilding it once the TTL has passed
func (s *Service) GetSnapshots(ctx context.Context) (*contracts.SnapshotCollection, error) {
	return s.snapshots.GetOrCompute(ctx, universeKey, s.opts.SnapshotTTL, s.buildSnapshots)
}

func (s *Service) buildSnapshots(ctx context.Context) (*contracts.SnapshotCollection, error) {
	c, err := s.builder.Build(ctx, s.opts.Symbols)
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		if err := s.recorder.RecordSnapshot(ctx, c); err != nil {
			s.log.Warn().Err(err).Msg("record snapshot failed")
		}
	}

	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}

	return c, nil
}

// GetSnapshot returns one symbol from the current collection
func (s *Service) GetSnapshot(ctx context.Context, sym contracts.Symbol) (contracts.StockSnapshot, error) {
	c, err := s.GetSnapshots(ctx)
	if err != nil {
		return contracts.StockSnapshot{}, err
	}
	snap, ok := c.Get(sym)
	if !ok {
		return contracts.StockSnapshot{}, fmt.Errorf("%w: %s not in current snapshot", contracts.ErrNotFound, sym)
	}
	return snap, nil
}

// GetRanked returns the first n snapshots ordered by metric
func (s *Service) GetRanked(ctx context.Context, n int, metric ranking.Metric, order ranking.Order) ([]contracts.StockSnapshot, error) {
	c, err := s.GetSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(c, n, metric, order), nil
}

// GetMostActive returns the n highest-volume snapshots
func (s *Service) GetMostActive(ctx context.Context, n int) ([]contracts.StockSnapshot, error) {
	c, err := s.GetSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.MostActive(c, n), nil
}

// GetAggregates returns universe-wide totals and means
func (s *Service) GetAggregates(ctx context.Context) (ranking.Aggregates, error) {
	c, err := s.GetSnapshots(ctx)
	if err != nil {
		return ranking.Aggregates{}, err
	}
	return ranking.Aggregate(c), nil
}

// GetSectors returns market cap grouped by sector
func (s *Service) GetSectors(ctx context.Context) ([]ranking.SectorGroup, error) {
	c, err := s.GetSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.GroupBySector(c), nil
}

// Compare puts two symbols of the current collection side by side
func (s *Service) Compare(ctx context.Context, a, b contracts.Symbol) (*ranking.Comparison, error) {
	c, err := s.GetSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.Compare(c, a, b)
}

// GetHistory returns the cached daily series for sym
func (s *Service) GetHistory(ctx context.Context, sym contracts.Symbol) (contracts.HistoricalSeries, error) {
	if sym == "" {
		return contracts.HistoricalSeries{}, fmt.Errorf("%w: empty symbol", contracts.ErrInvalidArgument)
	}
	series, err := s.histories.GetOrCompute(ctx, sym, s.opts.HistoryTTL, func(ctx context.Context) (contracts.HistoricalSeries, error) {
		return s.history.FetchHistory(ctx, sym, s.opts.LookbackYears)
	})
	if err != nil {
		return contracts.HistoricalSeries{}, err
	}
	return series.Clone(), nil
}

// ResolveHorizon applies the default to 0 and checks the configured bounds
func (s *Service) ResolveHorizon(horizon int) (int, error) {
	if horizon == 0 {
		return s.opts.DefaultHorizon, nil
	}
	if horizon < s.opts.MinHorizon || horizon > s.opts.MaxHorizon {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", contracts.ErrInvalidHorizon, horizon, s.opts.MinHorizon, s.opts.MaxHorizon)
	}
	return horizon, nil
}

// GetForecast trains on the cached history and extends it horizon trading days (0 = default).
// Results are cached for the history TTL since training is deterministic.
func (s *Service) GetForecast(ctx context.Context, sym contracts.Symbol, horizon int) (*contracts.ForecastResult, error) {
	h, err := s.ResolveHorizon(horizon)
	if err != nil {
		return nil, err
	}

	series, err := s.GetHistory(ctx, sym)
	if err != nil {
		return nil, err
	}

	key := forecastKey{symbol: sym, horizon: h}
	res, err := s.forecasts.GetOrCompute(ctx, key, s.opts.HistoryTTL, func(ctx context.Context) (*contracts.ForecastResult, error) {
		start := time.Now()
		res, err := s.engine.TrainAndForecast(ctx, series, h)
		if err != nil {
			return nil, err
		}
		took := time.Since(start)

		s.log.Info().Str("symbol", string(sym)).Int("horizon", h).Dur("took", took).Msg("forecast trained")

		if s.recorder != nil {
			if err := s.recorder.RecordForecast(ctx, res, took); err != nil {
				s.log.Warn().Err(err).Str("symbol", string(sym)).Msg("record forecast failed")
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return res.Clone(), nil
}

// GetForecastSummary compares the final forecast point with the live snapshot price.
// Symbols outside the current snapshot fall back to the last historical close.
func (s *Service) GetForecastSummary(ctx context.Context, sym contracts.Symbol, horizon int) (contracts.ForecastSummary, error) {
	res, err := s.GetForecast(ctx, sym, horizon)
	if err != nil {
		return contracts.ForecastSummary{}, err
	}

	price, source, err := s.currentPrice(ctx, sym)
	if err != nil {
		return contracts.ForecastSummary{}, err
	}

	sum, err := forecast.Summarize(res, price)
	if err != nil {
		return contracts.ForecastSummary{}, err
	}
	sum.PriceSource = source
	return sum, nil
}

func (s *Service) currentPrice(ctx context.Context, sym contracts.Symbol) (float64, string, error) {
	snap, err := s.GetSnapshot(ctx, sym)
	if err == nil {
		return snap.Price, contracts.PriceFromSnapshot, nil
	}
	if !errors.Is(err, contracts.ErrNotFound) {
		return 0, "", err
	}

	series, err := s.GetHistory(ctx, sym)
	if err != nil {
		return 0, "", err
	}
	last, _ := series.Last()
	return last.Close, contracts.PriceFromLastClose, nil
}

// InvalidateAll forces every view to recompute on next access
func (s *Service) InvalidateAll() {
	s.snapshots.InvalidateAll()
	s.histories.InvalidateAll()
	s.forecasts.InvalidateAll()
	s.log.Info().Msg("all caches invalidated")
}

// Refresh rebuilds the snapshot collection now (scheduler and "refresh" button)
func (s *Service) Refresh(ctx context.Context) (*contracts.SnapshotCollection, error) {
	s.snapshots.Invalidate(universeKey)
	return s.GetSnapshots(ctx)
}

// WarmResult is the outcome of a history warm-up
type WarmResult struct {
	Loaded int                         `json:"loaded"`
	Failed map[contracts.Symbol]string `json:"failed,omitempty"`
}

// WarmHistory loads the universe's history into the cache ahead of forecast requests
func (s *Service) WarmHistory(ctx context.Context) WarmResult {
	syms := s.opts.Symbols
	errs := make([]error, len(syms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, sym := range syms {
		g.Go(func() error {
			_, errs[i] = s.GetHistory(gctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	res := WarmResult{Failed: map[contracts.Symbol]string{}}
	for i, err := range errs {
		if err != nil {
			res.Failed[syms[i]] = err.Error()
			continue
		}
		res.Loaded++
	}

	s.log.Info().Int("loaded", res.Loaded).Int("failed", len(res.Failed)).Msg("history warm-up done")
	return res
}

// CacheStats reports counters of every cache
func (s *Service) CacheStats() []cache.Stats {
	return []cache.Stats{s.snapshots.Stats(), s.histories.Stats(), s.forecasts.Stats()}
}

// Purge drops expired entries; returns how many were removed
func (s *Service) Purge() int {
	return s.snapshots.Purge() + s.histories.Purge() + s.forecasts.Purge()
}
