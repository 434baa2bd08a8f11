package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/internal/data"
	"github.com/wonny/marketlens/internal/external/yahoo"
	"github.com/wonny/marketlens/internal/forecast"
	"github.com/wonny/marketlens/internal/market"
	"github.com/wonny/marketlens/internal/recorder"
	"github.com/wonny/marketlens/internal/snapshot"
	"github.com/wonny/marketlens/pkg/config"
	"github.com/wonny/marketlens/pkg/database"
	"github.com/wonny/marketlens/pkg/httputil"
	"github.com/wonny/marketlens/pkg/logger"
	"github.com/wonny/marketlens/pkg/redis"
)

// storedHistoryMaxStale is how old the last stored close may be before Yahoo is asked instead
const storedHistoryMaxStale = 4 * 24 * time.Hour

// app holds every wired dependency of one CLI invocation
type app struct {
	cfg *config.Config
	log *logger.Logger

	yahoo    *yahoo.Client
	db       *database.DB          // nil when DATABASE_URL is unset
	repo     *data.PriceRepository // nil when db is nil
	rdb      *redis.Client
	sqlite   *recorder.SQLiteRecorder // nil when the recorder is disabled
	recorder contracts.Recorder
	svc      *market.Service
}

// loadConfig reads env config and applies global flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if len(symbolsFlag) > 0 {
		cfg.Market.Symbols = symbolsFlag
	}
	return cfg, nil
}

// newApp wires config → logger → http → yahoo → (postgres, redis) → builder/engine → service
// ⭐ SSOT: 의존성 조립은 이 함수에서만
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	a := &app{cfg: cfg, log: log}

	// 1. Redis (optional): shared rate limit + L2 history cache
	a.rdb, err = redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without it")
		a.rdb = &redis.Client{}
	}

	// 2. HTTP client + Yahoo adapter
	httpClient := httputil.New(cfg, log.WithField("component", "httputil"))
	if a.rdb.Enabled() && cfg.Yahoo.RateLimit > 0 {
		limit := int(cfg.Yahoo.RateLimit)
		if limit < 1 {
			limit = 1
		}
		httpClient.WithLimiter(redis.NewRateLimiter(a.rdb, "marketlens", redis.RateLimitConfig{
			Key:    "yahoo",
			Limit:  limit,
			Window: time.Second,
		}))
	}
	a.yahoo = yahoo.NewClient(cfg.Yahoo, httpClient, log.Zerolog()).
		WithConcurrency(cfg.Market.Concurrency)

	// 3. Postgres (optional): stored closes first, Yahoo as fallback
	var history contracts.HistorySource = a.yahoo
	a.db, err = database.New(ctx, cfg)
	switch {
	case errors.Is(err, database.ErrDisabled):
		a.db = nil
	case err != nil:
		a.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	default:
		if err := a.db.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.repo = data.NewPriceRepository(a.db.Pool, storedHistoryMaxStale)
		history = data.NewChain(log.Zerolog(), a.repo, a.yahoo).WithStore(a.repo)
		log.Info("Connected to database")
	}

	if a.rdb.Enabled() {
		history = data.NewCachedHistory(history, redis.NewCache(a.rdb, "marketlens"), cfg.Market.HistoryTTL, log.Zerolog())
	}

	// 4. Recorder
	a.recorder = recorder.NewNoopRecorder()
	if cfg.Recorder.Enabled {
		a.sqlite, err = recorder.NewSQLiteRecorder(cfg.Recorder.Path, log.Zerolog())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open recorder: %w", err)
		}
		a.recorder = a.sqlite
	}

	// 5. Builder, engine, service
	builderCfg := snapshot.DefaultConfig()
	builderCfg.Concurrency = cfg.Market.Concurrency
	builderCfg.YieldUnit = snapshot.YieldUnit(cfg.Market.YieldUnit)
	builder := snapshot.NewBuilder(a.yahoo, builderCfg, log.Zerolog())

	engine, err := forecast.NewEngine(forecastConfig(cfg), log.Zerolog())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("forecast engine: %w", err)
	}

	a.svc, err = market.NewService(market.OptionsFromConfig(cfg), builder, history, engine, a.recorder, log.Zerolog())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("market service: %w", err)
	}

	return a, nil
}

// forecastConfig maps FORECAST_* settings onto the engine config
func forecastConfig(cfg *config.Config) forecast.Config {
	fc := forecast.DefaultConfig()
	fc.MinObservations = cfg.Forecast.MinHistory
	fc.ChangepointPriorScale = cfg.Forecast.ChangepointPriorScale
	fc.SeasonalityPriorScale = cfg.Forecast.SeasonalityPriorScale
	fc.IntervalWidth = cfg.Forecast.IntervalWidth
	return fc
}

// Close releases connections in reverse order of creation
func (a *app) Close() {
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close recorder")
		}
	}
	a.db.Close()
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

// opContext bounds a one-shot CLI operation
func (a *app) opContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 2*a.cfg.Market.OpTimeout)
}
