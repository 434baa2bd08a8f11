package data

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/pkg/redis"
)

// CachedHistory is a Redis (L2) read-through in front of a history source.
// Shared between processes; the in-process TTL cache sits above it.
type CachedHistory struct {
	next  contracts.HistorySource
	cache *redis.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedHistory wraps next with a Redis read-through
func NewCachedHistory(next contracts.HistorySource, cache *redis.Cache, ttl time.Duration, log zerolog.Logger) *CachedHistory {
	return &CachedHistory{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "data.cached_history").Logger(),
	}
}

// FetchHistory serves from Redis when present, otherwise loads and stores.
// Redis failures degrade to a direct load.
func (c *CachedHistory) FetchHistory(ctx context.Context, sym contracts.Symbol, lookbackYears float64) (contracts.HistoricalSeries, error) {
	key := redis.HistoryKey(string(sym), lookbackYears)

	var cached contracts.HistoricalSeries
	found, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", string(sym)).Msg("redis get failed")
	}
	if found && cached.Len() > 0 {
		return contracts.NewHistoricalSeries(sym, cached.Points), nil
	}

	series, err := c.next.FetchHistory(ctx, sym, lookbackYears)
	if err != nil {
		return series, err
	}

	if err := c.cache.Set(ctx, key, series, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("symbol", string(sym)).Msg("redis set failed")
	}
	return series, nil
}
