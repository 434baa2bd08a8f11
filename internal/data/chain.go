package data

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/wonny/marketlens/internal/contracts"
)

// Chain tries history sources in order (e.g. Postgres, then Yahoo).
// The first success wins; a fetched series is written back to the store when one is set.
type Chain struct {
	sources []contracts.HistorySource
	store   contracts.HistoryStore
	log     zerolog.Logger
}

// NewChain creates a fallback chain over sources
func NewChain(log zerolog.Logger, sources ...contracts.HistorySource) *Chain {
	return &Chain{
		sources: sources,
		log:     log.With().Str("component", "data.chain").Logger(),
	}
}

// WithStore persists series obtained from any source after the first
func (c *Chain) WithStore(store contracts.HistoryStore) *Chain {
	c.store = store
	return c
}

// FetchHistory returns the first successful series.
// Cancellation stops the chain; otherwise the last error is returned.
func (c *Chain) FetchHistory(ctx context.Context, sym contracts.Symbol, lookbackYears float64) (contracts.HistoricalSeries, error) {
	if len(c.sources) == 0 {
		return contracts.HistoricalSeries{}, contracts.NewFetchError("history", sym, contracts.ErrUnavailable, errors.New("no sources"))
	}

	var lastErr error
	for i, src := range c.sources {
		series, err := src.FetchHistory(ctx, sym, lookbackYears)
		if err == nil {
			if i > 0 && c.store != nil {
				if n, serr := c.store.SaveHistory(ctx, series); serr != nil {
					c.log.Warn().Err(serr).Str("symbol", string(sym)).Int("saved", n).Msg("write-back failed")
				}
			}
			return series, nil
		}
		if ctx.Err() != nil {
			return contracts.HistoricalSeries{}, err
		}

		c.log.Debug().Err(err).Str("symbol", string(sym)).Int("source", i).Msg("history source failed")
		lastErr = err
	}
	return contracts.HistoricalSeries{}, lastErr
}
