package data

import (
	"context"
	"fmt"
	"sync"

	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/pkg/logger"
)

// Collector downloads history for the universe and persists it
// ⭐ SSOT: 히스토리 수집 오케스트레이션은 여기서만
type Collector struct {
	source contracts.HistorySource
	store  contracts.HistoryStore
	logger *logger.Logger
}

// CollectConfig holds collector configuration
type CollectConfig struct {
	Workers       int // Number of concurrent workers
	LookbackYears float64
}

// CollectResult represents the result of one symbol
type CollectResult struct {
	Symbol contracts.Symbol
	Points int
	Saved  int
	Error  error
}

// NewCollector creates a new Collector instance
func NewCollector(source contracts.HistorySource, store contracts.HistoryStore, log *logger.Logger) *Collector {
	return &Collector{
		source: source,
		store:  store,
		logger: log.WithField("module", "collector"),
	}
}

// CollectAll fetches and stores history for every symbol.
// Per-symbol failures are reported in the results, not returned.
func (c *Collector) CollectAll(ctx context.Context, symbols []contracts.Symbol, cfg CollectConfig) ([]CollectResult, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.LookbackYears <= 0 {
		return nil, fmt.Errorf("%w: lookback %v", contracts.ErrInvalidArgument, cfg.LookbackYears)
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol_count": len(symbols),
		"lookback":     cfg.LookbackYears,
		"workers":      cfg.Workers,
	}).Info("Starting history collection")

	resultCh := make(chan CollectResult, len(symbols))
	symbolCh := make(chan contracts.Symbol, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.worker(ctx, workerID, symbolCh, resultCh, cfg.LookbackYears)
		}(i)
	}

	for _, s := range symbols {
		symbolCh <- s
	}
	close(symbolCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]CollectResult, 0, len(symbols))
	failCount := 0
	for r := range resultCh {
		results = append(results, r)
		if r.Error != nil {
			failCount++
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"success": len(results) - failCount,
		"failed":  failCount,
		"total":   len(results),
	}).Info("History collection completed")

	return results, ctx.Err()
}

func (c *Collector) worker(ctx context.Context, workerID int, symbolCh <-chan contracts.Symbol, resultCh chan<- CollectResult, lookback float64) {
	for sym := range symbolCh {
		if err := ctx.Err(); err != nil {
			resultCh <- CollectResult{Symbol: sym, Error: err}
			continue
		}

		series, err := c.source.FetchHistory(ctx, sym, lookback)
		if err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker": workerID,
				"symbol": string(sym),
			}).Error("Failed to fetch history")
			resultCh <- CollectResult{Symbol: sym, Error: err}
			continue
		}

		saved, err := c.store.SaveHistory(ctx, series)
		if err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker": workerID,
				"symbol": string(sym),
			}).Error("Failed to save history")
		}

		resultCh <- CollectResult{Symbol: sym, Points: series.Len(), Saved: saved, Error: err}
	}
}
