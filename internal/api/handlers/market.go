package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/marketlens/internal/cache"
	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/internal/ranking"
	"github.com/wonny/marketlens/pkg/logger"
)

// MarketService is what the HTTP views need from market.Service
type MarketService interface {
	GetSnapshots(ctx context.Context) (*contracts.SnapshotCollection, error)
	GetSnapshot(ctx context.Context, sym contracts.Symbol) (contracts.StockSnapshot, error)
	GetRanked(ctx context.Context, n int, metric ranking.Metric, order ranking.Order) ([]contracts.StockSnapshot, error)
	GetMostActive(ctx context.Context, n int) ([]contracts.StockSnapshot, error)
	GetAggregates(ctx context.Context) (ranking.Aggregates, error)
	GetSectors(ctx context.Context) ([]ranking.SectorGroup, error)
	Compare(ctx context.Context, a, b contracts.Symbol) (*ranking.Comparison, error)
	GetForecast(ctx context.Context, sym contracts.Symbol, horizon int) (*contracts.ForecastResult, error)
	GetForecastSummary(ctx context.Context, sym contracts.Symbol, horizon int) (contracts.ForecastSummary, error)
	InvalidateAll()
	Refresh(ctx context.Context) (*contracts.SnapshotCollection, error)
	CacheStats() []cache.Stats
}

const defaultTopN = 10

// MarketHandler serves snapshot, ranking and overview endpoints
// ⭐ SSOT: 시세/랭킹 API 핸들러는 이 구조체에서만
type MarketHandler struct {
	svc    MarketService
	logger *logger.Logger
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(svc MarketService, log *logger.Logger) *MarketHandler {
	return &MarketHandler{
		svc:    svc,
		logger: log.WithField("handler", "market"),
	}
}

// GetSnapshots returns the current collection
// GET /api/snapshots
func (h *MarketHandler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetSnapshots(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// GetSnapshot returns one symbol
// GET /api/snapshots/{symbol}
func (h *MarketHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	sym := contracts.NormalizeSymbol(mux.Vars(r)["symbol"])

	snap, err := h.svc.GetSnapshot(r.Context(), sym)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// GetRanking returns the top (or bottom) n by a metric
// GET /api/ranking?metric=change&order=desc&n=10
func (h *MarketHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	metric, err := ranking.ParseMetric(q.Get("metric"))
	if err != nil {
		respondErr(w, err)
		return
	}
	order, err := ranking.ParseOrder(q.Get("order"))
	if err != nil {
		respondErr(w, err)
		return
	}
	n, err := intParam(r, "n", defaultTopN)
	if err != nil {
		respondErr(w, err)
		return
	}

	items, err := h.svc.GetRanked(r.Context(), n, metric, order)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"metric": metric,
		"order":  order,
		"count":  len(items),
		"items":  items,
	})
}

// GetMostActive returns the highest-volume symbols
// GET /api/most-active?n=10
func (h *MarketHandler) GetMostActive(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n", defaultTopN)
	if err != nil {
		respondErr(w, err)
		return
	}

	items, err := h.svc.GetMostActive(r.Context(), n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"count": len(items), "items": items})
}

// GetAggregates returns universe-wide totals
// GET /api/aggregates
func (h *MarketHandler) GetAggregates(w http.ResponseWriter, r *http.Request) {
	agg, err := h.svc.GetAggregates(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, agg)
}

// GetSectors returns market cap per sector
// GET /api/sectors
func (h *MarketHandler) GetSectors(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.GetSectors(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

// Compare puts two symbols side by side
// GET /api/compare?a=AAPL&b=MSFT
func (h *MarketHandler) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, b := contracts.NormalizeSymbol(q.Get("a")), contracts.NormalizeSymbol(q.Get("b"))
	if a == "" || b == "" {
		respondError(w, http.StatusBadRequest, "both a and b are required")
		return
	}

	cmp, err := h.svc.Compare(r.Context(), a, b)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cmp)
}

// Refresh invalidates every cache and rebuilds the snapshot collection
// POST /api/refresh
func (h *MarketHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.svc.InvalidateAll()

	c, err := h.svc.Refresh(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"epoch":      c.Epoch(),
		"fetched_at": c.FetchedAt(),
		"count":      c.Len(),
	})
}

// GetCacheStats returns counters of every cache
// GET /api/cache/stats
func (h *MarketHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.CacheStats())
}

func (h *MarketHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithError(err).WithFields(map[string]interface{}{
		"path":      r.URL.Path,
		"retryable": contracts.IsRetryable(err),
	}).Warn("Request failed")
	respondErr(w, err)
}
