package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/internal/api/handlers"
	"github.com/wonny/marketlens/internal/cache"
	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/internal/ranking"
	"github.com/wonny/marketlens/pkg/logger"
)

type fakeService struct {
	coll        *contracts.SnapshotCollection
	err         error
	forecastErr error
	gotHorizon  int
	gotN        int
	gotMetric   ranking.Metric
	gotOrder    ranking.Order
	invalidated bool
	panicOn     string
}

func (f *fakeService) snapshots() (*contracts.SnapshotCollection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.coll, nil
}

func (f *fakeService) GetSnapshots(context.Context) (*contracts.SnapshotCollection, error) {
	if f.panicOn == "snapshots" {
		panic("boom")
	}
	return f.snapshots()
}

func (f *fakeService) GetSnapshot(_ context.Context, sym contracts.Symbol) (contracts.StockSnapshot, error) {
	c, err := f.snapshots()
	if err != nil {
		return contracts.StockSnapshot{}, err
	}
	s, ok := c.Get(sym)
	if !ok {
		return s, contracts.ErrNotFound
	}
	return s, nil
}

func (f *fakeService) GetRanked(_ context.Context, n int, m ranking.Metric, o ranking.Order) ([]contracts.StockSnapshot, error) {
	f.gotN, f.gotMetric, f.gotOrder = n, m, o
	c, err := f.snapshots()
	if err != nil {
		return nil, err
	}
	return ranking.Rank(c, n, m, o), nil
}

func (f *fakeService) GetMostActive(_ context.Context, n int) ([]contracts.StockSnapshot, error) {
	c, err := f.snapshots()
	if err != nil {
		return nil, err
	}
	return ranking.MostActive(c, n), nil
}

func (f *fakeService) GetAggregates(context.Context) (ranking.Aggregates, error) {
	c, err := f.snapshots()
	if err != nil {
		return ranking.Aggregates{}, err
	}
	return ranking.Aggregate(c), nil
}

func (f *fakeService) GetSectors(context.Context) ([]ranking.SectorGroup, error) {
	c, err := f.snapshots()
	if err != nil {
		return nil, err
	}
	return ranking.GroupBySector(c), nil
}

func (f *fakeService) Compare(_ context.Context, a, b contracts.Symbol) (*ranking.Comparison, error) {
	c, err := f.snapshots()
	if err != nil {
		return nil, err
	}
	return ranking.Compare(c, a, b)
}

func (f *fakeService) forecast(sym contracts.Symbol, horizon int) (*contracts.ForecastResult, error) {
	f.gotHorizon = horizon
	if f.forecastErr != nil {
		return nil, f.forecastErr
	}
	if horizon == 0 {
		horizon = 30
	}
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]contracts.ForecastPoint, 0, 5+horizon)
	for i := 0; i < 5+horizon; i++ {
		y := 100 + float64(i)
		pts = append(pts, contracts.ForecastPoint{Date: day.AddDate(0, 0, i), Yhat: y, Lower: y - 1, Upper: y + 1})
	}
	return &contracts.ForecastResult{Symbol: sym, Horizon: horizon, Points: pts}, nil
}

func (f *fakeService) GetForecast(_ context.Context, sym contracts.Symbol, horizon int) (*contracts.ForecastResult, error) {
	return f.forecast(sym, horizon)
}

func (f *fakeService) GetForecastSummary(_ context.Context, sym contracts.Symbol, horizon int) (contracts.ForecastSummary, error) {
	res, err := f.forecast(sym, horizon)
	if err != nil {
		return contracts.ForecastSummary{}, err
	}
	final, _ := res.Final()
	return contracts.ForecastSummary{Symbol: sym, Horizon: res.Horizon, CurrentPrice: 104, PredictedPrice: final.Yhat}, nil
}

func (f *fakeService) InvalidateAll() { f.invalidated = true }

func (f *fakeService) Refresh(context.Context) (*contracts.SnapshotCollection, error) {
	return f.snapshots()
}

func (f *fakeService) CacheStats() []cache.Stats {
	return []cache.Stats{{Name: "snapshots", Hits: 3}}
}

func newFake() *fakeService {
	return &fakeService{coll: contracts.NewSnapshotCollection(time.Now(), []contracts.StockSnapshot{
		{Symbol: "AAPL", Sector: "Technology", Price: 105, Change: contracts.Float(5), Volume: 10, MarketCap: 3e12},
		{Symbol: "MSFT", Sector: "Technology", Price: 190, Change: contracts.Float(-5), Volume: 30, MarketCap: 3e12},
		{Symbol: "KO", Sector: "Consumer Defensive", Price: 60, Volume: 20, MarketCap: 2e11},
	})}
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := do(t, NewRouter(newFake(), nil, logger.Nop()), "GET", "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDKept(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	NewRouter(newFake(), nil, logger.Nop()).ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestSnapshots(t *testing.T) {
	r := NewRouter(newFake(), nil, logger.Nop())

	rec := do(t, r, "GET", "/api/snapshots")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int                       `json:"count"`
		Items []contracts.StockSnapshot `json:"items"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Items, 3)

	rec = do(t, r, "GET", "/api/snapshots/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap contracts.StockSnapshot
	decode(t, rec, &snap)
	assert.Equal(t, contracts.Symbol("AAPL"), snap.Symbol)

	rec = do(t, r, "GET", "/api/snapshots/ZZZ")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRanking(t *testing.T) {
	svc := newFake()
	r := NewRouter(svc, nil, logger.Nop())

	rec := do(t, r, "GET", "/api/ranking?metric=change&order=asc&n=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, svc.gotN)
	assert.Equal(t, ranking.MetricChange, svc.gotMetric)
	assert.Equal(t, ranking.Asc, svc.gotOrder)

	var body struct {
		Items []contracts.StockSnapshot `json:"items"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Items, 2)
	assert.Equal(t, contracts.Symbol("MSFT"), body.Items[0].Symbol)

	rec = do(t, r, "GET", "/api/ranking")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, svc.gotN, "default n")
	assert.Equal(t, ranking.Desc, svc.gotOrder)

	for _, bad := range []string{"?metric=beta", "?order=sideways", "?n=-1", "?n=ten"} {
		rec = do(t, r, "GET", "/api/ranking"+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestOverview(t *testing.T) {
	r := NewRouter(newFake(), nil, logger.Nop())

	rec := do(t, r, "GET", "/api/most-active?n=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var active struct {
		Items []contracts.StockSnapshot `json:"items"`
	}
	decode(t, rec, &active)
	require.Len(t, active.Items, 1)
	assert.Equal(t, contracts.Symbol("MSFT"), active.Items[0].Symbol)

	rec = do(t, r, "GET", "/api/aggregates")
	require.Equal(t, http.StatusOK, rec.Code)
	var agg map[string]interface{}
	decode(t, rec, &agg)
	assert.EqualValues(t, 3, agg["count"])

	rec = do(t, r, "GET", "/api/sectors")
	require.Equal(t, http.StatusOK, rec.Code)
	var groups []ranking.SectorGroup
	decode(t, rec, &groups)
	assert.Len(t, groups, 2)

	rec = do(t, r, "GET", "/api/compare?a=aapl&b=msft")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, "GET", "/api/compare?a=aapl")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, "GET", "/api/compare?a=aapl&b=aapl")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{"transient", contracts.NewFetchError("bars", "", contracts.ErrUnavailable, nil), http.StatusServiceUnavailable, true},
		{"timeout", fmt.Errorf("%w: %w", cache.ErrCompute, contracts.ErrTimeout), http.StatusServiceUnavailable, true},
		{"empty", contracts.ErrEmptyResult, http.StatusServiceUnavailable, false},
		{"insufficient", &contracts.InsufficientDataError{Symbol: "X", Have: 10, Need: 60}, http.StatusUnprocessableEntity, false},
		{"training", &contracts.TrainingError{Symbol: "X", Err: errors.New("singular")}, http.StatusInternalServerError, false},
		{"not found", contracts.NewFetchError("history", "X", contracts.ErrNotFound, nil), http.StatusNotFound, false},
		{"horizon", contracts.ErrInvalidHorizon, http.StatusBadRequest, false},
		{"unknown", errors.New("???"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFake()
			svc.forecastErr = tt.err
			rec := do(t, NewRouter(svc, nil, logger.Nop()), "GET", "/api/forecast/X")

			assert.Equal(t, tt.status, rec.Code)
			var body struct {
				Error     string `json:"error"`
				Retryable bool   `json:"retryable"`
			}
			decode(t, rec, &body)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.retryable, body.Retryable)
		})
	}
}

func TestForecast(t *testing.T) {
	svc := newFake()
	r := NewRouter(svc, nil, logger.Nop())

	rec := do(t, r, "GET", "/api/forecast/aapl?horizon=30")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, svc.gotHorizon)

	var body struct {
		Symbol   string                    `json:"symbol"`
		Forecast []contracts.ForecastPoint `json:"forecast"`
		History  []contracts.ForecastPoint `json:"history"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "AAPL", body.Symbol)
	assert.Len(t, body.Forecast, 30)
	assert.Empty(t, body.History)

	rec = do(t, r, "GET", "/api/forecast/aapl?horizon=30&full=true")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Len(t, body.History, 5)

	rec = do(t, r, "GET", "/api/forecast/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, svc.gotHorizon, "service applies the default")

	rec = do(t, r, "GET", "/api/forecast/aapl?horizon=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, "GET", "/api/forecast/aapl/summary?horizon=30")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum contracts.ForecastSummary
	decode(t, rec, &sum)
	assert.Equal(t, 104.0, sum.CurrentPrice)
}

func TestRefreshAndStats(t *testing.T) {
	svc := newFake()
	r := NewRouter(svc, nil, logger.Nop())

	rec := do(t, r, "GET", "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	var body handlers.ErrorResponse
	decode(t, rec, &body)
	assert.Contains(t, body.Error, "GET")
	assert.False(t, svc.invalidated)

	rec = do(t, r, "POST", "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.invalidated)

	rec = do(t, r, "GET", "/api/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats []cache.Stats
	decode(t, rec, &stats)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(3), stats[0].Hits)
}

func TestMethodNotAllowed(t *testing.T) {
	r := NewRouter(newFake(), nil, logger.Nop())

	tests := []struct {
		method, target string
		want           int
	}{
		{"POST", "/api/snapshots", http.StatusMethodNotAllowed},
		{"DELETE", "/api/forecast/AAPL", http.StatusMethodNotAllowed},
		{"POST", "/health", http.StatusMethodNotAllowed},
		{"GET", "/api/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := do(t, r, tt.method, tt.target)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	svc := newFake()
	svc.panicOn = "snapshots"

	rec := do(t, NewRouter(svc, nil, logger.Nop()), "GET", "/api/snapshots")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
