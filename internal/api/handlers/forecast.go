package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/marketlens/internal/contracts"
	"github.com/wonny/marketlens/pkg/logger"
)

// ForecastHandler serves forecast endpoints
// ⭐ SSOT: Forecast API 핸들러는 이 구조체에서만
type ForecastHandler struct {
	svc    MarketService
	logger *logger.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(svc MarketService, log *logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		svc:    svc,
		logger: log.WithField("handler", "forecast"),
	}
}

// ForecastResponse is the forecast view; History is only set with full=true
type ForecastResponse struct {
	Symbol   contracts.Symbol          `json:"symbol"`
	Horizon  int                       `json:"horizon"`
	Model    contracts.ModelInfo       `json:"model"`
	Forecast []contracts.ForecastPoint `json:"forecast"`
	History  []contracts.ForecastPoint `json:"history,omitempty"`
}

// GetForecast trains (or reuses) a forecast
// GET /api/forecast/{symbol}?horizon=30&full=false
func (h *ForecastHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	sym := contracts.NormalizeSymbol(mux.Vars(r)["symbol"])
	horizon, err := intParam(r, "horizon", 0)
	if err != nil {
		respondErr(w, err)
		return
	}
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))

	res, err := h.svc.GetForecast(r.Context(), sym, horizon)
	if err != nil {
		h.fail(w, sym, err)
		return
	}

	resp := ForecastResponse{
		Symbol:   res.Symbol,
		Horizon:  res.Horizon,
		Model:    res.Model,
		Forecast: res.Forecast(),
	}
	if full {
		resp.History = res.Fitted()
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetSummary returns the headline numbers of a forecast
// GET /api/forecast/{symbol}/summary?horizon=30
func (h *ForecastHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sym := contracts.NormalizeSymbol(mux.Vars(r)["symbol"])
	horizon, err := intParam(r, "horizon", 0)
	if err != nil {
		respondErr(w, err)
		return
	}

	sum, err := h.svc.GetForecastSummary(r.Context(), sym, horizon)
	if err != nil {
		h.fail(w, sym, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *ForecastHandler) fail(w http.ResponseWriter, sym contracts.Symbol, err error) {
	h.logger.WithError(err).WithField("symbol", string(sym)).Warn("Forecast failed")
	respondErr(w, err)
}
