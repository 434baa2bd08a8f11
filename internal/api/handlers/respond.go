package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wonny/marketlens/internal/contracts"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondErr maps the error taxonomy onto HTTP statuses
// ⭐ SSOT: 에러 → HTTP 상태 매핑은 여기서만
func respondErr(w http.ResponseWriter, err error) {
	status, msg := statusOf(err)
	respondJSON(w, status, ErrorResponse{Error: msg, Retryable: contracts.IsRetryable(err)})
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, contracts.ErrInvalidHorizon), errors.Is(err, contracts.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, contracts.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, contracts.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "cannot forecast this symbol: " + err.Error()
	case errors.Is(err, contracts.ErrTraining):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, contracts.ErrEmptyResult):
		return http.StatusServiceUnavailable, "no data available"
	case errors.Is(err, contracts.ErrTransientFetch):
		return http.StatusServiceUnavailable, "upstream temporarily unavailable, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// intParam reads a positive integer query parameter; def when absent
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.Join(contracts.ErrInvalidArgument, errors.New(name+" must be a non-negative integer"))
	}
	return v, nil
}
