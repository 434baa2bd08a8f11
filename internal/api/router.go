package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/wonny/marketlens/internal/api/handlers"
	"github.com/wonny/marketlens/internal/realtime"
	"github.com/wonny/marketlens/pkg/logger"
)

type ctxKey struct{}

// RequestID returns the id assigned by the request-id middleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(svc handlers.MarketService, hub *realtime.Hub, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	market := handlers.NewMarketHandler(svc, log)
	forecast := handlers.NewForecastHandler(svc, log)

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// 메서드 불일치는 루트/서브라우터 모두 JSON 405로 응답
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	// Snapshot & overview endpoints
	api.HandleFunc("/snapshots", market.GetSnapshots).Methods("GET")
	api.HandleFunc("/snapshots/{symbol}", market.GetSnapshot).Methods("GET")
	api.HandleFunc("/ranking", market.GetRanking).Methods("GET")
	api.HandleFunc("/most-active", market.GetMostActive).Methods("GET")
	api.HandleFunc("/aggregates", market.GetAggregates).Methods("GET")
	api.HandleFunc("/sectors", market.GetSectors).Methods("GET")
	api.HandleFunc("/compare", market.Compare).Methods("GET")

	// Forecast endpoints
	api.HandleFunc("/forecast/{symbol}", forecast.GetForecast).Methods("GET")
	api.HandleFunc("/forecast/{symbol}/summary", forecast.GetSummary).Methods("GET")

	// Cache control
	api.HandleFunc("/refresh", market.Refresh).Methods("POST")
	api.HandleFunc("/cache/stats", market.GetCacheStats).Methods("GET")

	// Push stream
	if hub != nil {
		r.HandleFunc("/ws/snapshots", func(w http.ResponseWriter, req *http.Request) {
			realtime.ServeWS(hub, w, req)
		}).Methods("GET")
	}

	// Apply middleware
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "marketlens-api",
	})
}

// methodNotAllowedHandler answers a known path called with the wrong method
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(handlers.ErrorResponse{
		Error: fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path),
	})
}

// requestIDMiddleware tags every request with X-Request-ID (kept when the caller sent one)
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// statusRecorder captures the response status for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps /ws/snapshots upgradable behind the access log
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// Call next handler
			next.ServeHTTP(rec, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"request_id": RequestID(r.Context()),
				"duration":   time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error":      err,
						"path":       r.URL.Path,
						"request_id": RequestID(r.Context()),
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
