package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wonny/marketlens/pkg/config"
	"github.com/wonny/marketlens/pkg/logger"
)

func testClient() *Client {
	cfg := &config.Config{
		Yahoo: config.YahooConfig{Timeout: 2 * time.Second, MaxRetries: 3},
	}
	return New(cfg, logger.Nop()).WithRetry(3, 10*time.Millisecond)
}

func TestNew(t *testing.T) {
	cfg := &config.Config{
		Yahoo: config.YahooConfig{Timeout: 5 * time.Second, MaxRetries: 2, RateLimit: 5, Burst: 2},
	}
	client := New(cfg, logger.Nop())

	if client.httpClient.Timeout != 5*time.Second {
		t.Errorf("Expected timeout=5s, got %v", client.httpClient.Timeout)
	}
	if client.retryConfig.MaxRetries != 2 || !client.retryConfig.Enabled {
		t.Errorf("Expected 2 retries enabled, got %+v", client.retryConfig)
	}
	if client.limiter == nil {
		t.Error("Expected limiter to be configured")
	}
}

func TestGetBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("Expected User-Agent header")
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	body, err := testClient().GetBytes(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("GET request failed: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected body %s", body)
	}
}

func TestRetryOn5xx(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	if _, err := testClient().GetBytes(context.Background(), server.URL); err != nil {
		t.Fatalf("Request failed after retries: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestNoRetryOn404(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := testClient().GetBytes(context.Background(), server.URL)

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 StatusError, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := testClient().WithRetry(10, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.GetBytes(ctx, server.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("retry loop ignored context deadline")
	}
}

type countingLimiter struct{ n atomic.Int32 }

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.n.Add(1)
	return ctx.Err()
}

func TestLimiterIsConsulted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	lim := &countingLimiter{}
	client := testClient().WithLimiter(lim)
	for i := 0; i < 3; i++ {
		if _, err := client.GetBytes(context.Background(), server.URL); err != nil {
			t.Fatal(err)
		}
	}
	if lim.n.Load() != 3 {
		t.Errorf("Expected limiter to be called 3 times, got %d", lim.n.Load())
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		statusCode int
		want       bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true}, // Too Many Requests - should retry
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.statusCode), func(t *testing.T) {
			if got := IsRetryableError(tt.statusCode); got != tt.want {
				t.Errorf("IsRetryableError(%d) = %v, want %v", tt.statusCode, got, tt.want)
			}
		})
	}
}
