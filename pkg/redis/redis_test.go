package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wonny/marketlens/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{Redis: config.RedisConfig{Enabled: false}}

	client, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
}

func TestCache_DisabledIsNoop(t *testing.T) {
	cache := NewCache(&Client{}, "test")
	ctx := context.Background()

	if err := cache.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Errorf("Set() error = %v", err)
	}
	var out string
	found, err := cache.Get(ctx, "k", &out)
	if err != nil || found {
		t.Errorf("Get() = %v, %v; want false, nil", found, err)
	}
}

func TestCache_SetGet(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCache(client, "ml")
	ctx := context.Background()

	type payload struct {
		Symbol string    `json:"symbol"`
		Closes []float64 `json:"closes"`
	}
	in := payload{Symbol: "AAPL", Closes: []float64{1, 2, 3}}

	if err := cache.Set(ctx, HistoryKey("AAPL", 2), in, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("ml:cache:history:AAPL:2y") {
		t.Errorf("Expected prefixed key, got keys %v", mr.Keys())
	}

	var out payload
	found, err := cache.Get(ctx, HistoryKey("AAPL", 2), &out)
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if out.Symbol != "AAPL" || len(out.Closes) != 3 {
		t.Errorf("Get() = %+v", out)
	}

	mr.FastForward(2 * time.Hour)
	found, _ = cache.Get(ctx, HistoryKey("AAPL", 2), &out)
	if found {
		t.Error("Expected key to expire")
	}
}

func TestCache_Flush(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCache(client, "ml")
	ctx := context.Background()

	_ = cache.Set(ctx, "a", 1, time.Minute)
	_ = cache.Set(ctx, "b", 2, time.Minute)
	_ = mr.Set("other:key", "x")

	n, err := cache.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Flush() removed %d, want 2", n)
	}
	if !mr.Exists("other:key") {
		t.Error("Flush() removed a key outside the prefix")
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, "ml", RateLimitConfig{Key: "yahoo", Limit: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, err := limiter.Allow(ctx)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if remaining != 2-i {
			t.Errorf("remaining = %d, want %d", remaining, 2-i)
		}
	}

	allowed, _, err := limiter.Allow(ctx)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("4th request should be rejected")
	}
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, "ml", RateLimitConfig{Key: "yahoo", Limit: 1, Window: time.Minute})

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx); err == nil {
		t.Error("Expected Wait() to fail once the context expires")
	}
}
