package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/internal/contracts"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(clock *fakeClock, policy StalePolicy, timeout time.Duration) *Cache[string, int] {
	return New[string, int](Options{
		Name:      "test",
		OpTimeout: timeout,
		Policy:    policy,
		Clock:     clock.Now,
		Logger:    zerolog.Nop(),
	})
}

func counter(calls *atomic.Int32, value int) ComputeFunc[int] {
	return func(ctx context.Context) (int, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestGetOrCompute_HitWithinTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, PropagateOnError, time.Second)
	ctx := context.Background()
	var calls atomic.Int32

	v, err := c.GetOrCompute(ctx, "k", 30*time.Second, counter(&calls, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(29 * time.Second)
	v, err = c.GetOrCompute(ctx, "k", 30*time.Second, counter(&calls, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int32(1), calls.Load(), "compute must not run again within TTL")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Computes)
}

func TestGetOrCompute_RecomputesAfterExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, PropagateOnError, time.Second)
	ctx := context.Background()
	var calls atomic.Int32

	_, _ = c.GetOrCompute(ctx, "k", 30*time.Second, counter(&calls, 1))
	clock.Advance(30 * time.Second)

	v, err := c.GetOrCompute(ctx, "k", 30*time.Second, counter(&calls, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrCompute_SingleFlight(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, PropagateOnError, 5*time.Second)
	ctx := context.Background()

	var calls atomic.Int32
	slow := func(ctx context.Context) (int, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return 7, nil
	}

	// one expiry event per round
	for round := 0; round < 3; round++ {
		calls.Store(0)
		start := make(chan struct{})
		var wg sync.WaitGroup
		results := make([]int, 64)
		errs := make([]error, 64)

		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i], errs[i] = c.GetOrCompute(ctx, "k", 30*time.Second, slow)
			}(i)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load(), "round %d: compute must run exactly once", round)
		for i := range results {
			require.NoError(t, errs[i])
			assert.Equal(t, 7, results[i])
		}
		clock.Advance(31 * time.Second)
	}
}

func TestGetOrCompute_KeysAreIndependent(t *testing.T) {
	c := newTestCache(newFakeClock(), PropagateOnError, time.Second)
	ctx := context.Background()
	var calls atomic.Int32

	_, _ = c.GetOrCompute(ctx, "a", time.Minute, counter(&calls, 1))
	v, _ := c.GetOrCompute(ctx, "b", time.Minute, counter(&calls, 2))

	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, c.Len())
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(newFakeClock(), PropagateOnError, time.Second)
	ctx := context.Background()
	var calls atomic.Int32

	_, _ = c.GetOrCompute(ctx, "k", time.Hour, counter(&calls, 1))
	c.Invalidate("k")
	v, _ := c.GetOrCompute(ctx, "k", time.Hour, counter(&calls, 2))

	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), calls.Load())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
	_, _ = c.GetOrCompute(ctx, "k", time.Hour, counter(&calls, 3))
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvalidateDuringFlightDiscardsResult(t *testing.T) {
	c := newTestCache(newFakeClock(), PropagateOnError, 5*time.Second)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = c.GetOrCompute(ctx, "k", time.Hour, func(ctx context.Context) (int, error) {
			close(entered)
			<-release
			return 1, nil
		})
	}()

	<-entered
	c.Invalidate("k")
	close(release)

	var calls atomic.Int32
	require.Eventually(t, func() bool {
		v, err := c.GetOrCompute(ctx, "k", time.Hour, counter(&calls, 2))
		return err == nil && v == 2
	}, time.Second, 10*time.Millisecond)
}

func TestComputeFailure_NoPriorValue(t *testing.T) {
	c := newTestCache(newFakeClock(), ServeStaleOnError, time.Second)
	boom := errors.New("upstream 503")

	_, err := c.GetOrCompute(context.Background(), "k", time.Minute, func(ctx context.Context) (int, error) {
		return 0, boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompute)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len(), "failures are not cached")
}

func TestComputeFailure_Policies(t *testing.T) {
	tests := []struct {
		name      string
		policy    StalePolicy
		wantValue int
		wantErr   bool
	}{
		{"serve stale", ServeStaleOnError, 1, false},
		{"propagate", PropagateOnError, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c := newTestCache(clock, tt.policy, time.Second)
			ctx := context.Background()
			var calls atomic.Int32

			_, _ = c.GetOrCompute(ctx, "k", time.Minute, counter(&calls, 1))
			clock.Advance(2 * time.Minute)

			v, err := c.GetOrCompute(ctx, "k", time.Minute, func(ctx context.Context) (int, error) {
				return 0, contracts.ErrUnavailable
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, contracts.IsRetryable(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantValue, v)
			assert.Equal(t, int64(1), c.Stats().Failures)
		})
	}
}

func TestTimeoutIsSharedByAllWaiters(t *testing.T) {
	c := newTestCache(newFakeClock(), PropagateOnError, 80*time.Millisecond)
	ctx := context.Background()

	var calls atomic.Int32
	hang := func(ctx context.Context) (int, error) {
		calls.Add(1)
		time.Sleep(time.Second) // ignores ctx on purpose
		return 1, nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrCompute(ctx, "k", time.Minute, hang)
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second / 2):
		t.Fatal("waiters hung past the operation timeout")
	}

	for _, err := range errs {
		require.Error(t, err)
		assert.ErrorIs(t, err, contracts.ErrTimeout)
		assert.True(t, contracts.IsRetryable(err))
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallerCancelDoesNotCancelComputation(t *testing.T) {
	c := newTestCache(newFakeClock(), PropagateOnError, time.Second)

	started := make(chan struct{})
	var calls atomic.Int32
	slow := func(ctx context.Context) (int, error) {
		calls.Add(1)
		close(started)
		select {
		case <-time.After(50 * time.Millisecond):
			return 5, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, "k", time.Minute, slow)
		errCh <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	require.Eventually(t, func() bool {
		v, _, ok := c.Peek("k")
		return ok && v == 5
	}, time.Second, 10*time.Millisecond)

	v, err := c.GetOrCompute(context.Background(), "k", time.Minute, slow)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPanicBecomesError(t *testing.T) {
	c := newTestCache(newFakeClock(), PropagateOnError, time.Second)

	_, err := c.GetOrCompute(context.Background(), "k", time.Minute, func(ctx context.Context) (int, error) {
		panic("bad parse")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompute)
	assert.Contains(t, err.Error(), "bad parse")
}

func TestPurge(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, PropagateOnError, time.Second)
	ctx := context.Background()
	var calls atomic.Int32

	_, _ = c.GetOrCompute(ctx, "short", time.Second, counter(&calls, 1))
	_, _ = c.GetOrCompute(ctx, "long", time.Hour, counter(&calls, 2))
	clock.Advance(time.Minute)

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Stats().Live)
}
