package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterStartsWithBufferedCapacity(t *testing.T) {
	l := NewLimiter("anthropic", Config{TokensPerMinute: 6000, MaxConcurrency: 5})

	stats := l.GetStats()
	assert.Equal(t, 5400, stats.Capacity, "capacity is 90%% of tokens per minute")
	assert.Equal(t, 5400, stats.AvailableTokens)
	assert.Equal(t, "anthropic", stats.Provider)
}

func TestAcquireConsumesTokens(t *testing.T) {
	l := NewLimiter("anthropic", Config{TokensPerMinute: 6000, MaxConcurrency: 5})

	release, err := l.Acquire(context.Background(), 3000)
	require.NoError(t, err)

	stats := l.GetStats()
	assert.Equal(t, 2400, stats.AvailableTokens)
	assert.Equal(t, 1, stats.ActiveRequests)

	release()
	assert.Equal(t, 0, l.GetStats().ActiveRequests)

	// Double release must not underflow the slot count.
	release()
	assert.Equal(t, 0, l.GetStats().ActiveRequests)
}

func TestLazyRefillCreditsElapsedTime(t *testing.T) {
	l := NewLimiter("openai", Config{TokensPerMinute: 6000, MaxConcurrency: 5})

	clock := l.now()
	l.now = func() time.Time { return clock }

	release, err := l.Acquire(context.Background(), 3000)
	require.NoError(t, err)
	release()
	require.Equal(t, 2400, l.GetStats().AvailableTokens)

	// 6 seconds at 100 tokens/sec credits 600 tokens.
	clock = clock.Add(6 * time.Second)
	l.mu.Lock()
	l.refillLocked()
	l.mu.Unlock()
	assert.Equal(t, 3000, l.GetStats().AvailableTokens)

	// A long idle period tops out at capacity, never above.
	clock = clock.Add(time.Hour)
	l.mu.Lock()
	l.refillLocked()
	l.mu.Unlock()
	assert.Equal(t, 5400, l.GetStats().AvailableTokens)
}

func TestAcquireRejectsImpossibleBudget(t *testing.T) {
	l := NewLimiter("google", Config{TokensPerMinute: 1000, MaxConcurrency: 5})

	_, err := l.Acquire(context.Background(), 901)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caps at 900")
}

func TestAcquireBlocksOnConcurrencyNotTokens(t *testing.T) {
	l := NewLimiter("anthropic", Config{TokensPerMinute: 100000, MaxConcurrency: 2})
	ctx := context.Background()

	r1, err := l.Acquire(ctx, 1000)
	require.NoError(t, err)
	defer r1()
	r2, err := l.Acquire(ctx, 1000)
	require.NoError(t, err)
	defer r2()

	before := l.GetStats().AvailableTokens

	shortCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(shortCtx, 1000)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	stats := l.GetStats()
	// The failed acquisition consumed nothing.
	assert.Equal(t, before, stats.AvailableTokens)
	assert.Equal(t, int64(1), stats.ConcurrencyWaits)
	assert.Zero(t, stats.TokenWaits)
}

func TestAcquireBlocksOnTokenExhaustion(t *testing.T) {
	l := NewLimiter("anthropic", Config{TokensPerMinute: 1000, MaxConcurrency: 5})
	// Freeze the clock so the bucket cannot refill during the wait.
	clock := l.now()
	l.now = func() time.Time { return clock }

	release, err := l.Acquire(context.Background(), 900)
	require.NoError(t, err)
	defer release()

	shortCtx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(shortCtx, 100)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	stats := l.GetStats()
	assert.Equal(t, int64(1), stats.TokenWaits)
	assert.Zero(t, stats.ConcurrencyWaits)
}

func TestAcquireUnblocksWhenSlotFrees(t *testing.T) {
	l := NewLimiter("anthropic", Config{TokensPerMinute: 100000, MaxConcurrency: 1})
	ctx := context.Background()

	release, err := l.Acquire(ctx, 100)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := l.Acquire(ctx, 100)
		if err == nil {
			r()
		}
		close(acquired)
	}()

	release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired after the slot was released")
	}
}

func TestConcurrentAcquisitionsStayConsistent(t *testing.T) {
	l := NewLimiter("anthropic", Config{TokensPerMinute: 60000, MaxConcurrency: 10})

	const workers = 20
	var wg sync.WaitGroup
	var succeeded atomic.Int32

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			release, err := l.Acquire(ctx, 1000)
			if err != nil {
				return
			}
			defer release()
			succeeded.Add(1)
			time.Sleep(10 * time.Millisecond)
		}()
	}
	wg.Wait()

	require.Positive(t, succeeded.Load())
	stats := l.GetStats()
	assert.Zero(t, stats.ActiveRequests)
	assert.GreaterOrEqual(t, stats.AvailableTokens, 0)
	assert.LessOrEqual(t, stats.AvailableTokens, stats.Capacity)
}
