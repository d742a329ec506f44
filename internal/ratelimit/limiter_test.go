package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireUnderLimit(t *testing.T) {
	l := New(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Equal(t, 3, l.CurrentUsage())
	assert.Greater(t, l.TimeUntilNextSlot(), time.Duration(0))
}

func TestTimeUntilNextSlotZeroWhenFree(t *testing.T) {
	l := New(5, time.Minute)
	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, time.Duration(0), l.TimeUntilNextSlot())
}

func TestWindowNeverOversubscribed(t *testing.T) {
	const max = 4
	window := 100 * time.Millisecond
	l := New(max, window)

	var mu sync.Mutex
	var grants []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, grants, 12)
	// Every grant timestamp must have fewer than max grants in the window
	// preceding it (itself included makes exactly max at most).
	for _, g := range grants {
		count := 0
		for _, other := range grants {
			if !other.After(g) && g.Sub(other) < window {
				count++
			}
		}
		assert.LessOrEqual(t, count, max, "window oversubscribed at %v", g)
	}
}

func TestAcquireBlocksUntilSlotExpires(t *testing.T) {
	window := 80 * time.Millisecond
	l := New(1, window)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), window/2)
}

func TestAcquireObservesCancellation(t *testing.T) {
	l := New(1, time.Minute)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.CurrentUsage())
}

func TestUsageDropsAfterWindow(t *testing.T) {
	l := New(2, 40*time.Millisecond)
	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))
	assert.Equal(t, 2, l.CurrentUsage())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, l.CurrentUsage())
}
