package parallel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelizeCoversRange(t *testing.T) {
	for _, items := range []int{0, 1, 7, 1000} {
		seen := make([]int32, items)
		Parallelize(items, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, c := range seen {
			require.Equal(t, int32(1), c, "index %d visited %d times", i, c)
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, 1, calls)
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 3, Workers(8, 3))
	assert.Equal(t, 2, Workers(2, 10))
	assert.Equal(t, 1, Workers(4, 0))
	assert.GreaterOrEqual(t, Workers(0, 100), 1)
}

func TestForEachFillsSlots(t *testing.T) {
	const n = 50
	results := make([]int, n)
	err := ForEach(context.Background(), n, 4, func(_ context.Context, i int) {
		results[i] = i * i
	})
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, i*i, r)
	}
}

func TestForEachBoundsConcurrency(t *testing.T) {
	var running, peak int32
	var mu sync.Mutex
	err := ForEach(context.Background(), 40, 3, func(_ context.Context, i int) {
		cur := atomic.AddInt32(&running, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		atomic.AddInt32(&running, -1)
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, int32(3))
}

func TestForEachCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var done int32
	err := ForEach(ctx, 100, 1, func(_ context.Context, i int) {
		if atomic.AddInt32(&done, 1) == 5 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, atomic.LoadInt32(&done), int32(100))
}

func TestForEachAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := ForEach(ctx, 10, 2, func(context.Context, int) { called = true })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
