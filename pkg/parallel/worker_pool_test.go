package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_ResultsInInputOrder(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig().WithWorkers(4))

	inputs := []int{5, 3, 8, 1, 9, 2}
	results := pool.Execute(context.Background(), inputs, func(ctx context.Context, n int) (int, error) {
		return n * 10, nil
	})

	require.Len(t, results, len(inputs))
	for i, r := range results {
		assert.Equal(t, inputs[i], r.Input)
		assert.Equal(t, inputs[i]*10, r.Result)
		assert.NoError(t, r.Error)
	}
}

func TestWorkerPool_ConcurrencyBound(t *testing.T) {
	const workers = 3
	pool := NewWorkerPool[int, int](PoolConfig{MaxWorkers: workers})

	var current, peak int64
	var mu sync.Mutex

	inputs := make([]int, 50)
	pool.Execute(context.Background(), inputs, func(ctx context.Context, n int) (int, error) {
		c := atomic.AddInt64(&current, 1)
		mu.Lock()
		if c > peak {
			peak = c
		}
		mu.Unlock()
		defer atomic.AddInt64(&current, -1)
		return 0, nil
	})

	assert.LessOrEqual(t, peak, int64(workers))
}

func TestWorkerPool_ErrorsPerTask(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig())
	boom := errors.New("boom")

	results := pool.Execute(context.Background(), []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})

	assert.NoError(t, results[0].Error)
	assert.ErrorIs(t, results[1].Error, boom)
	assert.NoError(t, results[2].Error)
}

func TestWorkerPool_CancelledContext(t *testing.T) {
	pool := NewWorkerPool[int, int](PoolConfig{MaxWorkers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := pool.Execute(ctx, []int{1, 2, 3, 4}, func(ctx context.Context, n int) (int, error) {
		return n, nil
	})

	for _, r := range results {
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
}

func TestWorkerPool_EmptyInput(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig())
	assert.Nil(t, pool.Execute(context.Background(), nil, func(ctx context.Context, n int) (int, error) {
		return n, nil
	}))
}
