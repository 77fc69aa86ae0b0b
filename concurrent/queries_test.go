package concurrent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, size int) *ants.Pool {
	t.Helper()
	pool, err := ants.NewPool(size)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return pool
}

func TestSubmit_RunsAllTasks(t *testing.T) {
	pool := newTestPool(t, 4)
	q := New(context.Background(), pool)

	var count atomic.Int64
	for i := 0; i < 100; i++ {
		q.Submit(func(ctx context.Context) error {
			count.Add(1)
			return nil
		})
	}
	require.NoError(t, q.Wait())
	assert.Equal(t, int64(100), count.Load())
}

func TestSubmit_ConcurrencyBounded(t *testing.T) {
	const limit = 4
	pool := newTestPool(t, limit)
	q := New(context.Background(), pool)

	var inFlight, peak atomic.Int64
	for i := 0; i < 60; i++ {
		q.Submit(func(ctx context.Context) error {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		})
	}
	require.NoError(t, q.Wait())
	assert.LessOrEqual(t, peak.Load(), int64(limit))
}

func TestSubmit_RecursiveFanOut(t *testing.T) {
	// A small pool proves recursive submission cannot deadlock against the
	// concurrency bound.
	pool := newTestPool(t, 2)
	q := New(context.Background(), pool)

	var count atomic.Int64
	var spawn func(depth int)
	spawn = func(depth int) {
		q.Submit(func(ctx context.Context) error {
			count.Add(1)
			if depth < 3 {
				for i := 0; i < 4; i++ {
					spawn(depth + 1)
				}
			}
			return nil
		})
	}
	spawn(0)

	require.NoError(t, q.Wait())
	// 1 + 4 + 16 + 64 tasks across the tree.
	assert.Equal(t, int64(85), count.Load())
}

func TestWait_SurfacesFirstErrorAfterDrain(t *testing.T) {
	pool := newTestPool(t, 2)
	q := New(context.Background(), pool)

	boom := errors.New("boom")
	var finished atomic.Int64

	q.Submit(func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		finished.Add(1)
		return nil
	})
	q.Submit(func(ctx context.Context) error {
		return boom
	})

	err := q.Wait()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), finished.Load(), "in-flight work must drain before Wait returns")
}

func TestSubmit_SkipsQueuedTasksAfterError(t *testing.T) {
	pool := newTestPool(t, 1)
	q := New(context.Background(), pool)

	boom := errors.New("boom")
	q.Submit(func(ctx context.Context) error { return boom })
	require.ErrorIs(t, q.Wait(), boom)

	var ran atomic.Bool
	q.Submit(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, q.Wait(), boom)
	assert.False(t, ran.Load())
}

func TestWait_Cancellation(t *testing.T) {
	pool := newTestPool(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	q := New(ctx, pool)

	var ran atomic.Int64
	q.Submit(func(ctx context.Context) error {
		ran.Add(1)
		cancel()
		// Work submitted after cancellation must never run.
		q.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
		return nil
	})

	err := q.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), ran.Load())
}

func TestQuery_CallbackReceivesRows(t *testing.T) {
	pool := newTestPool(t, 4)
	q := New(context.Background(), pool)

	var mu sync.Mutex
	var got []int
	Query(q, func(ctx context.Context) ([]int, error) {
		return []int{1, 2, 3}, nil
	}, func(rows []int) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, rows...)
	})

	require.NoError(t, q.Wait())
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestQuery_FetchErrorSkipsCallback(t *testing.T) {
	pool := newTestPool(t, 4)
	q := New(context.Background(), pool)

	boom := errors.New("boom")
	called := false
	Query(q, func(ctx context.Context) (int, error) {
		return 0, boom
	}, func(int) {
		called = true
	})

	assert.ErrorIs(t, q.Wait(), boom)
	assert.False(t, called)
}
