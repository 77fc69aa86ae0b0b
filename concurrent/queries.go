package concurrent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Queries is a structured-concurrency scope for independent read queries.
//
// Tasks submitted to the scope run on a shared, bounded worker pool: at most
// pool-size queries are in flight at once. Submit never blocks the caller, so
// a running task may submit further work (recursive fan-out) without risking
// deadlock against the pool bound; the new work queues for a worker instead.
//
// Wait blocks until the whole scope is quiescent: every submitted task,
// including tasks submitted by other tasks, has completed. The first task
// error is retained and returned by Wait after the drain; once an error is
// recorded, or the scope context is cancelled, queued tasks are skipped.
type Queries struct {
	ctx    context.Context
	pool   *ants.Pool
	logger *slog.Logger

	wg sync.WaitGroup

	mu  sync.Mutex
	err error
}

// Option configures a Queries scope.
type Option func(*Queries)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queries) {
		if logger == nil {
			logger = slog.Default()
		}
		q.logger = logger
	}
}

// New creates a query scope executing on the given worker pool.
// The pool is shared and not released by the scope.
func New(ctx context.Context, pool *ants.Pool, opts ...Option) *Queries {
	q := &Queries{
		ctx:    ctx,
		pool:   pool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit schedules fn to run on the scope's worker pool. It returns
// immediately; fn may itself call Submit. A non-nil error from fn is
// retained as the scope error (first writer wins) and stops queued tasks
// from starting.
func (q *Queries) Submit(fn func(ctx context.Context) error) {
	q.wg.Add(1)
	// The goroutine, not the caller, blocks waiting for a pool worker.
	go func() {
		err := q.pool.Submit(func() {
			defer q.wg.Done()
			if q.skip() {
				return
			}
			if err := fn(q.ctx); err != nil {
				q.setErr(err)
			}
		})
		if err != nil {
			q.wg.Done()
			q.setErr(err)
		}
	}()
}

// Wait blocks until every submitted task has completed, then returns the
// first error recorded, or the context error if the scope was cancelled.
// No partial result set is silently lost: in-flight work always finishes
// before Wait returns.
func (q *Queries) Wait() error {
	q.wg.Wait()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	return q.ctx.Err()
}

func (q *Queries) skip() bool {
	if q.ctx.Err() != nil {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err != nil
}

func (q *Queries) setErr(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err == nil {
		q.err = err
		q.logger.Debug("query scope recorded error", "err", err)
	}
}

// Query submits a fetch whose rows are handed to callback on success.
// The callback is invoked exactly once per successful fetch and may submit
// further queries to the same scope. Callbacks run on pool workers; they
// must synchronize their own access to shared state.
func Query[T any](q *Queries, fetch func(ctx context.Context) (T, error), callback func(T)) {
	q.Submit(func(ctx context.Context) error {
		rows, err := fetch(ctx)
		if err != nil {
			return err
		}
		if callback != nil {
			callback(rows)
		}
		return nil
	})
}
