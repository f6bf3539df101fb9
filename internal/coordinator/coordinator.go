package coordinator

import (
	"context"
	"log/slog"
	"time"

	"cryptowatch/internal/fetcher"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultWorkers bounds concurrent fetches per cycle.
	DefaultWorkers = 10
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 1500 * time.Millisecond
)

// Options configure one coordinator.
type Options struct {
	Workers int
	Timeout time.Duration
}

// Coordinator fans a cycle out to its fetchers and collects their results
type Coordinator[V any] struct {
	fetchers []fetcher.Fetcher[V]
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	// slots bounds Fetch calls in flight across cycles. A slot is held
	// until Fetch returns, even after its result was reported as a timeout.
	slots *semaphore.Weighted
}

// New creates a new Coordinator with the given fetchers. Zero options fall
// back to DefaultWorkers and DefaultTimeout.
func New[V any](fetchers []fetcher.Fetcher[V], opts Options, logger *slog.Logger) *Coordinator[V] {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator[V]{
		fetchers: fetchers,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		slots:    semaphore.NewWeighted(int64(opts.Workers)),
	}
}

// Items returns the tracked items in fetcher order.
func (c *Coordinator[V]) Items() []fetcher.Item {
	items := make([]fetcher.Item, len(c.fetchers))
	for i, f := range c.fetchers {
		items[i] = f.Item()
	}
	return items
}

// Len returns the number of fetchers.
func (c *Coordinator[V]) Len() int {
	return len(c.fetchers)
}

// RunCycle executes every fetcher once, at most Workers at a time, and
// returns one result per fetcher in fetcher order. It returns once every
// fetch has succeeded, failed or timed out; a single failure never aborts
// the cycle.
func (c *Coordinator[V]) RunCycle(ctx context.Context) []fetcher.Result[V] {
	results := make([]fetcher.Result[V], len(c.fetchers))

	p := pool.New().WithMaxGoroutines(c.opts.Workers)
	for i, f := range c.fetchers {
		p.Go(func() {
			results[i] = c.fetchOne(ctx, f)
		})
	}
	p.Wait()

	return results
}

type outcome[V any] struct {
	value V
	err   error
}

// fetchOne runs a single fetch under the per-fetch timeout. Waiting for a
// free slot counts against the timeout. The call is raced against the
// deadline, so a fetcher that ignores its context is abandoned on time; its
// goroutine keeps the slot until it returns and finishes into a buffered
// channel.
func (c *Coordinator[V]) fetchOne(ctx context.Context, f fetcher.Fetcher[V]) fetcher.Result[V] {
	item := f.Item()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := c.slots.Acquire(ctx, 1); err != nil {
		res := fetcher.Failure[V](item, err, c.now())
		c.logger.Warn("fetch skipped, no free worker slot before deadline",
			"key", item.Key(),
			"error_type", res.Err.Type,
		)
		return res
	}

	done := make(chan outcome[V], 1)
	go func() {
		defer c.slots.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[V]{err: fetcher.NewPanicError(r)}
			}
		}()
		v, err := f.Fetch(ctx)
		done <- outcome[V]{value: v, err: err}
	}()

	var res fetcher.Result[V]
	select {
	case o := <-done:
		if o.err != nil {
			res = fetcher.Failure[V](item, o.err, c.now())
		} else {
			res = fetcher.Success(item, o.value, c.now())
		}
	case <-ctx.Done():
		res = fetcher.Failure[V](item, ctx.Err(), c.now())
	}

	if !res.OK() {
		c.logger.Warn("fetch failed",
			"key", item.Key(),
			"error_type", res.Err.Type,
			"err", res.Err,
		)
	}

	return res
}
