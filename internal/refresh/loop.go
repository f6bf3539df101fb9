// Package refresh drives the fetch, merge, publish cycle of one group of
// tracked items at a target cadence.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"cryptowatch/internal/fetcher"
	"cryptowatch/internal/snapshot"
)

// ErrNoItems is returned by RunOnce when there is nothing to fetch.
var ErrNoItems = errors.New("no tracked items configured")

// State is the phase the loop is currently in.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateMerging
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StatePublished:
		return "published"
	default:
		return "unknown"
	}
}

// Scheduler runs one fetch per tracked item. It is satisfied by
// *coordinator.Coordinator.
type Scheduler[V any] interface {
	RunCycle(ctx context.Context) []fetcher.Result[V]
	Len() int
}

// Observer is notified after every successful publish. Observers run on the
// loop goroutine and must return quickly.
type Observer[V any] interface {
	Published(ctx context.Context, s *snapshot.Snapshot[V])
}

// ObserverFunc is a function adapter for Observer.
type ObserverFunc[V any] func(ctx context.Context, s *snapshot.Snapshot[V])

func (f ObserverFunc[V]) Published(ctx context.Context, s *snapshot.Snapshot[V]) {
	f(ctx, s)
}

// Config holds loop configuration.
type Config struct {
	Name     string        // Used in logs and metrics
	Interval time.Duration // Target time between cycle starts
	Window   int           // Cycle durations averaged into the effective rate
}

// Loop periodically refreshes a snapshot store. Exactly one Loop may publish
// to a store.
type Loop[V any] struct {
	cfg       Config
	scheduler Scheduler[V]
	store     *snapshot.Store[V]
	observers []Observer[V]
	logger    *slog.Logger

	state  atomic.Int32
	cycles atomic.Uint64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new Loop.
func New[V any](cfg Config, scheduler Scheduler[V], store *snapshot.Store[V], logger *slog.Logger, observers ...Observer[V]) *Loop[V] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Window <= 0 {
		cfg.Window = snapshot.DefaultWindow
	}
	return &Loop[V]{
		cfg:       cfg,
		scheduler: scheduler,
		store:     store,
		observers: observers,
		logger:    logger.With("loop", cfg.Name),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Name returns the configured loop name.
func (l *Loop[V]) Name() string {
	return l.cfg.Name
}

// State returns the current phase.
func (l *Loop[V]) State() State {
	return State(l.state.Load())
}

// Cycles returns the number of cycles published by this loop.
func (l *Loop[V]) Cycles() uint64 {
	return l.cycles.Load()
}

// Store returns the store the loop publishes to.
func (l *Loop[V]) Store() *snapshot.Store[V] {
	return l.store
}

// Delay is the pause between the end of a cycle and the start of the next:
// max(0, target - elapsed). A cycle that overran starts the next one at once.
func Delay(target, elapsed time.Duration) time.Duration {
	if d := target - elapsed; d > 0 {
		return d
	}
	return 0
}

// Run drives cycles until ctx is cancelled, then returns ctx.Err(). Cycles
// never overlap. A failed cycle is logged and the loop carries on.
func (l *Loop[V]) Run(ctx context.Context) error {
	l.logger.Info("refresh loop started",
		"interval", l.cfg.Interval,
		"items", l.scheduler.Len(),
	)
	defer func() {
		l.logger.Info("refresh loop stopped", "cycles", l.Cycles())
	}()

	for {
		start := l.now()
		snap, err := l.RunOnce(ctx)
		elapsed := l.now().Sub(start)

		if ctx.Err() != nil {
			l.setState(StateIdle)
			return ctx.Err()
		}

		delay := Delay(l.cfg.Interval, elapsed)
		switch {
		case errors.Is(err, ErrNoItems):
			l.logger.Error("skipping cycle", "err", err)
			delay = l.cfg.Interval
		case err != nil:
			l.logger.Error("cycle failed", "err", err)
		default:
			l.logger.Debug("cycle published",
				"cycle", snap.Cycle,
				"items", len(snap.Records),
				"failed", snap.Failed(),
				"duration", elapsed,
				"sleep", delay,
			)
		}

		l.setState(StateIdle)
		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// RunOnce performs a single fetch, merge, publish cycle and returns the
// published snapshot. Nothing is published when ctx is cancelled mid-cycle.
func (l *Loop[V]) RunOnce(ctx context.Context) (*snapshot.Snapshot[V], error) {
	if l.scheduler.Len() == 0 {
		return nil, ErrNoItems
	}

	start := l.now()

	l.setState(StateFetching)
	results := l.scheduler.RunCycle(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.setState(StateMerging)
	finished := l.now()
	next := snapshot.Merge(l.store.Current(), results, snapshot.Cycle{
		Duration: finished.Sub(start),
		At:       finished,
		Window:   l.cfg.Window,
	})

	if err := l.store.Publish(next); err != nil {
		return nil, err
	}
	l.setState(StatePublished)
	l.cycles.Add(1)

	for _, o := range l.observers {
		o.Published(ctx, next)
	}

	return next, nil
}

func (l *Loop[V]) setState(s State) {
	l.state.Store(int32(s))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
