package snapshot

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrStaleSnapshot is returned by Publish when the snapshot is not newer
// than the current one.
var ErrStaleSnapshot = errors.New("snapshot is not newer than the published one")

// Store holds the currently published snapshot. Publish is meant for a single
// writer; Current may be called from any number of goroutines. Readers and
// the writer only meet on one atomic pointer.
type Store[V any] struct {
	current atomic.Pointer[Snapshot[V]]
}

// NewStore creates a store publishing initial.
func NewStore[V any](initial *Snapshot[V]) *Store[V] {
	if initial == nil {
		initial = &Snapshot[V]{}
	}
	s := &Store[V]{}
	s.current.Store(initial)
	return s
}

// Current returns the latest published snapshot. It is never nil and must be
// treated as read-only.
func (s *Store[V]) Current() *Snapshot[V] {
	return s.current.Load()
}

// Publish atomically replaces the current snapshot. Snapshots must be
// published in strictly increasing cycle order.
func (s *Store[V]) Publish(next *Snapshot[V]) error {
	if next == nil {
		return errors.New("publish: nil snapshot")
	}
	for {
		cur := s.current.Load()
		if next.Cycle <= cur.Cycle {
			return fmt.Errorf("publish cycle %d over %d: %w", next.Cycle, cur.Cycle, ErrStaleSnapshot)
		}
		if s.current.CompareAndSwap(cur, next) {
			return nil
		}
	}
}
