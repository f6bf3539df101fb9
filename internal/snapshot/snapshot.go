// Package snapshot holds the published state of a refresh loop: an immutable
// Snapshot built by Merge once per cycle and the Store that hands the latest
// one to readers.
package snapshot

import (
	"time"

	"cryptowatch/internal/fetcher"
)

// Record is the latest known state of one tracked item.
//
// Value and UpdatedAt describe the last successful fetch. When the most
// recent fetch failed, Stale is set, the previous Value is kept and the
// failure is described by LastError, ErrorType and FailedAt.
type Record[V any] struct {
	Key                 string            `json:"key"`
	Source              string            `json:"source"`
	Label               string            `json:"label"`
	Value               V                 `json:"value"`
	HasValue            bool              `json:"has_value"`
	UpdatedAt           time.Time         `json:"updated_at"`
	Stale               bool              `json:"stale"`
	LastError           string            `json:"last_error,omitempty"`
	ErrorType           fetcher.ErrorType `json:"error_type,omitempty"`
	FailedAt            time.Time         `json:"failed_at"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
}

// Snapshot is the complete state as of one cycle. It must not be modified
// after it has been published.
type Snapshot[V any] struct {
	// Instance identifies the process that produced the snapshot. Cycle
	// numbers restart from zero when it changes.
	Instance      string        `json:"instance"`
	Cycle         uint64        `json:"cycle"`
	UpdatedAt     time.Time     `json:"updated_at"`
	CycleDuration time.Duration `json:"cycle_duration"`
	// EffectiveRate is cycles per second over the trailing Window.
	EffectiveRate float64         `json:"effective_rate"`
	Window        []time.Duration `json:"-"`
	Records       []Record[V]     `json:"records"`
}

// Initial returns the cycle-zero snapshot: one empty record per item, in
// the given order.
func Initial[V any](instance string, items []fetcher.Item) *Snapshot[V] {
	records := make([]Record[V], len(items))
	for i, item := range items {
		records[i] = Record[V]{
			Key:    item.Key(),
			Source: item.Source,
			Label:  item.Label,
		}
	}
	return &Snapshot[V]{
		Instance: instance,
		Records:  records,
	}
}

// Record returns the record for key.
func (s *Snapshot[V]) Record(key string) (Record[V], bool) {
	for _, r := range s.Records {
		if r.Key == key {
			return r, true
		}
	}
	return Record[V]{}, false
}

// Failed returns the number of records whose latest fetch failed.
func (s *Snapshot[V]) Failed() int {
	n := 0
	for _, r := range s.Records {
		if r.Stale {
			n++
		}
	}
	return n
}
