package snapshot

import (
	"time"

	"cryptowatch/internal/fetcher"
)

// DefaultWindow is the number of cycle durations averaged into EffectiveRate.
const DefaultWindow = 10

// Cycle carries the measurements of the cycle being merged.
type Cycle struct {
	// Duration is the time the cycle spent fetching and merging.
	Duration time.Duration
	// At is the publication time stamped on the snapshot and on successful records.
	At time.Time
	// Window is the number of trailing durations used for EffectiveRate.
	Window int
}

// Merge builds the snapshot that follows prev from one cycle's results.
//
// Records keep prev's order and membership. A successful result replaces the
// record's value; a failed one keeps the previous value and marks the record
// stale. Results for keys not present in prev are ignored. prev is not
// modified.
func Merge[V any](prev *Snapshot[V], results []fetcher.Result[V], c Cycle) *Snapshot[V] {
	byKey := make(map[string]fetcher.Result[V], len(results))
	for _, r := range results {
		byKey[r.Item.Key()] = r
	}

	records := make([]Record[V], len(prev.Records))
	for i, old := range prev.Records {
		rec := old
		res, ok := byKey[old.Key]
		switch {
		case !ok:
			// not fetched this cycle
		case res.OK():
			rec.Value = res.Value
			rec.HasValue = true
			rec.UpdatedAt = c.At
			rec.Stale = false
			rec.LastError = ""
			rec.ErrorType = ""
			rec.ConsecutiveFailures = 0
		default:
			rec.Stale = true
			rec.LastError = res.Err.Error()
			rec.ErrorType = res.Err.Type
			rec.FailedAt = res.FetchedAt
			rec.ConsecutiveFailures++
		}
		records[i] = rec
	}

	window := appendWindow(prev.Window, c.Duration, c.Window)

	return &Snapshot[V]{
		Instance:      prev.Instance,
		Cycle:         prev.Cycle + 1,
		UpdatedAt:     c.At,
		CycleDuration: c.Duration,
		EffectiveRate: Rate(window),
		Window:        window,
		Records:       records,
	}
}

// appendWindow returns a new slice holding the last size durations
// including d. The input slice is never written to.
func appendWindow(window []time.Duration, d time.Duration, size int) []time.Duration {
	if size <= 0 {
		size = DefaultWindow
	}
	start := 0
	if len(window) >= size {
		start = len(window) - size + 1
	}
	out := make([]time.Duration, 0, size)
	out = append(out, window[start:]...)
	return append(out, d)
}

// Rate returns cycles per second over window, or zero when the window is
// empty or has no measurable duration.
func Rate(window []time.Duration) float64 {
	var total time.Duration
	for _, d := range window {
		total += d
	}
	if total <= 0 {
		return 0
	}
	return float64(len(window)) / total.Seconds()
}
