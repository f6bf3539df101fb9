package fetcher

import "time"

// Result represents the outcome of one fetch for one item in one cycle.
// It's designed to be sent through channels from worker goroutines
// to the coordinator that collects a cycle and hands it to the merger.
//
// A Result with a nil Err is a success and Value is valid. Otherwise Value is
// the zero value and must not be used.
type Result[V any] struct {
	Item      Item
	Value     V
	Err       *FetchError
	FetchedAt time.Time
}

// Success builds a successful result.
func Success[V any](item Item, value V, at time.Time) Result[V] {
	return Result[V]{Item: item, Value: value, FetchedAt: at}
}

// Failure builds a failed result. err is classified into a *FetchError.
func Failure[V any](item Item, err error, at time.Time) Result[V] {
	fe := Classify(err)
	if fe == nil {
		fe = &FetchError{Type: ErrorTypeUnknown, Message: "fetch failed without an error"}
	}
	return Result[V]{Item: item, Err: fe, FetchedAt: at}
}

// OK reports whether the fetch succeeded.
func (r Result[V]) OK() bool {
	return r.Err == nil
}
