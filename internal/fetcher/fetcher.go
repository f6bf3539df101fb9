package fetcher

import (
	"context"
	"fmt"
)

// Item identifies one externally monitored entity: a trading pair on an
// exchange or an address on a block explorer. The set of items is fixed at
// startup.
type Item struct {
	// Source is the external API the item is fetched from (binance, etherscan, ...)
	Source string
	// ID is the source-specific identifier (BTCUSDT, 0x3B2e...)
	ID string
	// Label is the short display name (BTC, 0x3B2e...)
	Label string
}

// Key returns a Redis-compatible hierarchical key for this item.
// Format: fetcher:{source}:{identifier}
// Examples:
//   - fetcher:binance:BTCUSDT
//   - fetcher:alphavantage:AAPL
//   - fetcher:etherscan:0x3B2eb8CddE3bbCb184d418c0568De2Eb40C3BfE6
func (i Item) Key() string {
	return fmt.Sprintf("fetcher:%s:%s", i.Source, i.ID)
}

// Fetcher is the core interface that all data fetchers must implement.
// Each fetcher knows how to retrieve the current value of a single tracked
// item from one external source.
type Fetcher[V any] interface {
	// Item returns the tracked item this fetcher is bound to.
	Item() Item

	// Fetch performs one bounded external call and returns the item's value.
	// Errors should be *FetchError; anything else is classified by the caller.
	Fetch(ctx context.Context) (V, error)
}
