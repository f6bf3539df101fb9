package ratelimit

import (
	"context"
	"fmt"

	"cryptowatch/internal/fetcher"

	"golang.org/x/time/rate"
)

// Source names an external API we interact with
type Source string

const (
	// SourceBinance represents the Binance spot REST API
	SourceBinance Source = "binance"
	// SourceAlphaVantage represents the AlphaVantage API
	SourceAlphaVantage Source = "alphavantage"
	// SourceEtherscan represents the Etherscan API
	SourceEtherscan Source = "etherscan"
)

// Limiter manages rate limits for different APIs. It is read-only after New
// and safe for concurrent use. A nil *Limiter allows everything.
type Limiter struct {
	limiters map[Source]*rate.Limiter
}

// Budget is the request allowance of one source: a sustained rate plus a
// burst that lets a cycle start without queueing.
type Budget struct {
	Rate  rate.Limit
	Burst int
}

// New creates a limiter with one token bucket per source. A burst below 1
// is treated as 1.
func New(budgets map[Source]Budget) *Limiter {
	l := &Limiter{limiters: make(map[Source]*rate.Limiter, len(budgets))}
	for source, b := range budgets {
		l.limiters[source] = rate.NewLimiter(b.Rate, max(b.Burst, 1))
	}
	return l
}

// Defaults returns the production limits. They leave headroom under each
// provider's published quota while letting one price cycle of the default
// configuration (10 tickers and 60 klines) finish well inside its fetch
// timeout.
func Defaults() *Limiter {
	return New(map[Source]Budget{
		// Binance: 6000 request weight per minute, tickers and klines weigh 2
		// each, so 50 req/s is the ceiling
		SourceBinance: {Rate: 40, Burst: 20},
		// AlphaVantage: 5 requests per minute on free tier = 1 request every 12 seconds
		SourceAlphaVantage: {Rate: rate.Limit(1.0 / 12.0), Burst: 1},
		// Etherscan: free tier allows 5 calls/s
		SourceEtherscan: {Rate: 4, Burst: 1},
	})
}

// Unlimited returns a limiter that never blocks. Used by tests.
func Unlimited() *Limiter {
	return New(map[Source]Budget{
		SourceBinance:      {Rate: rate.Inf},
		SourceAlphaVantage: {Rate: rate.Inf},
		SourceEtherscan:    {Rate: rate.Inf},
	})
}

// Wait blocks until the rate limiter permits an event for the given API.
// It returns the context error if ctx is done first, and a rate limit
// FetchError when the next slot lies beyond ctx's deadline.
func (l *Limiter) Wait(ctx context.Context, source Source) error {
	limiter := l.get(source)
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fetcher.NewRateLimitError(0, fmt.Sprintf("%s request budget exhausted until after deadline", source))
	}
	return nil
}

func (l *Limiter) get(source Source) *rate.Limiter {
	if l == nil {
		return nil
	}
	return l.limiters[source]
}
