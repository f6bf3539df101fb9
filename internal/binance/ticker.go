package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cryptowatch/internal/fetcher"
	"cryptowatch/internal/market"
	"cryptowatch/internal/ratelimit"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"resty.dev/v3"
)

// DefaultBaseURL is the Binance spot REST endpoint.
const DefaultBaseURL = "https://api.binance.com"

// maxKlineRequests bounds the timeframe requests one ticker fetch runs at once.
const maxKlineRequests = 3

// TickerResponse represents the Binance /api/v3/ticker/24hr response
type TickerResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

// ErrorResponse is the payload Binance returns with 4xx statuses
type ErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// TickerFetcher fetches the 24h ticker of one trading pair from Binance
type TickerFetcher struct {
	pair       market.Pair
	timeframes []string
	client     *resty.Client
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

// NewTickerFetcher creates a new ticker fetcher. timeframes are kline
// intervals (1m, 5m, 1h, ...) whose percentage change is reported alongside
// the 24h ticker; they may be empty.
func NewTickerFetcher(pair market.Pair, timeframes []string, client *resty.Client, limiter *ratelimit.Limiter, logger *slog.Logger) *TickerFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TickerFetcher{
		pair:       pair,
		timeframes: timeframes,
		client:     client,
		limiter:    limiter,
		logger:     logger,
	}
}

// Item returns the tracked trading pair
func (f *TickerFetcher) Item() fetcher.Item {
	return fetcher.Item{
		Source: string(ratelimit.SourceBinance),
		ID:     f.pair.Symbol(),
		Label:  f.pair.Base,
	}
}

// Fetch retrieves the current price, 24h change and quote volume
func (f *TickerFetcher) Fetch(ctx context.Context) (market.Quote, error) {
	if err := f.limiter.Wait(ctx, ratelimit.SourceBinance); err != nil {
		return market.Quote{}, fetcher.Classify(err)
	}

	var result TickerResponse

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", f.pair.Symbol()).
		Get("/api/v3/ticker/24hr")

	if err != nil {
		return market.Quote{}, fetcher.Classify(err)
	}

	if !resp.IsSuccess() {
		fe := fetcher.ClassifyHTTPError(resp.StatusCode())
		var apiErr ErrorResponse
		if json.Unmarshal([]byte(resp.String()), &apiErr) == nil && apiErr.Msg != "" {
			fe.Message = fmt.Sprintf("binance error %d: %s", apiErr.Code, apiErr.Msg)
		}
		return market.Quote{}, fe
	}

	if err := fetcher.DecodeJSON(resp, &result); err != nil {
		return market.Quote{}, err
	}

	price, err := parseDecimal("lastPrice", result.LastPrice)
	if err != nil {
		return market.Quote{}, err
	}
	change, err := parseDecimal("priceChangePercent", result.PriceChangePercent)
	if err != nil {
		return market.Quote{}, err
	}
	volume, err := parseDecimal("quoteVolume", result.QuoteVolume)
	if err != nil {
		return market.Quote{}, err
	}

	return market.Quote{
		Symbol:        f.pair.Base,
		Price:         price,
		ChangePercent: change,
		QuoteVolume:   volume,
		Changes:       f.fetchChanges(ctx),
	}, nil
}

// fetchChanges computes the per-timeframe moves. A failing timeframe is
// reported with OK=false and never fails the ticker.
func (f *TickerFetcher) fetchChanges(ctx context.Context) []market.TimeframeChange {
	if len(f.timeframes) == 0 {
		return nil
	}

	changes := make([]market.TimeframeChange, len(f.timeframes))

	var g errgroup.Group
	g.SetLimit(maxKlineRequests)

	for i, tf := range f.timeframes {
		g.Go(func() error {
			pct, err := f.fetchChange(ctx, tf)
			if err != nil {
				fe := fetcher.Classify(err)
				f.logger.Warn("timeframe change unavailable",
					"pair", f.pair.String(),
					"timeframe", tf,
					"error_type", fe.Type,
					"err", fe,
				)
			}
			changes[i] = market.TimeframeChange{Timeframe: tf, Percent: pct, OK: err == nil}
			return nil
		})
	}
	_ = g.Wait()

	return changes
}

// fetchChange returns (close of the latest candle - open of the previous
// candle) / open * 100 for one interval.
func (f *TickerFetcher) fetchChange(ctx context.Context, interval string) (decimal.Decimal, error) {
	if err := f.limiter.Wait(ctx, ratelimit.SourceBinance); err != nil {
		return decimal.Zero, fetcher.Classify(err)
	}

	var rows [][]json.RawMessage

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   f.pair.Symbol(),
			"interval": interval,
			"limit":    "2",
		}).
		Get("/api/v3/klines")

	if err != nil {
		return decimal.Zero, fetcher.Classify(err)
	}
	if !resp.IsSuccess() {
		return decimal.Zero, fetcher.ClassifyHTTPError(resp.StatusCode())
	}
	if err := fetcher.DecodeJSON(resp, &rows); err != nil {
		return decimal.Zero, err
	}
	if len(rows) < 2 {
		return decimal.Zero, fetcher.NewParseError(fmt.Sprintf("expected 2 klines for %s, got %d", interval, len(rows)), nil)
	}

	open, err := klineField(rows[len(rows)-2], 1)
	if err != nil {
		return decimal.Zero, err
	}
	closePrice, err := klineField(rows[len(rows)-1], 4)
	if err != nil {
		return decimal.Zero, err
	}

	return market.PercentChange(open, closePrice), nil
}

// klineField decodes one string-encoded price column of a kline row.
func klineField(row []json.RawMessage, idx int) (decimal.Decimal, error) {
	if len(row) <= idx {
		return decimal.Zero, fetcher.NewParseError(fmt.Sprintf("kline row has %d columns", len(row)), nil)
	}
	var s string
	if err := json.Unmarshal(row[idx], &s); err != nil {
		return decimal.Zero, fetcher.NewParseError("kline price is not a string", err)
	}
	return parseDecimal("kline", s)
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fetcher.NewParseError(field+" not found in response", nil)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fetcher.NewParseError("failed to parse "+field, err)
	}
	return d, nil
}
