package alphavantage

import (
	"context"
	"fmt"
	"strings"

	"cryptowatch/internal/fetcher"
	"cryptowatch/internal/market"
	"cryptowatch/internal/ratelimit"

	"github.com/shopspring/decimal"
	"resty.dev/v3"
)

// DefaultBaseURL is the AlphaVantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// GlobalQuoteResponse represents the AlphaVantage API response for stock quotes.
// Throttled or rejected requests come back with 200 and one of the message fields set.
type GlobalQuoteResponse struct {
	GlobalQuote struct {
		Symbol           string `json:"01. symbol"`
		Open             string `json:"02. open"`
		High             string `json:"03. high"`
		Low              string `json:"04. low"`
		Price            string `json:"05. price"`
		Volume           string `json:"06. volume"`
		LatestTradingDay string `json:"07. latest trading day"`
		PreviousClose    string `json:"08. previous close"`
		Change           string `json:"09. change"`
		ChangePercent    string `json:"10. change percent"`
	} `json:"Global Quote"`

	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// QuoteFetcher fetches stock quotes from AlphaVantage
type QuoteFetcher struct {
	apiKey  string
	ticker  string
	client  *resty.Client
	limiter *ratelimit.Limiter
}

// NewQuoteFetcher creates a new stock quote fetcher
func NewQuoteFetcher(apiKey, ticker string, client *resty.Client, limiter *ratelimit.Limiter) *QuoteFetcher {
	return &QuoteFetcher{
		apiKey:  apiKey,
		ticker:  strings.ToUpper(ticker),
		client:  client,
		limiter: limiter,
	}
}

// Item returns the tracked stock ticker
func (f *QuoteFetcher) Item() fetcher.Item {
	return fetcher.Item{
		Source: string(ratelimit.SourceAlphaVantage),
		ID:     f.ticker,
		Label:  f.ticker,
	}
}

// Fetch retrieves the current stock quote
func (f *QuoteFetcher) Fetch(ctx context.Context) (market.Quote, error) {
	if err := f.limiter.Wait(ctx, ratelimit.SourceAlphaVantage); err != nil {
		return market.Quote{}, fetcher.Classify(err)
	}

	var result GlobalQuoteResponse

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey":   f.apiKey,
			"function": "GLOBAL_QUOTE",
			"symbol":   f.ticker,
		}).
		Get("")

	if err != nil {
		return market.Quote{}, fetcher.Classify(err)
	}

	if !resp.IsSuccess() {
		return market.Quote{}, fetcher.ClassifyHTTPError(resp.StatusCode())
	}
	if err := fetcher.DecodeJSON(resp, &result); err != nil {
		return market.Quote{}, err
	}

	switch {
	case result.Note != "":
		return market.Quote{}, fetcher.NewRateLimitError(0, result.Note)
	case result.ErrorMessage != "":
		return market.Quote{}, fetcher.NewSourceError(result.ErrorMessage)
	case result.Information != "":
		return market.Quote{}, fetcher.NewSourceError(result.Information)
	}

	q := result.GlobalQuote
	if q.Price == "" {
		return market.Quote{}, fetcher.NewParseError(fmt.Sprintf("price not found in response for %s", f.ticker), nil)
	}

	price, err := decimal.NewFromString(q.Price)
	if err != nil {
		return market.Quote{}, fetcher.NewParseError("failed to parse stock price", err)
	}

	// "0.98%" -> 0.98; a missing change is reported as zero
	change := decimal.Zero
	if pct := strings.TrimSuffix(q.ChangePercent, "%"); pct != "" {
		change, err = decimal.NewFromString(pct)
		if err != nil {
			return market.Quote{}, fetcher.NewParseError("failed to parse change percent", err)
		}
	}

	// AlphaVantage reports share volume; convert to quote currency like the exchanges do
	volume := decimal.Zero
	if q.Volume != "" {
		shares, err := decimal.NewFromString(q.Volume)
		if err != nil {
			return market.Quote{}, fetcher.NewParseError("failed to parse volume", err)
		}
		volume = shares.Mul(price)
	}

	return market.Quote{
		Symbol:        f.ticker,
		Price:         price,
		ChangePercent: change,
		QuoteVolume:   volume,
	}, nil
}
