package market

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Quote is the latest market data for one trading pair or stock.
type Quote struct {
	Symbol        string            `json:"symbol"`
	Price         decimal.Decimal   `json:"price"`
	ChangePercent decimal.Decimal   `json:"change_percent"` // 24h change (%)
	QuoteVolume   decimal.Decimal   `json:"quote_volume"`   // 24h volume in quote currency
	Changes       []TimeframeChange `json:"changes,omitempty"`
}

// TimeframeChange is the percentage move over one candle timeframe.
// OK is false when the candles for that timeframe could not be fetched.
type TimeframeChange struct {
	Timeframe string          `json:"timeframe"`
	Percent   decimal.Decimal `json:"percent"`
	OK        bool            `json:"ok"`
}

var hundred = decimal.NewFromInt(100)

// PercentChange returns (to - from) / from * 100, or zero when from is zero.
func PercentChange(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(hundred)
}

// Pair is a base/quote trading pair such as BTC/USDT.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair parses "BTC/USDT" (or "btc-usdt") into a Pair.
func ParsePair(s string) (Pair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	sep := strings.IndexAny(s, "/-")
	if sep <= 0 || sep == len(s)-1 {
		return Pair{}, fmt.Errorf("invalid trading pair %q: expected BASE/QUOTE", s)
	}
	return Pair{Base: s[:sep], Quote: s[sep+1:]}, nil
}

// Symbol returns the exchange symbol, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return p.Base + p.Quote
}

// String returns the pair in BASE/QUOTE form.
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}
