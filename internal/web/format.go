package web

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the timestamp format shown to users.
const TimeLayout = "2006-01-02 15:04:05"

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
	one      = decimal.NewFromInt(1)
)

// FormatVolume abbreviates a volume with K, M or B and two decimals.
func FormatVolume(v decimal.Decimal) string {
	switch {
	case v.GreaterThanOrEqual(billion):
		return v.Div(billion).StringFixed(2) + "B"
	case v.GreaterThanOrEqual(million):
		return v.Div(million).StringFixed(2) + "M"
	case v.GreaterThanOrEqual(thousand):
		return v.Div(thousand).StringFixed(2) + "K"
	default:
		return v.StringFixed(2)
	}
}

// FormatPrice shows two decimals, or six for prices below one.
func FormatPrice(p decimal.Decimal) string {
	if p.Abs().LessThan(one) {
		return p.StringFixed(6)
	}
	return p.StringFixed(2)
}

// FormatPercent renders a signed change with an arrow, e.g. ↑1.25% or ↓0.40%.
func FormatPercent(p decimal.Decimal) string {
	p = p.Round(2)
	switch p.Sign() {
	case 1:
		return "↑" + p.StringFixed(2) + "%"
	case -1:
		return "↓" + p.Abs().StringFixed(2) + "%"
	default:
		return "0.00%"
	}
}

// PercentClass is the CSS class for a change: up, down or flat.
func PercentClass(p decimal.Decimal) string {
	switch p.Round(2).Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

// FormatTime formats t in local time, or returns "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(TimeLayout)
}
