package web

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFormatVolume(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"999.994", "999.99"},
		{"1000", "1.00K"},
		{"15320.5", "15.32K"},
		{"2500000", "2.50M"},
		{"1234567890", "1.23B"},
		{"25000000000", "25.00B"},
	}
	for _, tt := range tests {
		if got := FormatVolume(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatVolume(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		wantClass string
	}{
		{"1.256", "↑1.26%", "up"},
		{"-0.4", "↓0.40%", "down"},
		{"0", "0.00%", "flat"},
		{"0.001", "0.00%", "flat"},
		{"-0.004", "0.00%", "flat"},
	}
	for _, tt := range tests {
		p := decimal.RequireFromString(tt.in)
		if got := FormatPercent(p); got != tt.want {
			t.Errorf("FormatPercent(%s) = %q, want %q", tt.in, got, tt.want)
		}
		if got := PercentClass(p); got != tt.wantClass {
			t.Errorf("PercentClass(%s) = %q, want %q", tt.in, got, tt.wantClass)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"67321.456", "67321.46"},
		{"1", "1.00"},
		{"0.0812345", "0.081235"},
	}
	for _, tt := range tests {
		if got := FormatPrice(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatPrice(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime(time.Time{}); got != "" {
		t.Errorf("FormatTime(zero) = %q, want empty", got)
	}
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	if got := FormatTime(ts); got != "2024-03-09 14:05:07" {
		t.Errorf("FormatTime() = %q", got)
	}
}
