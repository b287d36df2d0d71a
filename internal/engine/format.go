package engine

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// FormatSats renders a millisat amount for display, e.g. "1.5k sats" or "0.25 BTC".
func FormatSats(millisats int64) string {
	sats := millisats / 1000
	if millisats < 0 && millisats%1000 != 0 {
		sats-- // floor, not truncate
	}

	d := decimal.NewFromInt(sats)
	switch {
	case sats >= 100_000_000:
		return d.Div(decimal.NewFromInt(100_000_000)).StringFixed(2) + " BTC"
	case sats >= 1_000_000:
		return d.Div(decimal.NewFromInt(1_000_000)).StringFixed(2) + "M sats"
	case sats >= 1_000:
		return d.Div(decimal.NewFromInt(1_000)).StringFixed(1) + "k sats"
	default:
		return strconv.FormatInt(sats, 10) + " sats"
	}
}
