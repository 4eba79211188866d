package money

import (
	"fmt"
	"math"
)

// RoundCents rounds a raw monetary amount to the nearest cent,
// half-up. All engine arithmetic stays in int64 cents; float64 only
// appears transiently when a rate or distance multiplies an amount.
func RoundCents(raw float64) int64 {
	return int64(math.Floor(raw + 0.5))
}

// ApplyBps applies a basis-point rate (100 bps = 1%) to an amount in
// cents, rounding half-up at computation time so callers never compound
// rounding error during aggregation.
func ApplyBps(amountCents int64, bps int64) int64 {
	return RoundCents(float64(amountCents) * float64(bps) / 10000.0)
}

// FormatCents renders an amount in cents for display, e.g. 123450
// becomes "1234.50". Currency symbols belong to the presentation layer.
func FormatCents(amountCents int64) string {
	sign := ""
	if amountCents < 0 {
		sign = "-"
		amountCents = -amountCents
	}
	return fmt.Sprintf("%s%d.%02d", sign, amountCents/100, amountCents%100)
}
