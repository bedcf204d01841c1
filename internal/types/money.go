// README: Money helpers shared by fare, ride and payment code.
package types

import "math"

// DefaultCurrency is the settlement currency for campus fares.
const DefaultCurrency = "INR"

// RoundMoney rounds half-up to two decimal places (currency minor unit).
// The small bias absorbs binary representation error, e.g. 2.675 -> 2.68.
func RoundMoney(v float64) float64 {
	if v < 0 {
		return -RoundMoney(-v)
	}
	return math.Floor(v*100+0.5+1e-9) / 100
}

// MinorUnits converts an amount to integer minor units (paise, cents).
func MinorUnits(v float64) int64 {
	return int64(math.Round(v * 100))
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(n int64) float64 {
	return float64(n) / 100
}
