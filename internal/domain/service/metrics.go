package service

import "math"

// Basis returns future minus spot rounded to two decimals. A zero or
// missing leg means the price is not yet known, so no basis is reported.
func Basis(spot, future float64) (float64, bool) {
	if spot == 0 || future == 0 {
		return 0, false
	}
	return round2(future - spot), true
}

// CrossSpread returns venueB minus venueA rounded to two decimals, with
// the same zero-leg rule as Basis.
func CrossSpread(venueA, venueB float64) (float64, bool) {
	if venueA == 0 || venueB == 0 {
		return 0, false
	}
	return round2(venueB - venueA), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
