package model

import "strconv"

// Metric kinds.
const (
	MetricBasis            = "BASIS"
	MetricCrossVenueSpread = "CROSS_VENUE_SPREAD"
)

// DiffUnavailable is reported when either leg of a metric is missing or
// zero: the price is "not yet available", not a real zero difference.
const DiffUnavailable = "--"

// PriceQuote is the internal price representation shared by the tick and
// poll paths. Source is "tick" or "poll".
type PriceQuote struct {
	Token  uint32  `json:"token"`
	Price  float64 `json:"last_price"`
	Source string  `json:"source"`
	Ts     int64   `json:"ts_ms"`
}

// DerivedMetric is recomputed transiently on every relevant price update
// and never persisted.
type DerivedMetric struct {
	Kind    string  `json:"kind"`
	Subject string  `json:"subject"`
	LegA    float64 `json:"leg_a"`
	LegB    float64 `json:"leg_b"`
	Diff    string  `json:"diff"` // 2-decimal difference, or "--"
}

// FormatDiff renders a computed difference the way clients display it.
func FormatDiff(d float64) string {
	return strconv.FormatFloat(d, 'f', 2, 64)
}
