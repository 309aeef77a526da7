package service

import (
	"sort"

	"kitefeed/internal/domain/model"
)

// NearestFuture resolves the futures contract for an underlying with the
// earliest expiry in the catalog. Returns false when the underlying has no
// futures listing; callers treat that as a soft warning, not an error.
// Expired contracts are not filtered out before sorting, so the earliest
// entry can already be in the past around rollover.
func NearestFuture(catalog []model.Instrument, name string) (uint32, bool) {
	var futs []model.Instrument
	for _, in := range catalog {
		if in.Name == name && in.Segment == model.SegmentNSEFutures {
			futs = append(futs, in)
		}
	}
	if len(futs) == 0 {
		return 0, false
	}
	sort.Slice(futs, func(i, j int) bool {
		return futs[i].Expiry.Before(futs[j].Expiry)
	})
	return futs[0].Token, true
}

// Lookup finds an instrument by exchange and trading symbol.
func Lookup(catalog []model.Instrument, exchange, symbol string) (uint32, bool) {
	for _, in := range catalog {
		if in.Exchange == exchange && in.Symbol == symbol {
			return in.Token, true
		}
	}
	return 0, false
}
