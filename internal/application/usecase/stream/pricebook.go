package stream

import (
	"sync"

	"kitefeed/internal/domain/model"
	dsvc "kitefeed/internal/domain/service"
)

// MetricSpec is one configured derived metric. LegA is the spot (or venue
// A) token, LegB the future (or venue B) token.
type MetricSpec struct {
	Kind    string
	Subject string
	LegA    uint32
	LegB    uint32
}

type entry struct {
	price  float64
	ts     int64
	source string
}

// PriceBook holds the latest known price per instrument token for one
// session and computes the configured derived metrics from it. The tick
// and poll paths both write here; writes to the same token resolve
// last-write-wins, except that an update stamped strictly older than the
// cached entry is dropped.
type PriceBook struct {
	mu      sync.Mutex
	prices  map[uint32]entry
	specs   []MetricSpec
	watched map[uint32]struct{}
}

func NewPriceBook(specs []MetricSpec) *PriceBook {
	watched := make(map[uint32]struct{}, 2*len(specs))
	for _, sp := range specs {
		watched[sp.LegA] = struct{}{}
		watched[sp.LegB] = struct{}{}
	}
	return &PriceBook{
		prices:  make(map[uint32]entry),
		specs:   specs,
		watched: watched,
	}
}

// Apply records a price update. Returns true when the update was accepted
// and the token is referenced by at least one configured metric, i.e. the
// caller should recompute and push metrics.
func (b *PriceBook) Apply(q model.PriceQuote) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.prices[q.Token]; ok && q.Ts < e.ts {
		// Stale cross-source update (poll result racing a newer tick).
		return false
	}
	b.prices[q.Token] = entry{price: q.Price, ts: q.Ts, source: q.Source}

	_, w := b.watched[q.Token]
	return w
}

// Price returns the cached last price for a token.
func (b *PriceBook) Price(token uint32) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.prices[token]
	return e.price, ok
}

// Basis returns future minus spot for two cached tokens.
func (b *PriceBook) Basis(spotTok, futureTok uint32) (float64, bool) {
	b.mu.Lock()
	spot := b.prices[spotTok].price
	future := b.prices[futureTok].price
	b.mu.Unlock()
	return dsvc.Basis(spot, future)
}

// CrossSpread returns venueB minus venueA for two cached tokens.
func (b *PriceBook) CrossSpread(venueATok, venueBTok uint32) (float64, bool) {
	b.mu.Lock()
	a := b.prices[venueATok].price
	bb := b.prices[venueBTok].price
	b.mu.Unlock()
	return dsvc.CrossSpread(a, bb)
}

// Metrics recomputes every configured metric from the cached prices.
// O(configured metrics); callers invoke it synchronously after a relevant
// update.
func (b *PriceBook) Metrics() []model.DerivedMetric {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.DerivedMetric, 0, len(b.specs))
	for _, sp := range b.specs {
		legA := b.prices[sp.LegA].price
		legB := b.prices[sp.LegB].price

		var d float64
		var ok bool
		switch sp.Kind {
		case model.MetricBasis:
			d, ok = dsvc.Basis(legA, legB)
		case model.MetricCrossVenueSpread:
			d, ok = dsvc.CrossSpread(legA, legB)
		}

		diff := model.DiffUnavailable
		if ok {
			diff = model.FormatDiff(d)
		}
		out = append(out, model.DerivedMetric{
			Kind:    sp.Kind,
			Subject: sp.Subject,
			LegA:    legA,
			LegB:    legB,
			Diff:    diff,
		})
	}
	return out
}
