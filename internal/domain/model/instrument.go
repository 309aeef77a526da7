package model

import (
	"hash/fnv"
	"time"
)

// Exchange and segment identifiers as they appear in the upstream
// instrument dump.
const (
	ExchangeNSE = "NSE"
	ExchangeBSE = "BSE"

	SegmentIndices    = "INDICES"
	SegmentNSEFutures = "NFO-FUT"

	TypeEquity = "EQ"
	TypeFuture = "FUT"
)

// Instrument is one row of the upstream instrument catalog. Immutable once
// loaded; the catalog is re-fetched per stream start, never mutated.
type Instrument struct {
	Token          uint32    `json:"instrument_token"`
	ExchangeToken  uint32    `json:"exchange_token"`
	Symbol         string    `json:"tradingsymbol"` // e.g. "NIFTY25SEPFUT"
	Name           string    `json:"name"`          // underlying, e.g. "NIFTY"
	Exchange       string    `json:"exchange"`
	Segment        string    `json:"segment"`
	InstrumentType string    `json:"instrument_type"` // EQ, FUT, CE, PE
	Expiry         time.Time `json:"expiry"`          // zero for non-derivatives
	LastPrice      float64   `json:"last_price"`
}

// Logical roles inside an InstrumentSet.
const (
	RoleSpot   = "spot"
	RoleFuture = "future"
	RoleVenueA = "venueA"
	RoleVenueB = "venueB"
)

// InstrumentSet maps logical roles to resolved instrument tokens for one
// watch entry. A role may be absent when resolution failed; callers report
// that as a warning and stream with the reduced token set.
type InstrumentSet struct {
	Name  string
	Roles map[string]uint32
}

func NewInstrumentSet(name string) InstrumentSet {
	return InstrumentSet{Name: name, Roles: make(map[string]uint32)}
}

func (s InstrumentSet) Token(role string) (uint32, bool) {
	tok, ok := s.Roles[role]
	return tok, ok
}

// Tokens returns the deduplicated resolved tokens, suitable for a feed
// subscription.
func (s InstrumentSet) Tokens() []uint32 {
	seen := make(map[uint32]struct{}, len(s.Roles))
	out := make([]uint32, 0, len(s.Roles))
	for _, tok := range s.Roles {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// VenuePair names one security listed on two venues, e.g. RELIANCE on
// NSE and BSE.
type VenuePair struct {
	Symbol string
	VenueA string
	VenueB string
}

// KeyA and KeyB are the "EXCHANGE:SYMBOL" quote keys for the pair's legs.
func (p VenuePair) KeyA() string { return p.VenueA + ":" + p.Symbol }
func (p VenuePair) KeyB() string { return p.VenueB + ":" + p.Symbol }

// SyntheticToken derives a stable token for a polled venue:symbol quote.
// The high bit is forced on so synthetic tokens can never collide with
// exchange-assigned instrument tokens.
func SyntheticToken(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() | 0x80000000
}
