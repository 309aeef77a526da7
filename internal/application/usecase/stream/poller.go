package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"kitefeed/internal/application/port"
	"kitefeed/internal/domain/model"
)

const defaultPollInterval = 5 * time.Second

// Poller issues periodic batch LTP requests for instruments that are not
// on the tick stream (cross-venue equity pairs) and feeds the results into
// the session's PriceBook under synthetic tokens. A failed cycle is
// reported and the schedule continues; only Stop cancels it.
type Poller struct {
	source    port.QuoteSource
	cred      model.Credential
	book      *PriceBook
	sink      port.EventSink
	keys      []string
	tokens    map[string]uint32 // quote key -> synthetic token
	interval  time.Duration
	onApplied func()

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

func NewPoller(source port.QuoteSource, cred model.Credential, pairs []model.VenuePair,
	interval time.Duration, book *PriceBook, onApplied func(), sink port.EventSink) *Poller {

	if interval <= 0 {
		interval = defaultPollInterval
	}

	keys := make([]string, 0, 2*len(pairs))
	tokens := make(map[string]uint32, 2*len(pairs))
	for _, p := range pairs {
		for _, key := range []string{p.KeyA(), p.KeyB()} {
			if _, ok := tokens[key]; ok {
				continue
			}
			tokens[key] = model.SyntheticToken(key)
			keys = append(keys, key)
		}
	}

	return &Poller{
		source:    source,
		cred:      cred,
		book:      book,
		sink:      sink,
		keys:      keys,
		tokens:    tokens,
		interval:  interval,
		onApplied: onApplied,
		done:      make(chan struct{}),
	}
}

// Token returns the synthetic token the poller writes a quote key under.
func (p *Poller) Token(key string) (uint32, bool) {
	tok, ok := p.tokens[key]
	return tok, ok
}

func (p *Poller) Start(ctx context.Context) {
	pctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.run(pctx)
}

// Stop cancels the schedule. Idempotent. The owning session must call it
// on teardown, or the timer keeps issuing upstream requests against a
// credential that may no longer be valid.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
}

// Done closes once the polling loop has exited.
func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First batch immediately, then on the interval.
	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	if len(p.keys) == 0 {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, p.interval)
	quotes, err := p.source.LTP(cctx, p.cred, p.keys)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Int("keys", len(p.keys)).Msg("quote poll failed")
		_ = p.sink.Status(port.LevelWarn, "quote poll failed: "+err.Error())
		return
	}

	now := time.Now().UnixMilli()
	changed := false
	for key, price := range quotes {
		tok, ok := p.tokens[key]
		if !ok {
			continue
		}
		if p.book.Apply(model.PriceQuote{Token: tok, Price: price, Source: "poll", Ts: now}) {
			changed = true
		}
	}
	if changed && p.onApplied != nil {
		p.onApplied()
	}
}
