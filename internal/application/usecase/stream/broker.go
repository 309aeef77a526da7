package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"kitefeed/internal/application/port"
	"kitefeed/internal/domain/model"
)

// FeedBroker shares one upstream tick connection per distinct credential
// and fans the stream out to every session holding that credential. Two
// browser tabs on the same account cost one upstream connection, not two.
//
// All sessions run the same watch configuration, so the first
// subscriber's token set and mode stand for everyone on the credential.
type FeedBroker struct {
	newFeed func() port.TickFeed

	mu      sync.Mutex
	entries map[string]*brokerEntry
}

type brokerEntry struct {
	feed   port.TickFeed
	cancel context.CancelFunc
	subs   map[chan port.Tick]struct{}
}

func NewFeedBroker(newFeed func() port.TickFeed) *FeedBroker {
	return &FeedBroker{
		newFeed: newFeed,
		entries: make(map[string]*brokerEntry),
	}
}

func credKey(cred model.Credential) string {
	return cred.APIKey + ":" + cred.AccessToken
}

// Subscribe attaches the caller to the credential's shared stream,
// opening the upstream connection only for the first subscriber. The
// returned channel closes when the caller's context is cancelled or the
// upstream exits terminally.
func (b *FeedBroker) Subscribe(ctx context.Context, cred model.Credential, tokens []uint32, mode string) (<-chan port.Tick, error) {
	key := credKey(cred)

	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		feed := b.newFeed()
		// The upstream connection outlives any single subscriber; it dies
		// when the last one detaches.
		fctx, cancel := context.WithCancel(context.Background())
		src, err := feed.Subscribe(fctx, cred, tokens, mode)
		if err != nil {
			cancel()
			b.mu.Unlock()
			return nil, err
		}
		e = &brokerEntry{feed: feed, cancel: cancel, subs: make(map[chan port.Tick]struct{})}
		b.entries[key] = e
		go b.fanOut(key, e, src)
		log.Info().Int("tokens", len(tokens)).Msg("shared upstream feed opened")
	}

	out := make(chan port.Tick, 256)
	e.subs[out] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.detach(key, out, e)
	}()
	return out, nil
}

// State reports the state of any live shared connection, or idle when
// none exists.
func (b *FeedBroker) State() port.FeedState {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		return e.feed.State()
	}
	return port.StateIdle
}

// fanOut copies upstream ticks to every subscriber. Sends happen under
// the broker lock with non-blocking writes; a subscriber that can't keep
// up loses ticks, not the connection.
func (b *FeedBroker) fanOut(key string, e *brokerEntry, src <-chan port.Tick) {
	for t := range src {
		b.mu.Lock()
		for ch := range e.subs {
			select {
			case ch <- t:
			default:
			}
		}
		b.mu.Unlock()
	}

	// Upstream exited terminally: release every remaining subscriber.
	b.mu.Lock()
	if cur, ok := b.entries[key]; ok && cur == e {
		delete(b.entries, key)
	}
	subs := e.subs
	e.subs = make(map[chan port.Tick]struct{})
	b.mu.Unlock()

	for ch := range subs {
		close(ch)
	}
	e.cancel()
}

// detach removes one subscriber; the last one out closes the upstream
// connection. Whoever removes a channel from the set closes it, so a
// close can never race a fan-out send.
func (b *FeedBroker) detach(key string, out chan port.Tick, e *brokerEntry) {
	b.mu.Lock()
	if _, live := e.subs[out]; !live {
		// fanOut already released this subscriber.
		b.mu.Unlock()
		return
	}
	delete(e.subs, out)
	last := len(e.subs) == 0
	if last {
		if cur, ok := b.entries[key]; ok && cur == e {
			delete(b.entries, key)
		}
	}
	b.mu.Unlock()

	close(out)
	if last {
		e.cancel()
		log.Info().Msg("shared upstream feed released")
	}
}
