package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"kitefeed/internal/application/port"
	"kitefeed/internal/domain/model"
	dsvc "kitefeed/internal/domain/service"
)

// ErrSessionClosed is returned by Start after Stop; a stopped session is
// terminal, callers create a fresh one.
var ErrSessionClosed = errors.New("session closed")

// BasisWatch names one underlying to track as spot + nearest future.
type BasisWatch struct {
	Name         string // underlying for the futures leg, e.g. "NIFTY"
	SpotExchange string
	SpotSymbol   string // e.g. "NIFTY 50"
}

// Config is the per-session streaming configuration.
type Config struct {
	Mode         string // subscription mode for the tick stream
	PollInterval time.Duration
	Basis        []BasisWatch
	Pairs        []model.VenuePair
}

// Session binds one client to one feed, one poller, and one price book.
// It owns exactly one Credential and releases the upstream connection and
// the poll timer exactly once on every exit path.
type Session struct {
	id      string
	cred    model.Credential
	cfg     Config
	feed    port.TickFeed
	quotes  port.QuoteSource
	catalog port.CatalogSource
	repo    port.Repository
	sink    port.EventSink

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	poller  *Poller
	book    *PriceBook
	set     model.InstrumentSet
}

func NewSession(id string, cred model.Credential, cfg Config,
	feed port.TickFeed, quotes port.QuoteSource, catalog port.CatalogSource,
	repo port.Repository, sink port.EventSink) *Session {

	if cfg.Mode == "" {
		cfg.Mode = port.ModeFull
	}
	if repo == nil {
		repo = NewNoopRepo()
	}
	return &Session{
		id:      id,
		cred:    cred,
		cfg:     cfg,
		feed:    feed,
		quotes:  quotes,
		catalog: catalog,
		repo:    repo,
		sink:    sink,
	}
}

func (s *Session) ID() string { return s.id }

// Credential reports which credential this session streams with. It is
// fixed at creation; callers wanting a different one build a new session.
func (s *Session) Credential() model.Credential { return s.cred }

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Set returns the resolved instrument set of the current stream.
func (s *Session) Set() model.InstrumentSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Book exposes the session's price book, mainly for inspection in tests
// and status endpoints.
func (s *Session) Book() *PriceBook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book
}

// Start validates the credential, resolves the instrument set, subscribes
// the upstream feed and schedules the quote poller. Starting an already
// running session is rejected without touching the live connection.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.running {
		s.mu.Unlock()
		_ = s.sink.Status(port.LevelWarn, "stream already running")
		return port.ErrAlreadyStreaming
	}
	if !s.cred.Authorized() {
		s.mu.Unlock()
		_ = s.sink.Status(port.LevelError, "no access token; register and exchange a request token first")
		return &model.AuthError{Reason: "missing access token"}
	}
	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	if err := s.setup(sctx); err != nil {
		// Roll back so a client retry can start cleanly. Resources
		// acquired during the failed setup die with sctx.
		s.release(false)
		return err
	}
	return nil
}

// Stop tears the session down: upstream connection and poll timer are
// released exactly once. Terminal; safe to call from any state, including
// while a Start is in flight.
func (s *Session) Stop() {
	s.release(true)
}

func (s *Session) release(terminal bool) {
	s.mu.Lock()
	if terminal {
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.closed = true
	}
	s.running = false
	cancel := s.cancel
	poller := s.poller
	s.cancel = nil
	s.poller = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if poller != nil {
		poller.Stop()
	}
}

func (s *Session) setup(ctx context.Context) error {
	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return err
	}

	set, specs := s.resolve(catalog)
	book := NewPriceBook(specs)

	s.mu.Lock()
	s.set = set
	s.book = book
	s.mu.Unlock()

	var ticks <-chan port.Tick
	if tokens := set.Tokens(); len(tokens) > 0 {
		ticks, err = s.feed.Subscribe(ctx, s.cred, tokens, s.cfg.Mode)
		if err != nil {
			_ = s.sink.Status(port.LevelError, "upstream connect failed: "+err.Error())
			return fmt.Errorf("subscribe feed: %w", err)
		}
	}

	if len(s.cfg.Pairs) > 0 {
		poller := NewPoller(s.quotes, s.cred, s.cfg.Pairs, s.cfg.PollInterval, book, s.pushMetrics, s.sink)
		s.mu.Lock()
		if s.closed {
			// Disconnect raced the start; don't schedule anything.
			s.mu.Unlock()
			return ErrSessionClosed
		}
		s.poller = poller
		s.mu.Unlock()
		poller.Start(ctx)
	}

	if ticks != nil {
		go s.pump(ctx, ticks)
	}

	log.Info().Str("session", s.id).Int("tokens", len(set.Tokens())).
		Int("pairs", len(s.cfg.Pairs)).Msg("stream started")
	_ = s.sink.Status(port.LevelInfo, "stream started")
	return nil
}

func (s *Session) loadCatalog(ctx context.Context) ([]model.Instrument, error) {
	catalog, err := s.catalog.Instruments(ctx, s.cred)
	if err == nil {
		if serr := s.repo.SaveInstruments(ctx, catalog); serr != nil {
			log.Warn().Err(serr).Str("session", s.id).Msg("catalog snapshot save failed")
		}
		return catalog, nil
	}

	log.Warn().Err(err).Str("session", s.id).Msg("catalog fetch failed, trying stored snapshot")
	stored, lerr := s.repo.LoadInstruments(ctx)
	if lerr == nil && len(stored) > 0 {
		_ = s.sink.Status(port.LevelWarn, "using stored instrument catalog; live fetch failed")
		return stored, nil
	}

	_ = s.sink.Status(port.LevelError, "instrument catalog unavailable")
	return nil, fmt.Errorf("fetch instrument catalog: %w", err)
}

// resolve builds the instrument set and metric specs for this session's
// watch configuration. Missing roles degrade to warnings.
func (s *Session) resolve(catalog []model.Instrument) (model.InstrumentSet, []MetricSpec) {
	set := model.NewInstrumentSet(s.id)
	var specs []MetricSpec

	for _, w := range s.cfg.Basis {
		spotTok, spotOK := dsvc.Lookup(catalog, w.SpotExchange, w.SpotSymbol)
		if spotOK {
			set.Roles[model.RoleSpot+":"+w.Name] = spotTok
		} else {
			_ = s.sink.Status(port.LevelWarn, "spot not resolved for "+w.Name)
		}

		futTok, futOK := dsvc.NearestFuture(catalog, w.Name)
		if futOK {
			set.Roles[model.RoleFuture+":"+w.Name] = futTok
		} else {
			_ = s.sink.Status(port.LevelWarn, "no futures contract resolved for "+w.Name)
		}

		if spotOK && futOK {
			specs = append(specs, MetricSpec{
				Kind:    model.MetricBasis,
				Subject: w.Name,
				LegA:    spotTok,
				LegB:    futTok,
			})
		}
	}

	for _, p := range s.cfg.Pairs {
		specs = append(specs, MetricSpec{
			Kind:    model.MetricCrossVenueSpread,
			Subject: p.Symbol,
			LegA:    model.SyntheticToken(p.KeyA()),
			LegB:    model.SyntheticToken(p.KeyB()),
		})
	}

	return set, specs
}

func (s *Session) pushMetrics() {
	s.mu.Lock()
	book := s.book
	s.mu.Unlock()
	if book != nil {
		_ = s.sink.Metrics(book.Metrics())
	}
}

func (s *Session) pump(ctx context.Context, ticks <-chan port.Tick) {
	for t := range ticks {
		watched := s.book.Apply(model.PriceQuote{
			Token:  t.Token,
			Price:  t.LastPrice,
			Source: "tick",
			Ts:     t.Ts,
		})
		if t.LastPrice > 0 {
			if err := s.repo.UpsertLatestPrice(ctx, t.Token, t.LastPrice, t.Ts); err != nil {
				log.Warn().Err(err).Uint32("token", t.Token).Msg("latest price mirror failed")
			}
		}
		_ = s.sink.Ticks([]port.Tick{t})
		if watched {
			s.pushMetrics()
		}
	}

	// Channel closed: terminal feed exit. Only report it when the session
	// didn't ask for it.
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed && ctx.Err() == nil {
		log.Warn().Str("session", s.id).Msg("upstream feed closed")
		_ = s.sink.Status(port.LevelWarn, "upstream feed closed")
	}
}
