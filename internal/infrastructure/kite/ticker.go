package kite

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"kitefeed/internal/application/port"
	"kitefeed/internal/domain/model"
)

const (
	readWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 5 * time.Second

	segmentCDS = 3
	segmentBCD = 6
)

// TickerFeed owns one live websocket connection to the upstream tick
// stream and implements port.TickFeed.
type TickerFeed struct {
	wsURL     string
	reconnect bool

	state atomic.Int32
}

func NewTickerFeed(wsURL string, reconnect bool) *TickerFeed {
	return &TickerFeed{wsURL: wsURL, reconnect: reconnect}
}

func (f *TickerFeed) State() port.FeedState {
	return port.FeedState(f.state.Load())
}

// Subscribe opens the upstream connection and streams decoded ticks. The
// returned channel closes when the context is cancelled or the upstream
// fails terminally.
func (f *TickerFeed) Subscribe(ctx context.Context, cred model.Credential, tokens []uint32, mode string) (<-chan port.Tick, error) {
	if !cred.Authorized() {
		return nil, &model.AuthError{Reason: "subscribe requires api key and access token"}
	}
	if !f.toConnecting() {
		return nil, port.ErrAlreadyStreaming
	}

	out := make(chan port.Tick, 256)
	go f.run(ctx, cred, tokens, mode, out)
	return out, nil
}

func (f *TickerFeed) toConnecting() bool {
	for _, from := range []port.FeedState{port.StateIdle, port.StateDisconnected, port.StateError} {
		if f.state.CompareAndSwap(int32(from), int32(port.StateConnecting)) {
			return true
		}
	}
	return false
}

func (f *TickerFeed) run(ctx context.Context, cred model.Credential, tokens []uint32, mode string, out chan<- port.Tick) {
	defer close(out)

	backoff := 500 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for {
		err := f.connectOnce(ctx, cred, tokens, mode, out)
		if ctx.Err() != nil {
			f.state.Store(int32(port.StateDisconnected))
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("upstream ticker disconnected")
		}
		if !f.reconnect {
			f.state.Store(int32(port.StateError))
			return
		}

		f.state.Store(int32(port.StateConnecting))
		select {
		case <-ctx.Done():
			f.state.Store(int32(port.StateDisconnected))
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *TickerFeed) connectOnce(ctx context.Context, cred model.Credential, tokens []uint32, mode string, out chan<- port.Tick) error {
	u := fmt.Sprintf("%s?api_key=%s&access_token=%s",
		f.wsURL, url.QueryEscape(cred.APIKey), url.QueryEscape(cred.AccessToken))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial ticker: %w", err)
	}
	defer conn.Close()

	if err := f.subscribeTokens(conn, tokens, mode); err != nil {
		return err
	}
	f.state.Store(int32(port.StateConnected))
	log.Info().Int("tokens", len(tokens)).Str("mode", mode).Msg("upstream ticker connected")

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			f.handleMessage(ctx, msgType, data, out)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
		}
	}
}

// subscribeTokens sends the subscribe and mode-set messages the upstream
// expects right after connecting. Resent on every reconnect.
func (f *TickerFeed) subscribeTokens(conn *websocket.Conn, tokens []uint32, mode string) error {
	type message struct {
		Action string `json:"a"`
		Value  any    `json:"v"`
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(message{Action: "subscribe", Value: tokens}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(message{Action: "mode", Value: []any{mode, tokens}}); err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	return nil
}

func (f *TickerFeed) handleMessage(ctx context.Context, msgType int, data []byte, out chan<- port.Tick) {
	switch msgType {
	case websocket.BinaryMessage:
		for _, t := range parseFrame(data, time.Now().UnixMilli()) {
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	case websocket.TextMessage:
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if msg.Type == "error" {
			log.Warn().RawJSON("data", msg.Data).Msg("upstream ticker error event")
		}
	}
}

// parseFrame decodes one binary frame: a big-endian 2-byte packet count,
// then per packet a 2-byte length and the packet body. Frames of up to
// two bytes are heartbeats and yield no ticks.
func parseFrame(b []byte, nowMs int64) []port.Tick {
	if len(b) <= 2 {
		return nil
	}

	count := int(binary.BigEndian.Uint16(b[0:2]))
	ticks := make([]port.Tick, 0, count)
	off := 2

	for i := 0; i < count; i++ {
		if off+2 > len(b) {
			break
		}
		plen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if plen < 8 || off+plen > len(b) {
			break
		}
		packet := b[off : off+plen]
		off += plen

		token := binary.BigEndian.Uint32(packet[0:4])
		raw := int32(binary.BigEndian.Uint32(packet[4:8]))

		mode := port.ModeLTP
		if plen > 8 {
			mode = port.ModeFull
		}
		ticks = append(ticks, port.Tick{
			Token:     token,
			LastPrice: float64(raw) / priceDivisor(token),
			Mode:      mode,
			Ts:        nowMs,
		})
	}
	return ticks
}

// priceDivisor maps an instrument token to the price scale its segment
// uses. Currency derivatives quote in 1e-7 rupees, BSE currency in 1e-4,
// everything else in paise.
func priceDivisor(token uint32) float64 {
	switch token & 0xFF {
	case segmentCDS:
		return 1e7
	case segmentBCD:
		return 1e4
	default:
		return 100
	}
}
