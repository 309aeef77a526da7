package port

import (
	"context"
	"errors"

	"kitefeed/internal/domain/model"
)

// Subscription modes, as the upstream ticker understands them.
const (
	ModeFull = "full"
	ModeLTP  = "ltp"
)

// ErrAlreadyStreaming is returned when Subscribe is called on a feed that
// already owns a live upstream connection. At most one connection exists
// per session.
var ErrAlreadyStreaming = errors.New("feed already streaming")

// Tick is one real-time price update from the upstream feed.
type Tick struct {
	Token     uint32  `json:"instrument_token"`
	LastPrice float64 `json:"last_price"`
	Mode      string  `json:"mode"`
	Ts        int64   `json:"ts_ms"`
}

// FeedState mirrors the upstream connection lifecycle.
type FeedState int32

const (
	StateIdle FeedState = iota
	StateConnecting
	StateConnected
	StateError
	StateDisconnected
)

func (s FeedState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// TickFeed owns one live upstream tick connection. Subscribe transitions
// idle -> connecting and delivers ticks until the context is cancelled or
// the upstream fails; the returned channel is closed on terminal exit.
// Calling Subscribe while a connection is live fails with
// ErrAlreadyStreaming.
type TickFeed interface {
	Subscribe(ctx context.Context, cred model.Credential, tokens []uint32, mode string) (<-chan Tick, error)
	State() FeedState
}
