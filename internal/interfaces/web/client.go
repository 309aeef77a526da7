package web

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"kitefeed/internal/application/port"
	"kitefeed/internal/application/usecase/stream"
	"kitefeed/internal/domain/model"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// envelope is the wire format pushed to browser clients.
type envelope struct {
	Type    string `json:"type"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// command is what browser clients send. Credentials may be supplied
// inline with start to bypass the register/exchange flow.
type command struct {
	Action      string `json:"action"`
	APIKey      string `json:"api_key"`
	AccessToken string `json:"access_token"`
}

// Client is one websocket consumer. It implements port.EventSink for the
// session it owns; a full send buffer drops the event rather than stall
// the stream.
type Client struct {
	server    *Server
	conn      *websocket.Conn
	sessionID string
	send      chan envelope

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	session *stream.Session
}

func newClient(s *Server, conn *websocket.Conn, sessionID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		server:    s,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan envelope, sendBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *Client) Status(level, message string) error {
	return c.push(envelope{Type: "status", Level: level, Message: message})
}

func (c *Client) Ticks(batch []port.Tick) error {
	return c.push(envelope{Type: "ticks", Data: batch})
}

func (c *Client) Metrics(set []model.DerivedMetric) error {
	return c.push(envelope{Type: "metrics", Data: set})
}

func (c *Client) push(e envelope) error {
	select {
	case c.send <- e:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}

// readPump consumes client commands until the socket dies, then tears
// the owned session down exactly once.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.stopSession()
		c.conn.Close()
		log.Info().Str("session", c.sessionID).Msg("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("session", c.sessionID).Msg("websocket read failed")
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(message, &cmd); err != nil {
			_ = c.Status(port.LevelWarn, "unrecognized command")
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case e := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleCommand(cmd command) {
	switch cmd.Action {
	case "start":
		c.startStream(cmd)
	case "stop":
		c.stopSession()
		_ = c.Status(port.LevelInfo, "stream stopped")
	default:
		_ = c.Status(port.LevelWarn, "unknown action "+cmd.Action)
	}
}

func (c *Client) startStream(cmd command) {
	var cred model.Credential
	if cmd.APIKey != "" && cmd.AccessToken != "" {
		cred = model.Credential{APIKey: cmd.APIKey, AccessToken: cmd.AccessToken}
	} else {
		stored, ok := c.server.manager.Credential(c.sessionID)
		if !ok {
			_ = c.Status(port.LevelError, "no credential for session; register and exchange first")
			return
		}
		cred = stored
	}

	c.mu.Lock()
	sess := c.session
	// A session freezes its credential at creation. When a start ran
	// before the token exchange, the cached session carries the stale
	// unauthorized credential; rebuild with the current one as long as
	// nothing is streaming on it.
	if sess != nil && !sess.Running() && sess.Credential() != cred {
		c.session = nil
		sess.Stop()
		sess = nil
	}
	if sess == nil {
		sess = c.server.newSession(c.sessionID, cred, c)
		c.session = sess
	}
	c.mu.Unlock()

	err := sess.Start(c.ctx)
	if errors.Is(err, stream.ErrSessionClosed) {
		// A stopped session is terminal; start over with a fresh one.
		sess = c.server.newSession(c.sessionID, cred, c)
		c.mu.Lock()
		c.session = sess
		c.mu.Unlock()
		err = sess.Start(c.ctx)
	}
	if err != nil && !errors.Is(err, port.ErrAlreadyStreaming) {
		log.Warn().Err(err).Str("session", c.sessionID).Msg("stream start failed")
	}
}

func (c *Client) stopSession() {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
}
