package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"kitefeed/internal/application/port"
	"kitefeed/internal/domain/model"
)

// SessionManager keeps the per-client credential registry and drives the
// register/exchange flow. Credentials are scoped to a client-issued
// session id, never to process-wide state, so one client's token can
// never leak into another client's stream.
type SessionManager struct {
	exchanger port.TokenExchanger

	mu    sync.Mutex
	creds map[string]model.Credential
}

func NewSessionManager(exchanger port.TokenExchanger) *SessionManager {
	return &SessionManager{
		exchanger: exchanger,
		creds:     make(map[string]model.Credential),
	}
}

// Register stores the api key/secret pair for a session and returns the
// upstream authorization URL the client must redirect to.
func (m *SessionManager) Register(sessionID, apiKey, apiSecret string) string {
	m.mu.Lock()
	m.creds[sessionID] = model.Credential{APIKey: apiKey, APISecret: apiSecret}
	m.mu.Unlock()

	log.Info().Str("session", sessionID).Msg("credential registered")
	return m.exchanger.LoginURL(apiKey)
}

// Exchange swaps a request token for an access token using the stored
// pair and updates the credential in place. Returns exactly one of a
// credential with a non-empty access token or an error; never retries.
func (m *SessionManager) Exchange(ctx context.Context, sessionID, requestToken string) (model.Credential, error) {
	m.mu.Lock()
	cred, ok := m.creds[sessionID]
	m.mu.Unlock()
	if !ok || cred.APIKey == "" || cred.APISecret == "" {
		return model.Credential{}, &model.AuthError{Reason: "no registered api key for session"}
	}

	token, err := m.exchanger.ExchangeToken(ctx, cred.APIKey, cred.APISecret, requestToken)
	if err != nil {
		return model.Credential{}, err
	}

	cred.AccessToken = token
	m.mu.Lock()
	m.creds[sessionID] = cred
	m.mu.Unlock()

	log.Info().Str("session", sessionID).Msg("access token obtained")
	return cred, nil
}

// Credential returns the stored credential for a session, if any. This is
// what lets a client resume across websocket reconnects without
// re-registering.
func (m *SessionManager) Credential(sessionID string) (model.Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[sessionID]
	return cred, ok
}

// Drop discards a session's credential when the owning session ends.
func (m *SessionManager) Drop(sessionID string) {
	m.mu.Lock()
	delete(m.creds, sessionID)
	m.mu.Unlock()
}
