package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"kitefeed/internal/domain/model"
)

type fakeExchanger struct {
	token string
	err   error
	calls int
}

func (f *fakeExchanger) LoginURL(apiKey string) string {
	return "https://kite.zerodha.com/connect/login?v=3&api_key=" + apiKey
}

func (f *fakeExchanger) ExchangeToken(ctx context.Context, apiKey, apiSecret, requestToken string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func TestRegisterReturnsLoginURL(t *testing.T) {
	m := NewSessionManager(&fakeExchanger{token: "at"})

	url := m.Register("sess-1", "my_api_key", "secret")
	if !strings.Contains(url, "api_key=my_api_key") {
		t.Errorf("login URL missing api key: %q", url)
	}
	if !strings.Contains(url, "v=3") {
		t.Errorf("login URL missing version: %q", url)
	}
}

func TestExchangeTokenXorError(t *testing.T) {
	ex := &fakeExchanger{token: "access-123"}
	m := NewSessionManager(ex)
	m.Register("sess-1", "k", "s")

	cred, err := m.Exchange(context.Background(), "sess-1", "req-tok")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if cred.AccessToken != "access-123" {
		t.Errorf("AccessToken = %q", cred.AccessToken)
	}
	if !cred.Authorized() {
		t.Error("credential must be authorized after exchange")
	}

	// Stored credential updated in place.
	stored, ok := m.Credential("sess-1")
	if !ok || stored.AccessToken != "access-123" {
		t.Errorf("stored credential not updated: %+v ok=%v", stored, ok)
	}
}

func TestExchangeUpstreamRejection(t *testing.T) {
	ex := &fakeExchanger{err: &model.AuthError{Reason: "invalid request token"}}
	m := NewSessionManager(ex)
	m.Register("sess-1", "k", "s")

	cred, err := m.Exchange(context.Background(), "sess-1", "bad")
	var authErr *model.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if cred.AccessToken != "" {
		t.Error("must not return a token alongside an error")
	}
}

func TestExchangeWithoutRegister(t *testing.T) {
	ex := &fakeExchanger{token: "at"}
	m := NewSessionManager(ex)

	_, err := m.Exchange(context.Background(), "unknown", "req")
	var authErr *model.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if ex.calls != 0 {
		t.Error("upstream must not be called without a registered pair")
	}
}

func TestDropDiscardsCredential(t *testing.T) {
	m := NewSessionManager(&fakeExchanger{token: "at"})
	m.Register("sess-1", "k", "s")
	m.Drop("sess-1")
	if _, ok := m.Credential("sess-1"); ok {
		t.Error("credential must be discarded on drop")
	}
}

func TestCredentialsAreSessionScoped(t *testing.T) {
	m := NewSessionManager(&fakeExchanger{token: "at"})
	m.Register("sess-a", "key-a", "sec-a")
	m.Register("sess-b", "key-b", "sec-b")

	a, _ := m.Credential("sess-a")
	b, _ := m.Credential("sess-b")
	if a.APIKey == b.APIKey {
		t.Error("sessions must not share credentials")
	}
}
