package kite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kitefeed/internal/domain/model"
)

func TestLoginURL(t *testing.T) {
	c := NewClient("https://api.kite.trade", "https://kite.zerodha.com/connect/login", 3)

	got := c.LoginURL("my key")
	want := "https://kite.zerodha.com/connect/login?v=3&api_key=my+key"
	if got != want {
		t.Errorf("LoginURL = %q, want %q", got, want)
	}
}

func TestExchangeToken(t *testing.T) {
	const (
		apiKey    = "kk"
		apiSecret = "ss"
		reqToken  = "rr"
	)
	sum := sha256.Sum256([]byte(apiKey + reqToken + apiSecret))
	wantChecksum := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/session/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if v := r.Header.Get("X-Kite-Version"); v != "3" {
			t.Errorf("X-Kite-Version = %q", v)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("checksum"); got != wantChecksum {
			t.Errorf("checksum = %q, want %q", got, wantChecksum)
		}
		if got := r.PostForm.Get("request_token"); got != reqToken {
			t.Errorf("request_token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"access_token":"at-123","user_id":"AB1234"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "https://example.invalid/login", 3)
	token, err := c.ExchangeToken(context.Background(), apiKey, apiSecret, reqToken)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if token != "at-123" {
		t.Errorf("token = %q", token)
	}
}

func TestExchangeTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":"error","message":"Token is invalid or has expired.","error_type":"TokenException"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "https://example.invalid/login", 3)
	_, err := c.ExchangeToken(context.Background(), "k", "s", "bad")

	var authErr *model.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if !strings.Contains(authErr.Reason, "expired") {
		t.Errorf("Reason = %q", authErr.Reason)
	}
}
