package kite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"kitefeed/internal/domain/model"
)

func TestLTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote/ltp" {
			t.Errorf("path = %q", r.URL.Path)
		}
		keys := r.URL.Query()["i"]
		if len(keys) != 2 || keys[0] != "NSE:RELIANCE" || keys[1] != "BSE:RELIANCE" {
			t.Errorf("keys = %v", keys)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{
			"NSE:RELIANCE":{"instrument_token":738561,"last_price":2901.4},
			"BSE:RELIANCE":{"instrument_token":128083204,"last_price":2901.85}
		}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "https://example.invalid/login", 3)
	cred := model.Credential{APIKey: "k", AccessToken: "at"}

	prices, err := c.LTP(context.Background(), cred, []string{"NSE:RELIANCE", "BSE:RELIANCE"})
	if err != nil {
		t.Fatalf("ltp: %v", err)
	}
	if prices["NSE:RELIANCE"] != 2901.4 || prices["BSE:RELIANCE"] != 2901.85 {
		t.Errorf("prices = %v", prices)
	}
}

func TestLTPAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":"error","message":"Incorrect api_key or access_token.","error_type":"TokenException"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "https://example.invalid/login", 3)
	_, err := c.LTP(context.Background(), model.Credential{APIKey: "k", AccessToken: "bad"}, []string{"NSE:INFY"})
	if err == nil {
		t.Fatal("expected auth error")
	}
}
