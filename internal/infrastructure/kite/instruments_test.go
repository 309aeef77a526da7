package kite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kitefeed/internal/domain/model"
)

const sampleDump = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
256265,1001,NIFTY 50,NIFTY 50,0,,0,0.05,1,EQ,INDICES,NSE
12601346,49224,NIFTY25SEPFUT,NIFTY,22615.5,2025-09-25,0,0.05,75,FUT,NFO-FUT,NFO
bogus,1,BAD,BAD,0,,0,0,0,EQ,NSE,NSE
738561,2885,RELIANCE,RELIANCE INDUSTRIES,2901.4,,0,0.05,1,EQ,NSE,NSE
`

func TestParseInstrumentCSV(t *testing.T) {
	list, err := parseInstrumentCSV([]byte(sampleDump))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3 (malformed row skipped)", len(list))
	}

	fut := list[1]
	if fut.Token != 12601346 || fut.Name != "NIFTY" || fut.Segment != model.SegmentNSEFutures {
		t.Errorf("future = %+v", fut)
	}
	wantExpiry := time.Date(2025, 9, 25, 0, 0, 0, 0, time.UTC)
	if !fut.Expiry.Equal(wantExpiry) {
		t.Errorf("expiry = %v, want %v", fut.Expiry, wantExpiry)
	}
	if fut.LastPrice != 22615.5 {
		t.Errorf("last price = %v", fut.LastPrice)
	}

	if list[0].Segment != model.SegmentIndices || !list[0].Expiry.IsZero() {
		t.Errorf("index row = %+v", list[0])
	}
}

func TestParseInstrumentCSVMissingColumn(t *testing.T) {
	if _, err := parseInstrumentCSV([]byte("a,b,c\n1,2,3\n")); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestInstrumentsEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instruments" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "token k:at" {
			t.Errorf("Authorization = %q", auth)
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sampleDump))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "https://example.invalid/login", 3)
	list, err := c.Instruments(context.Background(), model.Credential{APIKey: "k", AccessToken: "at"})
	if err != nil {
		t.Fatalf("instruments: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("len = %d", len(list))
	}
}
