package kite

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"kitefeed/internal/domain/model"
)

const expiryLayout = "2006-01-02"

// Instruments downloads the full instrument dump. The endpoint serves
// CSV with a header row, one instrument per line.
func (c *Client) Instruments(ctx context.Context, cred model.Credential) ([]model.Instrument, error) {
	body, status, err := c.raw(ctx, http.MethodGet, "/instruments", cred, nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("instrument dump: unexpected status %d", status)
	}
	return parseInstrumentCSV(body)
}

func parseInstrumentCSV(body []byte) ([]model.Instrument, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("instrument csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"instrument_token", "tradingsymbol", "exchange"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("instrument csv missing column %q", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var out []model.Instrument
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("instrument csv: %w", err)
		}

		token, err := strconv.ParseUint(field(rec, "instrument_token"), 10, 32)
		if err != nil {
			// Malformed rows are skipped, not fatal; the dump has
			// hundreds of thousands of lines.
			continue
		}

		inst := model.Instrument{
			Token:          uint32(token),
			Symbol:         field(rec, "tradingsymbol"),
			Name:           field(rec, "name"),
			Exchange:       field(rec, "exchange"),
			Segment:        field(rec, "segment"),
			InstrumentType: field(rec, "instrument_type"),
		}
		if et, err := strconv.ParseUint(field(rec, "exchange_token"), 10, 32); err == nil {
			inst.ExchangeToken = uint32(et)
		}
		if px := field(rec, "last_price"); px != "" {
			inst.LastPrice, _ = strconv.ParseFloat(px, 64)
		}
		if exp := field(rec, "expiry"); exp != "" {
			if t, err := time.Parse(expiryLayout, exp); err == nil {
				inst.Expiry = t
			}
		}
		out = append(out, inst)
	}
	return out, nil
}
