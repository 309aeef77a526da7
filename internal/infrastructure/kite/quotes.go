package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"kitefeed/internal/domain/model"
)

// LTP fetches last traded prices for "EXCHANGE:SYMBOL" keys. The result
// map is keyed the same way; keys the upstream does not recognize are
// simply absent.
func (c *Client) LTP(ctx context.Context, cred model.Credential, keys []string) (map[string]float64, error) {
	query := url.Values{}
	for _, k := range keys {
		query.Add("i", k)
	}

	data, err := c.do(ctx, http.MethodGet, "/quote/ltp", cred, query, nil)
	if err != nil {
		return nil, err
	}

	var raw map[string]struct {
		InstrumentToken uint32  `json:"instrument_token"`
		LastPrice       float64 `json:"last_price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ltp: %w", err)
	}

	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		out[k] = v.LastPrice
	}
	return out, nil
}
