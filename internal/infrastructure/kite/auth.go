package kite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"kitefeed/internal/domain/model"
)

// LoginURL builds the upstream authorization page URL for an api key.
func (c *Client) LoginURL(apiKey string) string {
	return fmt.Sprintf("%s?v=%d&api_key=%s", c.loginURL, c.apiVersion, url.QueryEscape(apiKey))
}

// ExchangeToken swaps a request token for an access token. The checksum
// is SHA-256 over api key + request token + api secret, hex encoded.
func (c *Client) ExchangeToken(ctx context.Context, apiKey, apiSecret, requestToken string) (string, error) {
	sum := sha256.Sum256([]byte(apiKey + requestToken + apiSecret))

	form := url.Values{}
	form.Set("api_key", apiKey)
	form.Set("request_token", requestToken)
	form.Set("checksum", hex.EncodeToString(sum[:]))

	data, err := c.do(ctx, http.MethodPost, "/session/token", model.Credential{}, nil, form)
	if err != nil {
		return "", err
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode session token: %w", err)
	}
	if out.AccessToken == "" {
		return "", &model.AuthError{Reason: "empty access token in response"}
	}
	return out.AccessToken, nil
}
