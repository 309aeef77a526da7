package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kitefeed/internal/domain/model"
)

const headerVersion = "X-Kite-Version"

// Client talks to the upstream REST API. One client is shared across
// sessions; credentials travel per request, never on the client.
type Client struct {
	apiURL     string
	loginURL   string
	apiVersion int
	http       *http.Client
}

func NewClient(apiURL, loginURL string, apiVersion int) *Client {
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		loginURL:   loginURL,
		apiVersion: apiVersion,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// do issues a request and unwraps the standard JSON envelope, returning
// the raw data payload. Token and permission rejections come back as
// AuthError so callers can surface them as credential problems.
func (c *Client) do(ctx context.Context, method, path string, cred model.Credential, query, form url.Values) (json.RawMessage, error) {
	body, status, err := c.raw(ctx, method, path, cred, query, form)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if env.Status != "success" {
		if env.ErrorType == "TokenException" || status == http.StatusForbidden || status == http.StatusUnauthorized {
			return nil, &model.AuthError{Reason: env.Message}
		}
		return nil, fmt.Errorf("%s: %s (%s)", path, env.Message, env.ErrorType)
	}
	return env.Data, nil
}

// raw issues a request and returns the body as-is. The instrument dump
// endpoint serves CSV, not the JSON envelope, so it goes through here.
func (c *Client) raw(ctx context.Context, method, path string, cred model.Credential, query, form url.Values) ([]byte, int, error) {
	u := c.apiURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if len(form) > 0 {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set(headerVersion, fmt.Sprintf("%d", c.apiVersion))
	if len(form) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cred.APIKey != "" && cred.AccessToken != "" {
		req.Header.Set("Authorization", "token "+cred.APIKey+":"+cred.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read %s: %w", path, err)
	}
	return body, resp.StatusCode, nil
}
