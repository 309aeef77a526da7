package model

import "fmt"

// Credential is the per-client upstream API triple. APIKey and APISecret are
// supplied once at registration; AccessToken is set by the token exchange
// and is required before any streaming or quote operation.
type Credential struct {
	APIKey      string `json:"api_key"`
	APISecret   string `json:"-"`
	AccessToken string `json:"-"`
}

// Authorized reports whether the credential can open upstream connections.
func (c Credential) Authorized() bool {
	return c.APIKey != "" && c.AccessToken != ""
}

// AuthError covers a missing or invalid credential and failed token
// exchanges. It aborts stream start; it is never fatal to the process.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }
