package port

import (
	"context"

	"kitefeed/internal/domain/model"
)

// TokenExchanger performs the one-time request-token exchange and builds
// the upstream authorization redirect.
type TokenExchanger interface {
	LoginURL(apiKey string) string
	ExchangeToken(ctx context.Context, apiKey, apiSecret, requestToken string) (string, error)
}

// CatalogSource fetches the upstream instrument catalog snapshot.
type CatalogSource interface {
	Instruments(ctx context.Context, cred model.Credential) ([]model.Instrument, error)
}

// QuoteSource issues one batch last-traded-price request. Keys are
// "EXCHANGE:SYMBOL"; the result maps each key that resolved to its price.
type QuoteSource interface {
	LTP(ctx context.Context, cred model.Credential, keys []string) (map[string]float64, error)
}
