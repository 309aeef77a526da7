package port

import (
	"context"

	"kitefeed/internal/domain/model"
)

// Repository mirrors latest state to external storage. It never holds tick
// history: prices are upserts keyed by token, the catalog is a replaceable
// snapshot.
type Repository interface {
	UpsertLatestPrice(ctx context.Context, token uint32, price float64, ts int64) error

	// Catalog snapshot, used as a fallback when the live fetch fails.
	SaveInstruments(ctx context.Context, list []model.Instrument) error
	LoadInstruments(ctx context.Context) ([]model.Instrument, error)

	Close() error
}
