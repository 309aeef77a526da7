package stream

import (
	"context"

	"kitefeed/internal/application/port"
	"kitefeed/internal/domain/model"
)

type noopRepo struct{}

// NewNoopRepo returns the default do-nothing Repository used when no
// storage driver is configured.
func NewNoopRepo() port.Repository { return &noopRepo{} }

func (n *noopRepo) UpsertLatestPrice(ctx context.Context, token uint32, price float64, ts int64) error {
	return nil
}

func (n *noopRepo) SaveInstruments(ctx context.Context, list []model.Instrument) error {
	return nil
}

func (n *noopRepo) LoadInstruments(ctx context.Context) ([]model.Instrument, error) {
	return nil, nil
}

func (n *noopRepo) Close() error { return nil }
