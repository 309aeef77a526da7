package composite

import (
	"context"

	"kitefeed/internal/application/port"
	"kitefeed/internal/domain/model"
)

// Repo fans writes out to every backing repository and reads from the
// first one that answers.
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, token uint32, price float64, ts int64) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertLatestPrice(ctx, token, price, ts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) SaveInstruments(ctx context.Context, list []model.Instrument) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveInstruments(ctx, list); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoadInstruments returns the first non-empty snapshot. Backends that
// error are skipped; a fallback read should survive one broken store.
func (r *Repo) LoadInstruments(ctx context.Context) ([]model.Instrument, error) {
	var firstErr error
	for _, repo := range r.repos {
		list, err := repo.LoadInstruments(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(list) > 0 {
			return list, nil
		}
	}
	return nil, firstErr
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Repository = (*Repo)(nil)
