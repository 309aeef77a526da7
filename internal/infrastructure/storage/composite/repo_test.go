package composite

import (
	"context"
	"errors"
	"testing"

	"kitefeed/internal/domain/model"
)

type memRepo struct {
	prices map[uint32]float64
	dump   []model.Instrument
	fail   bool
	closed bool
}

func newMemRepo() *memRepo { return &memRepo{prices: map[uint32]float64{}} }

func (m *memRepo) UpsertLatestPrice(ctx context.Context, token uint32, price float64, ts int64) error {
	if m.fail {
		return errors.New("backend down")
	}
	m.prices[token] = price
	return nil
}

func (m *memRepo) SaveInstruments(ctx context.Context, list []model.Instrument) error {
	if m.fail {
		return errors.New("backend down")
	}
	m.dump = list
	return nil
}

func (m *memRepo) LoadInstruments(ctx context.Context) ([]model.Instrument, error) {
	if m.fail {
		return nil, errors.New("backend down")
	}
	return m.dump, nil
}

func (m *memRepo) Close() error {
	m.closed = true
	return nil
}

func TestCompositeFanOut(t *testing.T) {
	a, b := newMemRepo(), newMemRepo()
	repo := New(a, nil, b)

	if err := repo.UpsertLatestPrice(context.Background(), 1, 100, 1); err != nil {
		t.Fatal(err)
	}
	if a.prices[1] != 100 || b.prices[1] != 100 {
		t.Error("write did not reach all backends")
	}
}

func TestCompositeWriteReportsFirstError(t *testing.T) {
	a, b := newMemRepo(), newMemRepo()
	a.fail = true

	err := New(a, b).UpsertLatestPrice(context.Background(), 1, 100, 1)
	if err == nil {
		t.Fatal("expected error from failing backend")
	}
	if b.prices[1] != 100 {
		t.Error("healthy backend must still receive the write")
	}
}

func TestCompositeLoadSkipsBrokenBackend(t *testing.T) {
	a, b := newMemRepo(), newMemRepo()
	a.fail = true
	b.dump = []model.Instrument{{Token: 7, Symbol: "X"}}

	got, err := New(a, b).LoadInstruments(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Token != 7 {
		t.Errorf("got %+v", got)
	}
}

func TestCompositeClose(t *testing.T) {
	a, b := newMemRepo(), newMemRepo()
	if err := New(a, b).Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Error("close did not reach all backends")
	}
}
