package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kitefeed/internal/application/port"
	"kitefeed/internal/domain/model"
)

type Repo struct {
	rdb       *redis.Client
	ttl       time.Duration
	keyLatest string
	keyDump   string
}

type latestPrice struct {
	Price float64 `json:"price"`
	Ts    int64   `json:"ts_ms"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	return &Repo{
		rdb:       rdb,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
		keyDump:   prefix + ":instruments",
	}
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, token uint32, price float64, ts int64) error {
	if price <= 0 {
		return nil
	}
	b, _ := json.Marshal(latestPrice{Price: price, Ts: ts})

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, fmt.Sprintf("%d", token), string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SaveInstruments stores the whole catalog as one JSON blob. The dump is
// only read back as a degraded-start fallback, so a single key is enough.
func (r *Repo) SaveInstruments(ctx context.Context, list []model.Instrument) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.keyDump, b, r.ttl).Err()
}

func (r *Repo) LoadInstruments(ctx context.Context) ([]model.Instrument, error) {
	b, err := r.rdb.Get(ctx, r.keyDump).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []model.Instrument
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)
