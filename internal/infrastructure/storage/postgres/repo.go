package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"kitefeed/internal/application/port"
	"kitefeed/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_prices (
  token BIGINT PRIMARY KEY,
  price DOUBLE PRECISION NOT NULL,
  ts_ms BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS instruments (
  token BIGINT PRIMARY KEY,
  exchange_token BIGINT NOT NULL,
  tradingsymbol TEXT NOT NULL,
  name TEXT NOT NULL,
  exchange TEXT NOT NULL,
  segment TEXT NOT NULL,
  instrument_type TEXT NOT NULL,
  expiry BIGINT NOT NULL,
  last_price DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_instruments_name ON instruments(name);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, token uint32, price float64, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_prices(token, price, ts_ms)
		VALUES($1, $2, $3)
		ON CONFLICT(token) DO UPDATE SET
		price=excluded.price, ts_ms=excluded.ts_ms
	`, int64(token), price, ts)
	return err
}

func (r *Repo) SaveInstruments(ctx context.Context, list []model.Instrument) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE instruments`); err != nil {
		return err
	}
	for _, in := range list {
		var expiry int64
		if !in.Expiry.IsZero() {
			expiry = in.Expiry.Unix()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO instruments(token, exchange_token, tradingsymbol, name, exchange, segment, instrument_type, expiry, last_price)
			VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, int64(in.Token), in.ExchangeToken, in.Symbol, in.Name,
			in.Exchange, in.Segment, in.InstrumentType, expiry, in.LastPrice); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) LoadInstruments(ctx context.Context) ([]model.Instrument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token, exchange_token, tradingsymbol, name, exchange, segment, instrument_type, expiry, last_price
		FROM instruments
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		var in model.Instrument
		var token, expiry int64
		if err := rows.Scan(&token, &in.ExchangeToken, &in.Symbol, &in.Name,
			&in.Exchange, &in.Segment, &in.InstrumentType, &expiry, &in.LastPrice); err != nil {
			return nil, err
		}
		in.Token = uint32(token)
		if expiry > 0 {
			in.Expiry = time.Unix(expiry, 0).UTC()
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

var _ port.Repository = (*Repo)(nil)
