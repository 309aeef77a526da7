package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"kitefeed/internal/application/port"
	"kitefeed/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  token INTEGER PRIMARY KEY,
  price REAL NOT NULL,
  ts_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_latest_ts ON latest_prices(ts_ms);

CREATE TABLE IF NOT EXISTS instruments (
  token INTEGER PRIMARY KEY,
  exchange_token INTEGER NOT NULL,
  tradingsymbol TEXT NOT NULL,
  name TEXT NOT NULL,
  exchange TEXT NOT NULL,
  segment TEXT NOT NULL,
  instrument_type TEXT NOT NULL,
  expiry INTEGER NOT NULL,
  last_price REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_instruments_name ON instruments(name);
CREATE INDEX IF NOT EXISTS idx_instruments_exchange ON instruments(exchange);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, token uint32, price float64, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_prices(token, price, ts_ms)
		VALUES(?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
		price=excluded.price, ts_ms=excluded.ts_ms
	`, token, price, ts)
	return err
}

// SaveInstruments replaces the stored catalog snapshot wholesale. The
// dump is re-fetched on every session start, stale rows must not linger.
func (r *Repo) SaveInstruments(ctx context.Context, list []model.Instrument) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM instruments`); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO instruments(token, exchange_token, tradingsymbol, name, exchange, segment, instrument_type, expiry, last_price)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, in := range list {
		var expiry int64
		if !in.Expiry.IsZero() {
			expiry = in.Expiry.Unix()
		}
		if _, err := stmt.ExecContext(ctx, in.Token, in.ExchangeToken, in.Symbol, in.Name,
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
		var expiry int64
		if err := rows.Scan(&in.Token, &in.ExchangeToken, &in.Symbol, &in.Name,
			&in.Exchange, &in.Segment, &in.InstrumentType, &expiry, &in.LastPrice); err != nil {
			return nil, err
		}
		if expiry > 0 {
			in.Expiry = time.Unix(expiry, 0).UTC()
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

var _ port.Repository = (*Repo)(nil)
