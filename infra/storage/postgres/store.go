// Package postgres archives events into Postgres through a pgx pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scalex/infra/outbox"
	"scalex/infra/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq BIGINT NOT NULL,
	idx INTEGER NOT NULL,
	id UUID NOT NULL UNIQUE,
	type TEXT NOT NULL,
	pool TEXT NOT NULL DEFAULT '',
	time BIGINT NOT NULL,
	payload JSONB NOT NULL,
	PRIMARY KEY (seq, idx)
);
CREATE TABLE IF NOT EXISTS trades (
	event_id UUID PRIMARY KEY,
	seq BIGINT NOT NULL,
	idx INTEGER NOT NULL,
	pool TEXT NOT NULL,
	time BIGINT NOT NULL,
	taker_order_id BIGINT NOT NULL,
	maker_order_id BIGINT NOT NULL,
	taker TEXT NOT NULL,
	maker TEXT NOT NULL,
	taker_side TEXT NOT NULL,
	price NUMERIC(78,0) NOT NULL,
	quantity NUMERIC(78,0) NOT NULL,
	quote_amount NUMERIC(78,0) NOT NULL,
	taker_fee NUMERIC(78,0) NOT NULL,
	maker_fee NUMERIC(78,0) NOT NULL,
	maker_rebate NUMERIC(78,0) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_pool_time ON trades (pool, time);
CREATE TABLE IF NOT EXISTS orders (
	pool TEXT NOT NULL,
	order_id BIGINT NOT NULL,
	owner TEXT NOT NULL,
	side TEXT NOT NULL,
	type TEXT NOT NULL,
	price NUMERIC(78,0) NOT NULL,
	quantity NUMERIC(78,0) NOT NULL,
	filled NUMERIC(78,0) NOT NULL,
	time_in_force TEXT NOT NULL,
	expiry BIGINT NOT NULL,
	status TEXT NOT NULL,
	updated_seq BIGINT NOT NULL,
	PRIMARY KEY (pool, order_id)
);
`

// Store is an archive sink on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the archive tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Deliver(ctx context.Context, e outbox.Entry) error {
	rows, err := storage.Decode(e)
	if err != nil {
		return err
	}
	batch := queue(rows)

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("archive %d/%d: %w", e.Seq, e.Index, err)
		}
	}
	return nil
}

func queue(r storage.Rows) *pgx.Batch {
	batch := &pgx.Batch{}
	ev := r.Event
	batch.Queue(`
		INSERT INTO events (seq, idx, id, type, pool, time, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (seq, idx) DO NOTHING
	`, int64(ev.Seq), int32(ev.Index), ev.ID, ev.Type, ev.Pool, int64(ev.Time), ev.Payload)

	if t := r.Trade; t != nil {
		batch.Queue(`
			INSERT INTO trades (
				event_id, seq, idx, pool, time, taker_order_id, maker_order_id, taker, maker, taker_side,
				price, quantity, quote_amount, taker_fee, maker_fee, maker_rebate
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (event_id) DO NOTHING
		`,
			t.EventID, int64(t.Seq), int32(t.Index), t.Pool, int64(t.Time),
			int64(t.TakerOrderID), int64(t.MakerOrderID), t.Taker, t.Maker, t.TakerSide,
			t.Price, t.Quantity, t.QuoteAmount, t.TakerFee, t.MakerFee, t.MakerRebate,
		)
	}
	if o := r.Order; o != nil {
		batch.Queue(`
			INSERT INTO orders (
				pool, order_id, owner, side, type, price, quantity, filled, time_in_force, expiry, status, updated_seq
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (pool, order_id)
			DO UPDATE SET
				filled = EXCLUDED.filled,
				status = EXCLUDED.status,
				updated_seq = EXCLUDED.updated_seq
			WHERE orders.updated_seq <= EXCLUDED.updated_seq
		`,
			o.Pool, int64(o.OrderID), o.Owner, o.Side, o.Type, o.Price, o.Quantity, o.Filled,
			o.TimeInForce, int64(o.Expiry), o.Status, int64(o.UpdatedSeq),
		)
	}
	return batch
}
