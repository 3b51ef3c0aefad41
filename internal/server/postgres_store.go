package server

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresOpsStore struct {
	pool *pgxpool.Pool
}

func NewPostgresOpsStore(ctx context.Context, databaseURL string, maxConns int32) (*PostgresOpsStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	store := &PostgresOpsStore{pool: pool}
	if err := store.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return store, nil
}

func (store *PostgresOpsStore) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS bridge_ops_events (
  id BIGSERIAL PRIMARY KEY,
  timestamp BIGINT NOT NULL,
  kind TEXT NOT NULL,
  title TEXT NOT NULL,
  detail TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bridge_ops_events_timestamp ON bridge_ops_events(timestamp DESC);
`

	_, err := store.pool.Exec(ctx, schema)
	return err
}

func (store *PostgresOpsStore) AddOpsEvent(ctx context.Context, event OpsEvent) error {
	const query = `
INSERT INTO bridge_ops_events (timestamp, kind, title, detail)
VALUES ($1, $2, $3, $4)
`

	_, err := store.pool.Exec(ctx, query, event.Timestamp, event.Kind, event.Title, event.Detail)
	return err
}

func (store *PostgresOpsStore) LatestOpsEvents(ctx context.Context, limit int) ([]OpsEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
SELECT id, timestamp, kind, title, detail
FROM bridge_ops_events
ORDER BY id DESC
LIMIT $1
`

	rows, err := store.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]OpsEvent, 0, limit)
	for rows.Next() {
		var event OpsEvent
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.Kind, &event.Title, &event.Detail); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for left, right := 0, len(events)-1; left < right; left, right = left+1, right-1 {
		events[left], events[right] = events[right], events[left]
	}

	return events, nil
}

func (store *PostgresOpsStore) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return store.pool.Ping(pingCtx)
}

func (store *PostgresOpsStore) Close() {
	store.pool.Close()
}

var _ OpsEventStore = (*PostgresOpsStore)(nil)
