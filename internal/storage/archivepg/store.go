// Package archivepg mirrors observed ledger state and submission receipts
// into Postgres. The archive is an audit convenience: it is written
// best-effort after each successful fetch or write and is never read on the
// sync path.
package archivepg

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/service"
)

//go:embed migrations/001_init.sql
var migration001 string

type Store struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string, maxConns, minConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns >= 0 {
		cfg.MinConns = minConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &Store{pool: pool}
	if err := store.applyMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration001)
	if err != nil {
		return fmt.Errorf("apply migration 001: %w", err)
	}
	return nil
}

// RecordEntries upserts the observed entries keyed by position. Entries are
// immutable on chain except the state flag, so the upsert only ever advances
// state and refreshes last_seen_at.
func (s *Store) RecordEntries(ctx context.Context, entries []ledger.Entry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
INSERT INTO observed_entries (position, sender, content, file_cid, state, entry_timestamp, entry_digest)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (position) DO UPDATE SET
  state = GREATEST(observed_entries.state, EXCLUDED.state),
  entry_digest = EXCLUDED.entry_digest,
  last_seen_at = NOW()
`, e.Position, e.Sender, e.Content, e.FileCID, int16(e.State), e.Timestamp, ledger.EntryDigest(e))
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert observed entry: %w", err)
		}
	}
	return nil
}

func (s *Store) RecordSubmission(ctx context.Context, r service.SubmissionReceipt) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO submission_receipts (intent_id, kind, identity, content, file_cid, position, tx_hash, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (intent_id) DO NOTHING
`, r.IntentID, r.Kind, r.Identity, r.Content, r.FileCID, nullablePosition(r), r.TxHash, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert submission receipt: %w", err)
	}
	return nil
}

func nullablePosition(r service.SubmissionReceipt) any {
	if r.Kind != "confirm" {
		return nil
	}
	return r.Position
}
