package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultQueryTimeout bounds every query issued by Postgres when the
// caller's context carries no deadline of its own.
const DefaultQueryTimeout = 30 * time.Second

// Postgres is the production AuditStore, backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres parses databaseURL, opens a pool, and runs migrations.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// InsertVerified inserts a verified row, doing nothing if nonce already
// has a row — the idempotent-insert requirement of the verify path.
func (s *Postgres) InsertVerified(ctx context.Context, p Payment) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, payer, recipient, token, authorized_amount, nonce, status, network, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (nonce) DO NOTHING
	`, id, p.Payer, p.Recipient, p.Token, p.AuthorizedAmount, p.Nonce, StatusVerified, p.Network)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// MarkSettled moves a verified row to settled, recording the tx hash and
// settled amount. It is a no-op if the row is not currently verified —
// transitions are monotonic, never reversed.
func (s *Postgres) MarkSettled(ctx context.Context, nonce, txHash, settledAmount string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $1, tx_hash = $2, settled_amount = $3, settled_at = now()
		WHERE nonce = $4 AND status = $5
	`, StatusSettled, txHash, settledAmount, nonce, StatusVerified)
	if err != nil {
		return fmt.Errorf("failed to mark settled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.requireExists(ctx, nonce)
	}
	return nil
}

// MarkFailed moves a verified row to failed, storing the error reason in
// settled_amount as an operational convenience (see DESIGN.md for the
// schema refactor this is standing in for).
func (s *Postgres) MarkFailed(ctx context.Context, nonce, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $1, settled_amount = $2, settled_at = now()
		WHERE nonce = $3 AND status = $4
	`, StatusFailed, reason, nonce, StatusVerified)
	if err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.requireExists(ctx, nonce)
	}
	return nil
}

func (s *Postgres) requireExists(ctx context.Context, nonce string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT true FROM payments WHERE nonce = $1`, nonce).Scan(&exists)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return nil
}

// Stats aggregates over the whole table in a single pass. This can
// overflow at high volume (see DESIGN.md): each amount is cast to bigint
// before summing and the totals are scanned into int64 fields.
func (s *Postgres) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var stats Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = $1),
			coalesce(sum(authorized_amount::bigint), 0),
			coalesce(sum(settled_amount::bigint) FILTER (WHERE status = $1), 0)
		FROM payments
	`, StatusSettled).Scan(&stats.TotalPayments, &stats.SettledPayments, &stats.TotalAuthorized, &stats.TotalSettled)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	if stats.TotalAuthorized > 0 {
		stats.SavingsPercent = int(100*(1-float64(stats.TotalSettled)/float64(stats.TotalAuthorized)) + 0.5)
	}
	return stats, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}
