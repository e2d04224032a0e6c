package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID is an arbitrary constant used with pg_advisory_lock so
// that concurrent facilitator instances starting up at once don't race to
// create the schema.
const migrationLockID = 402_402

// Migrate creates the payments table if it does not already exist. It
// takes a session-level advisory lock for the duration so that multiple
// facilitator processes can start concurrently against the same database
// without racing on table creation.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, migrationLockID)

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id                 text PRIMARY KEY,
			payer              text NOT NULL,
			recipient          text NOT NULL,
			token              text NOT NULL,
			authorized_amount  text NOT NULL,
			settled_amount     text,
			nonce              text NOT NULL UNIQUE,
			tx_hash            text,
			status             text NOT NULL,
			network            text NOT NULL,
			created_at         timestamptz NOT NULL,
			settled_at         timestamptz
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create payments table: %w", err)
	}

	if _, err := conn.Exec(ctx, `CREATE INDEX IF NOT EXISTS payments_payer_idx ON payments (payer)`); err != nil {
		return fmt.Errorf("failed to create payer index: %w", err)
	}
	if _, err := conn.Exec(ctx, `CREATE INDEX IF NOT EXISTS payments_status_idx ON payments (status)`); err != nil {
		return fmt.Errorf("failed to create status index: %w", err)
	}

	return nil
}
