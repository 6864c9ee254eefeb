// internal/store/store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// schemaSQL creates the single claims table on startup so the daemon works
// against an empty database without an external migration step.
const schemaSQL = `
    CREATE TABLE IF NOT EXISTS claims (
        id      TEXT PRIMARY KEY,
        run_id  TEXT NOT NULL,
        address TEXT NOT NULL,
        kind    TEXT NOT NULL,
        outcome TEXT NOT NULL,
        amount  BIGINT NOT NULL,
        at      TIMESTAMPTZ NOT NULL,
        detail  JSONB NOT NULL DEFAULT '{}'
    );
    CREATE INDEX IF NOT EXISTS claims_address_at_idx ON claims (address, at DESC);
`

// Store provides a PostgreSQL implementation of the ClaimStore interface.
// Every record it writes is stamped with the account address it was built
// for, so one database can hold the history of several accounts.
type Store struct {
	pool    DBPool
	address string
	log     *zap.Logger
}

var _ schemas.ClaimStore = (*Store)(nil)

// New creates a new store instance, verifies the connection and ensures the
// claims table exists.
func New(ctx context.Context, pool DBPool, address string, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure claims schema: %w", err)
	}

	return &Store{
		pool:    pool,
		address: address,
		log:     logger.Named("store"),
	}, nil
}

// SaveClaims persists one batch of claim records in a single transaction.
func (s *Store) SaveClaims(ctx context.Context, claims []schemas.ClaimRecord) error {
	if len(claims) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed; that is not an error.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	rows := make([][]interface{}, len(claims))
	for i, c := range claims {
		detail := c.Detail
		if len(detail) == 0 || string(detail) == "null" {
			detail = json.RawMessage("{}")
		}

		rows[i] = []interface{}{
			c.ID, c.RunID, s.address,
			string(c.Kind), string(c.Outcome),
			c.Amount,
			c.At.UTC(),
			detail,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"claims"},
		[]string{"id", "run_id", "address", "kind", "outcome", "amount", "at", "detail"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy claims: %w", err)
	}
	if int(copyCount) != len(claims) {
		return fmt.Errorf("mismatch in copied claims count: expected %d, got %d", len(claims), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecentClaims retrieves the newest claim records for an address, newest
// first. A non-positive limit falls back to 50.
func (s *Store) RecentClaims(ctx context.Context, address string, limit int) ([]schemas.ClaimRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
        SELECT id, run_id, kind, outcome, amount, at, detail
        FROM claims
        WHERE address = $1
        ORDER BY at DESC
        LIMIT $2;
    `
	rows, err := s.pool.Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []schemas.ClaimRecord
	for rows.Next() {
		var c schemas.ClaimRecord
		var kindStr, outcomeStr string

		err := rows.Scan(&c.ID, &c.RunID, &kindStr, &outcomeStr, &c.Amount, &c.At, &c.Detail)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim row: %w", err)
		}

		c.Kind = schemas.ClaimKind(kindStr)
		c.Outcome = schemas.Outcome(outcomeStr)
		claims = append(claims, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return claims, nil
}
