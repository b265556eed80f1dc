package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn inside a single transaction. Any error from fn rolls back
// every statement it issued.
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}

// pgTx implements database.Tx on top of an open pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) ExpireSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE a2a_session_state
		 SET is_active = false
		 WHERE expires_at < $1 AND is_active = true`, now)
	if err != nil {
		return 0, storeErr(err, "expire sessions")
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) ArchiveTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE a2a_tasks
		 SET metadata = COALESCE(metadata, '{}'::jsonb) || '{"archived": true}'::jsonb
		 WHERE task_state IN ('completed', 'failed', 'cancelled')
		   AND completed_at < $1
		   AND NOT (COALESCE(metadata, '{}'::jsonb) ? 'archived')`, cutoff)
	if err != nil {
		return 0, storeErr(err, "archive tasks")
	}
	return tag.RowsAffected(), nil
}
