package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/store"
)

// Transactor implements store.Transactor on a pgx pool.
// Each RunInTx call runs in its own READ COMMITTED transaction with a bounded
// lock wait, so contention on a single (office, year) counter surfaces as
// store.ErrTransient instead of hanging the request.
type Transactor struct {
	pool *pgxpool.Pool
	cfg  TxConfig
}

var _ store.Transactor = (*Transactor)(nil)

// NewTransactor creates a new transactor sharing the pool with other stores.
func NewTransactor(pool *pgxpool.Pool, cfg TxConfig) (*Transactor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction config: %w", err)
	}

	return &Transactor{pool: pool, cfg: cfg}, nil
}

// RunInTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context, stores store.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: transaction aborted: %w", store.ErrTransient, err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	// SET LOCAL does not take bind parameters; set_config(..., true) is the equivalent
	_, err = tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, formatPGInterval(t.cfg.LockTimeout))
	if err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", mapPostgresError(err))
	}

	if err := fn(ctx, &txStores{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", mapPostgresError(err))
	}

	return nil
}

// formatPGInterval renders d in milliseconds, the unit lock_timeout defaults to.
func formatPGInterval(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// txStores binds the stores to an open transaction.
type txStores struct {
	tx pgx.Tx
}

func (s *txStores) Sequences() store.SequenceStore {
	return newSequenceStore(s.tx)
}

func (s *txStores) FoundItems() store.FoundItemStore {
	return newFoundItemStore(s.tx)
}

func (s *txStores) Offices() store.OfficeStore {
	return newOfficeStore(s.tx)
}
