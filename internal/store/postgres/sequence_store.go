package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
)

const officeSequencesPkey = "office_sequences_pkey"

// SequenceStore implements store.SequenceStore and store.SequenceUpserter on the
// office_sequences table. It is always bound to a transaction: the row lock taken
// by FetchForUpdate lives until that transaction ends.
type SequenceStore struct {
	db dbtx
}

var (
	_ store.SequenceStore    = (*SequenceStore)(nil)
	_ store.SequenceUpserter = (*SequenceStore)(nil)
)

func newSequenceStore(tx pgx.Tx) *SequenceStore {
	return &SequenceStore{db: tx}
}

// FetchForUpdate locks and returns the counter row for (officeID, year).
// Only that row is locked; other offices and years are not blocked.
func (s *SequenceStore) FetchForUpdate(ctx context.Context, officeID uuid.UUID, year int) (*models.SequenceCounter, error) {
	query := `
		SELECT office_id, year, current_value, created_at, updated_at
		FROM office_sequences
		WHERE office_id = $1 AND year = $2
		FOR UPDATE
	`

	var counter models.SequenceCounter
	err := s.db.QueryRow(ctx, query, officeID, year).Scan(
		&counter.OfficeID,
		&counter.Year,
		&counter.CurrentValue,
		&counter.CreatedAt,
		&counter.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCounterNotFound
		}
		return nil, fmt.Errorf("failed to lock sequence counter: %w", mapPostgresError(err))
	}

	return &counter, nil
}

// Create inserts a new counter row inside a savepoint. When a concurrent
// transaction inserted the same key first, the insert waits for it to commit,
// fails with a unique violation, and only the savepoint is rolled back, so the
// enclosing transaction can reload the row and continue.
func (s *SequenceStore) Create(ctx context.Context, officeID uuid.UUID, year int, initial int64) (*models.SequenceCounter, error) {
	if initial < 0 {
		return nil, fmt.Errorf("initial sequence value must not be negative: %d", initial)
	}

	query := `
		INSERT INTO office_sequences (office_id, year, current_value, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING office_id, year, current_value, created_at, updated_at
	`

	sp, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", mapPostgresError(err))
	}

	var counter models.SequenceCounter
	err = sp.QueryRow(ctx, query, officeID, year, initial).Scan(
		&counter.OfficeID,
		&counter.Year,
		&counter.CurrentValue,
		&counter.CreatedAt,
		&counter.UpdatedAt,
	)
	if err != nil {
		_ = sp.Rollback(ctx)

		if isUniqueViolation(err, officeSequencesPkey) {
			log.Debug().
				Str("office_id", officeID.String()).
				Int("year", year).
				Msg("Sequence counter created concurrently")
			return nil, store.ErrCounterExists
		}
		return nil, fmt.Errorf("failed to create sequence counter: %w", mapPostgresError(err))
	}

	// Releases the savepoint; the row stays uncommitted until the outer transaction commits
	if err := sp.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to release savepoint: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("office_id", officeID.String()).
		Int("year", year).
		Msg("Created sequence counter")

	return &counter, nil
}

// Increment adds one to the locked counter and returns the new value.
func (s *SequenceStore) Increment(ctx context.Context, counter *models.SequenceCounter) (int64, error) {
	query := `
		UPDATE office_sequences
		SET current_value = current_value + 1, updated_at = now()
		WHERE office_id = $1 AND year = $2
		RETURNING current_value
	`

	var value int64
	err := s.db.QueryRow(ctx, query, counter.OfficeID, counter.Year).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrCounterNotFound
		}
		return 0, fmt.Errorf("failed to increment sequence counter: %w", mapPostgresError(err))
	}

	counter.CurrentValue = value

	return value, nil
}

// NextValue creates or increments the counter in one statement. The row lock
// taken by the upsert is held until the enclosing transaction ends, giving the
// same ordering guarantees as FetchForUpdate followed by Increment.
func (s *SequenceStore) NextValue(ctx context.Context, officeID uuid.UUID, year int) (int64, error) {
	query := `
		INSERT INTO office_sequences (office_id, year, current_value, created_at, updated_at)
		VALUES ($1, $2, 1, now(), now())
		ON CONFLICT (office_id, year)
		DO UPDATE SET current_value = office_sequences.current_value + 1, updated_at = now()
		RETURNING current_value
	`

	var value int64
	if err := s.db.QueryRow(ctx, query, officeID, year).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to upsert sequence counter: %w", mapPostgresError(err))
	}

	return value, nil
}
