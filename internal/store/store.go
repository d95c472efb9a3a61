package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/foundreg/internal/models"
)

// Sentinel errors for common error conditions
var (
	// ErrTransient marks infrastructure failures (lock timeout, lost connection,
	// serialization failure) after which the whole enclosing submission may be retried.
	ErrTransient = errors.New("transient store error")

	ErrCounterNotFound = errors.New("sequence counter not found")

	// ErrCounterExists is returned by SequenceStore.Create when a concurrent
	// transaction created the same (office, year) counter first.
	ErrCounterExists = errors.New("sequence counter already exists")

	ErrFoundItemNotFound    = errors.New("found item not found")
	ErrRegistryNumberExists = errors.New("registry number already exists")
)

// SequenceStore provides transaction-scoped access to the per office, per year
// registry counters. Implementations are obtained from TxStores and are only
// valid until the enclosing transaction ends.
type SequenceStore interface {
	// FetchForUpdate returns the counter for (officeID, year) and takes an exclusive
	// row lock held until the enclosing transaction commits or rolls back.
	// Returns ErrCounterNotFound if the counter does not exist yet.
	FetchForUpdate(ctx context.Context, officeID uuid.UUID, year int) (*models.SequenceCounter, error)

	// Create inserts a new counter starting at initial.
	// Returns ErrCounterExists if the counter was created concurrently; the
	// enclosing transaction remains usable in that case.
	Create(ctx context.Context, officeID uuid.UUID, year int, initial int64) (*models.SequenceCounter, error)

	// Increment raises the stored value by exactly one and returns the new value.
	// The caller must hold the lock taken by FetchForUpdate.
	Increment(ctx context.Context, counter *models.SequenceCounter) (int64, error)
}

// SequenceUpserter is implemented by sequence stores that can create-or-increment
// a counter in a single atomic statement.
type SequenceUpserter interface {
	NextValue(ctx context.Context, officeID uuid.UUID, year int) (int64, error)
}

// FoundItemStore defines the interface for found-item form storage operations.
type FoundItemStore interface {
	// Create persists a new found item.
	// Returns ErrRegistryNumberExists if the registry number is already taken.
	Create(ctx context.Context, item *models.FoundItem) error

	// GetForUser retrieves a found item owned by the given user.
	// Returns ErrFoundItemNotFound if it doesn't exist or belongs to someone else.
	GetForUser(ctx context.Context, itemID uuid.UUID, userID int64) (*models.FoundItem, error)

	// ListByUser returns all found items submitted by the user, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*models.FoundItem, error)
}

// TxStores exposes the stores bound to a single open transaction.
type TxStores interface {
	Sequences() SequenceStore
	FoundItems() FoundItemStore
	Offices() OfficeStore
}

// Transactor provides the transactional boundary for form submissions.
// fn runs inside one transaction; returning an error rolls everything back,
// including any sequence values allocated through TxStores.Sequences.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error
}
