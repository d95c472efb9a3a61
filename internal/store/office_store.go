package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/foundreg/internal/models"
)

// Sentinel errors for office store operations
var (
	ErrOfficeNotFound      = errors.New("office not found")
	ErrOfficeAlreadyExists = errors.New("office already exists")
)

// OfficeStore defines the interface for county office storage operations.
// Offices are the office directory consulted during registry number allocation.
type OfficeStore interface {
	// Create creates a new office in the store.
	// Returns ErrOfficeAlreadyExists if an office with the same ID or code already exists.
	Create(ctx context.Context, office *models.Office) error

	// Get retrieves an office by ID.
	// Returns ErrOfficeNotFound if the office doesn't exist.
	Get(ctx context.Context, officeID uuid.UUID) (*models.Office, error)

	// GetByCode retrieves an office by its registry code (case-insensitive).
	// Returns ErrOfficeNotFound if the office doesn't exist.
	GetByCode(ctx context.Context, code string) (*models.Office, error)

	// Update updates the display metadata of an existing office.
	// The code is immutable once registry numbers have been issued and is not updated.
	// Returns ErrOfficeNotFound if the office doesn't exist.
	Update(ctx context.Context, office *models.Office) error

	// List returns all offices ordered by code.
	List(ctx context.Context) ([]*models.Office, error)

	// AddMember assigns a user to an office. Assigning twice is a no-op.
	// Returns ErrOfficeNotFound or ErrUserNotFound if either side doesn't exist.
	AddMember(ctx context.Context, officeID uuid.UUID, userID int64) error

	// ListByMember returns all offices the user belongs to, ordered by code.
	ListByMember(ctx context.Context, userID int64) ([]*models.Office, error)
}
