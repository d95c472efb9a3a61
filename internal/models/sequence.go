package models

import (
	"time"

	"github.com/google/uuid"
)

// SequenceCounter holds the last issued registry sequence value for an office and calendar year.
// CurrentValue starts at 0 and increases by exactly one per allocation.
type SequenceCounter struct {
	OfficeID     uuid.UUID
	Year         int
	CurrentValue int64

	CreatedAt time.Time
	UpdatedAt time.Time
}
