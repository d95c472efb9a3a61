package models

import (
	"time"

	"github.com/google/uuid"
)

// FoundItem is a submitted found-item form.
// RegistryNumber is assigned once at submission and never changes.
type FoundItem struct {
	ItemID         uuid.UUID // UUIDv7
	RegistryNumber string
	OfficeID       uuid.UUID
	UserID         int64

	ItemName      string
	ItemColor     *string
	ItemBrand     *string
	FoundLocation string
	FoundAt       time.Time // Found date combined with FoundTime when it parses
	FoundTime     *string   // "HH:MM" as entered
	Circumstances *string

	FoundByFirstName   *string
	FoundByLastName    *string
	FoundByPhoneNumber *string

	CreatedAt time.Time
}
