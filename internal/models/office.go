package models

import (
	"time"

	"github.com/google/uuid"
)

// Office represents a county office (starostwo) that registers found items.
// Each office owns its own registry number sequence per calendar year.
type Office struct {
	OfficeID uuid.UUID // UUIDv7
	Code     string    // Short fixed-length code used in registry numbers, e.g. "0403"
	Name     string    // Display name, e.g. "Starostwo Powiatowe w Bydgoszczy"

	// Administrative division metadata
	VoivodeshipName string
	VoivodeshipCode string
	CountyCode      string

	CreatedAt time.Time
	UpdatedAt time.Time
}
