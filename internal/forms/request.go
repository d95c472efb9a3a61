package forms

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Column limits of the found_items table.
const (
	maxItemName      = 500
	maxColor         = 100
	maxBrand         = 100
	maxFoundLocation = 255
	maxFoundTime     = 5
	maxCircumstances = 500
	maxPersonName    = 100
	maxPhoneNumber   = 22
)

var (
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrOfficeRequired is returned when the user belongs to several offices
	// (or none) and the request did not pick one.
	ErrOfficeRequired = errors.New("office selection required")

	// ErrOfficeForbidden is returned when the requested office is not one of the user's.
	ErrOfficeForbidden = errors.New("office not assigned to user")
)

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// SubmitRequest is the body of a found item form submission.
type SubmitRequest struct {
	OfficeID *uuid.UUID `json:"office_id,omitempty"`

	ItemName      string  `json:"item_name"`
	ItemColor     *string `json:"item_color,omitempty"`
	ItemBrand     *string `json:"item_brand,omitempty"`
	FoundLocation string  `json:"found_location"`
	FoundDate     string  `json:"found_date"`
	FoundTime     *string `json:"found_time,omitempty"`
	Circumstances *string `json:"circumstances,omitempty"`

	FoundByFirstName   *string `json:"found_by_firstname,omitempty"`
	FoundByLastName    *string `json:"found_by_lastname,omitempty"`
	FoundByPhoneNumber *string `json:"found_by_phonenumber,omitempty"`

	// Parsed values (populated by Validate)
	foundAt time.Time
}

// Validate trims and checks the request, and parses the found date and time.
// An unparsable found_time is kept as text and the item is dated at midnight.
func (r *SubmitRequest) Validate() error {
	if r == nil {
		return &ValidationError{Field: "body", Message: "request body is required"}
	}

	r.ItemName = strings.TrimSpace(r.ItemName)
	if r.ItemName == "" {
		return &ValidationError{Field: "item_name", Message: "is required"}
	}
	if err := checkLength("item_name", r.ItemName, maxItemName); err != nil {
		return err
	}

	r.FoundLocation = strings.TrimSpace(r.FoundLocation)
	if r.FoundLocation == "" {
		return &ValidationError{Field: "found_location", Message: "is required"}
	}
	if err := checkLength("found_location", r.FoundLocation, maxFoundLocation); err != nil {
		return err
	}

	r.FoundDate = strings.TrimSpace(r.FoundDate)
	if r.FoundDate == "" {
		return &ValidationError{Field: "found_date", Message: "is required"}
	}
	date, err := time.Parse(dateLayout, r.FoundDate)
	if err != nil {
		return &ValidationError{Field: "found_date", Message: "must be a date in YYYY-MM-DD format"}
	}

	optional := []struct {
		field string
		value **string
		max   int
	}{
		{"item_color", &r.ItemColor, maxColor},
		{"item_brand", &r.ItemBrand, maxBrand},
		{"found_time", &r.FoundTime, maxFoundTime},
		{"circumstances", &r.Circumstances, maxCircumstances},
		{"found_by_firstname", &r.FoundByFirstName, maxPersonName},
		{"found_by_lastname", &r.FoundByLastName, maxPersonName},
		{"found_by_phonenumber", &r.FoundByPhoneNumber, maxPhoneNumber},
	}
	for _, o := range optional {
		*o.value = trimOptional(*o.value)
		if *o.value == nil {
			continue
		}
		if err := checkLength(o.field, **o.value, o.max); err != nil {
			return err
		}
	}

	r.foundAt = date
	if r.FoundTime != nil {
		if tod, err := time.Parse(timeLayout, *r.FoundTime); err == nil {
			r.foundAt = date.Add(time.Duration(tod.Hour())*time.Hour + time.Duration(tod.Minute())*time.Minute)
		}
	}

	return nil
}

// FoundAt returns the parsed date and time the item was found.
func (r *SubmitRequest) FoundAt() time.Time {
	return r.foundAt
}

// trimOptional trims s and maps blank values to nil.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func checkLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}
