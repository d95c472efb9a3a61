package registry

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// Prefix starts every registry number.
	Prefix = "RZ"

	// MaxSequence is the largest sequence value that fits the 4 digit field.
	MaxSequence = 9999
)

// Format builds the registry number for a sequence value:
// "RZ" + last two digits of year + upper-cased office code + sequence padded to 4 digits.
// The office code is used verbatim apart from case. Sequence values above
// MaxSequence return ErrOverflow rather than a longer string.
func Format(year int, officeCode string, seq int64) (string, error) {
	if year < 0 {
		return "", fmt.Errorf("invalid year %d", year)
	}
	if seq < 0 || seq > MaxSequence {
		return "", fmt.Errorf("%w: sequence %d exceeds %d", ErrOverflow, seq, MaxSequence)
	}

	return fmt.Sprintf("%s%02d%s%04d", Prefix, year%100, strings.ToUpper(officeCode), seq), nil
}

// ValidateCode checks that an office code can be embedded in a registry number.
// length > 0 additionally enforces the fixed code width.
func ValidateCode(code string, length int) error {
	if code == "" {
		return fmt.Errorf("%w: office code is empty", ErrConfiguration)
	}

	for _, r := range code {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return fmt.Errorf("%w: office code %q must be alphanumeric", ErrConfiguration, code)
		}
	}

	if length > 0 && len(code) != length {
		return fmt.Errorf("%w: office code %q must be %d characters", ErrConfiguration, code, length)
	}

	return nil
}
