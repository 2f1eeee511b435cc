package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ShortIDLength is how many leading characters of a job ID the CLI shows
// and accepts as a prefix lookup.
const ShortIDLength = 8

// NewJobID returns a fresh UUIDv7 job ID.
//
// UUIDv7 embeds a timestamp in the most significant bits, so job IDs
// sort by submission time. That property is what lets `list` order by ID
// as a tiebreaker without surprising anyone.
func NewJobID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ShortID returns the display prefix of a job ID.
func ShortID(id string) string {
	if len(id) <= ShortIDLength {
		return id
	}
	return id[:ShortIDLength]
}

// ValidateJobID checks that id parses as a UUID.
func ValidateJobID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid job ID %q: %w", id, err)
	}
	return nil
}

// IsJobIDPrefix reports whether q could be a prefix lookup rather than a
// full ID: shorter than a full UUID and made of hex/hyphen characters.
func IsJobIDPrefix(q string) bool {
	if len(q) == 0 || len(q) >= 36 {
		return false
	}
	for _, r := range strings.ToLower(q) {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
