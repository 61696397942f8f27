// Package validation provides input checks shared by the content handlers:
// record identifiers, project dates and links, and the "imageref" rule used
// when a client sends a list of existing image references.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-date form accepted for project dates besides RFC 3339.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidLink = errors.New("invalid link")
)

// ValidID reports whether id is a canonical UUID as generated for every record.
func ValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// ParseDate accepts RFC 3339 timestamps and YYYY-MM-DD dates. Dates are
// interpreted as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// ValidateLink requires an absolute http or https URL with a host.
func ValidateLink(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q must be an absolute http(s) URL", ErrInvalidLink, s)
	}
	return nil
}
