// Package dateutil normalizes the heterogeneous date strings found in the
// upstream portal's markup into time.Time values. Parsing is best effort:
// a value that matches no supported format yields nil, never an error.
package dateutil

import (
	"strings"
	"time"

	"github.com/peer-digital/medla-projects/internal/logging"
)

// layouts are tried in order. time.Parse accepts a trailing fractional
// second after the seconds field, so these also cover ".ffffff" variants.
var layouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// dayFirstLayouts cover the portal's day-first locale strings.
var dayFirstLayouts = []string{
	"02-01-2006",
	"02/01/2006",
}

// Parse converts a date string into a time.Time. It returns nil when the
// string is empty or matches no supported format. Numeric-looking strings
// (stray table cells upstream) are unparseable, not dates.
func Parse(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}

	// Last resort: strings like "2024-03-01 (reg)" carry a date before the
	// first whitespace.
	if strings.Contains(s, "-") {
		datePart := strings.Fields(s)[0]
		if t, err := time.Parse("2006-01-02", datePart); err == nil {
			return &t
		}
	}

	logging.GetGlobalLogger().WithField("value", s).Debug("Could not parse date with any format")
	return nil
}

// ParsePortalDate parses day-first locale strings from the portal before
// falling back to the ISO formats Parse supports.
func ParsePortalDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}

	return Parse(s)
}
