// Package timewindow evaluates the rolling time windows that gate E-Way
// Bill lifecycle operations and parses the two date representations the
// compliance portal accepts.
package timewindow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultValidityTimeOfDay is applied when a validity input carries a date
// but no time component. The portal treats a bare validity date as end of
// business day, not midnight.
const DefaultValidityTimeOfDay = "23:59"

// ErrUnparseableDate is returned when a date string matches none of the
// accepted layouts. Parsing fails closed rather than guessing.
var ErrUnparseableDate = errors.New("timewindow: unparseable date")

// HoursElapsed returns fractional hours from anchor to now. The result is
// negative when the anchor lies in the future; callers treat that as an
// invalid anchor.
func HoursElapsed(anchor, now time.Time) float64 {
	return now.Sub(anchor).Hours()
}

// HoursRemaining returns boundHours minus the hours elapsed since anchor.
// The raw signed value gates eligibility: a value <= 0 means the window
// has closed. Use ClampForDisplay for user-facing remaining time.
func HoursRemaining(anchor time.Time, boundHours float64, now time.Time) float64 {
	return boundHours - HoursElapsed(anchor, now)
}

// ClampForDisplay floors a remaining-hours value at zero.
func ClampForDisplay(hours float64) float64 {
	if hours < 0 {
		return 0
	}
	return hours
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

var dateOnlyLayouts = []string{
	"2006-01-02",
	"02/01/2006",
}

// ParseFlexibleDate parses an ISO-8601 timestamp or the portal's
// dd/MM/yyyy[ HH:mm] form. Date-only inputs resolve to
// DefaultValidityTimeOfDay on that date. Anything else is rejected.
func ParseFlexibleDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnparseableDate)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC(), nil
		}
	}
	for _, layout := range dateOnlyLayouts {
		if parsed, err := time.Parse(layout+" 15:04", trimmed+" "+DefaultValidityTimeOfDay); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableDate, value)
}
