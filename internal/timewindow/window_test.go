package timewindow

import (
	"errors"
	"testing"
	"time"
)

func TestHoursElapsed(t *testing.T) {
	anchor := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	if got := HoursElapsed(anchor, anchor.Add(90*time.Minute)); got != 1.5 {
		t.Fatalf("elapsed = %v, want 1.5", got)
	}
	if got := HoursElapsed(anchor, anchor.Add(-time.Hour)); got != -1 {
		t.Fatalf("future anchor elapsed = %v, want -1", got)
	}
}

func TestHoursRemaining(t *testing.T) {
	anchor := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	if got := HoursRemaining(anchor, 24, anchor.Add(20*time.Hour)); got != 4 {
		t.Fatalf("remaining = %v, want 4", got)
	}
	// Raw value stays negative once the window closes.
	if got := HoursRemaining(anchor, 24, anchor.Add(25*time.Hour)); got != -1 {
		t.Fatalf("remaining = %v, want -1", got)
	}
	if got := ClampForDisplay(-1); got != 0 {
		t.Fatalf("clamp = %v, want 0", got)
	}
	if got := ClampForDisplay(3.25); got != 3.25 {
		t.Fatalf("clamp = %v, want 3.25", got)
	}
}

func TestParseFlexibleDate(t *testing.T) {
	cases := []struct {
		value string
		want  time.Time
	}{
		{"2025-06-01T10:30:00Z", time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"2025-06-01T10:30:00", time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"01/06/2025 10:30", time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"01/06/2025 10:30:45", time.Date(2025, 6, 1, 10, 30, 45, 0, time.UTC)},
		// Date-only inputs resolve to the 23:59 validity default, not midnight.
		{"01/06/2025", time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)},
		{"2025-06-01", time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)},
		{" 01/06/2025 ", time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseFlexibleDate(tc.value)
		if err != nil {
			t.Fatalf("ParseFlexibleDate(%q): %v", tc.value, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseFlexibleDate(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestParseFlexibleDateFailsClosed(t *testing.T) {
	for _, value := range []string{"", "tomorrow", "06/2025", "32/01/2025", "2025-13-01", "01-06-2025"} {
		if _, err := ParseFlexibleDate(value); !errors.Is(err, ErrUnparseableDate) {
			t.Fatalf("ParseFlexibleDate(%q): expected ErrUnparseableDate, got %v", value, err)
		}
	}
}
