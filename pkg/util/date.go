package util

import (
	"strconv"
	"strings"
	"time"
)

// NaiveLayout is the zone-less ISO layout used on the remote store wire. UTC is implied.
const NaiveLayout = "2006-01-02T15:04:05"

// calendarLayouts are tried in order. Fractional seconds are accepted after any
// seconds field, so "dd.mm.yyyy HH:MM:SS.ffffff" is covered by the plain layout.
var calendarLayouts = []string{
	time.RFC3339Nano,
	"02.01.2006 15:04:05",
	"01.02.2006 15:04:05",
	"2006-01-02 15:04:05",
	NaiveLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseCalendarTime parses a calendar date string. Zone-less values are read as UTC.
func ParseCalendarTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range calendarLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseTime tries the calendar layouts, then unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if t, ok := ParseCalendarTime(s); ok {
		return t, true
	}
	if ts, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// FormatNaive renders t in NaiveLayout after converting to UTC.
func FormatNaive(t time.Time) string {
	return t.UTC().Format(NaiveLayout)
}

// AlignRange floors from and ceils to onto step boundaries (epoch seconds).
func AlignRange(from, to int64, step time.Duration) (int64, int64) {
	s := int64(step / time.Second)
	if s <= 1 {
		return from, to
	}
	from = floorDiv(from, s) * s
	if r := to - floorDiv(to, s)*s; r != 0 {
		to += s - r
	}
	return from, to
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
