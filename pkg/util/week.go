package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WeekSpan is the distance from a week's Monday 00:00:00 to its Sunday 23:59:59.
const WeekSpan = 7*24*time.Hour - time.Second

const maxISOWeek = 53

// WeekToRange maps an ISO week key ("2024-W01") to its UTC bounds.
// ok is false for malformed keys and for weeks outside 1..53.
func WeekToRange(key string) (start, end time.Time, ok bool) {
	yearPart, weekPart, found := strings.Cut(strings.TrimSpace(key), "-W")
	if !found {
		return time.Time{}, time.Time{}, false
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil || year <= 0 {
		return time.Time{}, time.Time{}, false
	}
	week, err := strconv.Atoi(weekPart)
	if err != nil || week <= 0 || week > maxISOWeek {
		return time.Time{}, time.Time{}, false
	}

	start = ISOWeekStart(year, week)
	return start, start.Add(WeekSpan), true
}

// ISOWeekStart returns Monday 00:00 UTC of the given ISO week.
// Week 1 is the week holding January 4th.
func ISOWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	monday := jan4.AddDate(0, 0, -(isoWeekday(jan4) - 1))
	return monday.AddDate(0, 0, (week-1)*7)
}

// WeekKey returns the ISO week key of t in UTC.
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// WeekStart returns Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -(isoWeekday(day) - 1))
}

// WeekKeysBetween lists every week key from the week of from to the week of to, inclusive.
func WeekKeysBetween(from, to time.Time) []string {
	if to.Before(from) {
		from, to = to, from
	}
	last := WeekStart(to)
	var keys []string
	for cur := WeekStart(from); !cur.After(last); cur = cur.AddDate(0, 0, 7) {
		keys = append(keys, WeekKey(cur))
	}
	return keys
}

func isoWeekday(t time.Time) int {
	if wd := t.Weekday(); wd != time.Sunday {
		return int(wd)
	}
	return 7
}
