// Package temporal matches acquisition dates across satellite series: common-date
// intersection and nearest-future (t1, t2) pairing.
package temporal

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// CompactLayout is the YYYYMMDD form used in file names and pair lists.
const CompactLayout = "20060102"

var ErrInvalidDate = errors.New("invalid date")

// ParseDate accepts YYYY-MM-DD, YYYYMMDD and either of them followed by a time-of-day
// ("2020-01-01T10:30:00Z", "2020-01-01 10:30:00"). The time-of-day is discarded.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	for _, layout := range []string{time.DateOnly, CompactLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// NormalizeAll parses every string with ParseDate.
func NormalizeAll(values []string) ([]time.Time, error) {
	dates := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := ParseDate(v)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// Day drops the time-of-day of t, keeping its calendar date, as UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(Day(b).Sub(Day(a)).Hours() / 24))
}

func Format(t time.Time) string {
	return t.Format(time.DateOnly)
}

func FormatCompact(t time.Time) string {
	return t.Format(CompactLayout)
}

func SortDates(dates []time.Time, asc bool) []time.Time {
	sort.Slice(dates, func(i, j int) bool {
		if asc {
			return dates[i].Before(dates[j])
		}
		return dates[i].After(dates[j])
	})
	return dates
}

func GetSortedKeys[T any](m map[time.Time]T, asc bool) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	return SortDates(keys, asc)
}
