package temporal

import (
	"time"
)

// Intersect returns the dates present in every series, normalised to date-only, sorted
// ascending and without duplicates. No series, or any empty series, yields an empty result.
func Intersect(series ...[]time.Time) []time.Time {
	result := []time.Time{}
	if len(series) == 0 {
		return result
	}

	common := make(map[time.Time]struct{}, len(series[0]))
	for _, d := range series[0] {
		common[Day(d)] = struct{}{}
	}
	for _, s := range series[1:] {
		present := make(map[time.Time]struct{}, len(s))
		for _, d := range s {
			present[Day(d)] = struct{}{}
		}
		for d := range common {
			if _, ok := present[d]; !ok {
				delete(common, d)
			}
		}
	}

	for d := range common {
		result = append(result, d)
	}
	return SortDates(result, true)
}

// IntersectWithin keeps the anchor dates that have a date no more than toleranceDays away in
// every other series. A zero tolerance is an exact intersection.
func IntersectWithin(toleranceDays int, anchor []time.Time, others ...[]time.Time) []time.Time {
	if toleranceDays <= 0 {
		return Intersect(append([][]time.Time{anchor}, others...)...)
	}

	seen := make(map[time.Time]struct{}, len(anchor))
	result := []time.Time{}
	for _, a := range anchor {
		d := Day(a)
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}

		matched := true
		for _, other := range others {
			if !hasWithin(d, other, toleranceDays) {
				matched = false
				break
			}
		}
		if matched {
			result = append(result, d)
		}
	}
	return SortDates(result, true)
}

func hasWithin(d time.Time, series []time.Time, tolerance int) bool {
	for _, o := range series {
		diff := DaysBetween(d, o)
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			return true
		}
	}
	return false
}

// Pair is a reference date T1 and the target date T2 that follows it.
type Pair struct {
	T1 time.Time
	T2 time.Time
}

// Compact returns both dates as YYYYMMDD.
func (p Pair) Compact() [2]string {
	return [2]string{FormatCompact(p.T1), FormatCompact(p.T2)}
}

func (p Pair) String() string {
	return Format(p.T1) + " -> " + Format(p.T2)
}

// PairReport summarises a pairing run.
type PairReport struct {
	Kept    int
	Dropped []time.Time
}

// PairDates pairs every date of a with the nearest strictly later date of b. Dates of a that
// have no later date in b are dropped and listed in the report. Output follows the input order
// of a; ties on distance keep the first candidate encountered.
func PairDates(a, b []time.Time) ([]Pair, PairReport) {
	pairs := []Pair{}
	report := PairReport{Dropped: []time.Time{}}

	for _, raw := range a {
		d1 := Day(raw)
		var (
			best     time.Time
			bestDays int
			found    bool
		)
		for _, candidate := range b {
			d2 := Day(candidate)
			if !d2.After(d1) {
				continue
			}
			days := DaysBetween(d1, d2)
			if !found || days < bestDays {
				best, bestDays, found = d2, days, true
			}
		}
		if !found {
			report.Dropped = append(report.Dropped, d1)
			continue
		}
		pairs = append(pairs, Pair{T1: d1, T2: best})
	}

	report.Kept = len(pairs)
	return pairs, report
}
