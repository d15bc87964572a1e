// Package calendar holds the weekday/trading-day arithmetic shared by the
// freshness coordinator and the historical read-through completeness
// heuristic. Upstream client code used to duplicate this logic inline per
// asset type; this package gives it one home.
package calendar

import "time"

const dateLayout = "2006-01-02"

// IsWeekday reports whether t falls on Monday through Friday.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsFriday reports whether t falls on a Friday.
func IsFriday(t time.Time) bool {
	return t.Weekday() == time.Friday
}

// LatestFriday returns the most recent Friday on or before t.
func LatestFriday(t time.Time) time.Time {
	daysSinceFriday := (int(t.Weekday()) - int(time.Friday) + 7) % 7
	return t.AddDate(0, 0, -daysSinceFriday)
}

// ParseDate parses a YYYY-MM-DD date string in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// FormatDate formats t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// EnumerateDates returns every calendar date in [start, end], inclusive,
// as YYYY-MM-DD strings ordered ascending.
func EnumerateDates(start, end time.Time) []string {
	if end.Before(start) {
		return nil
	}
	out := make([]string, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, FormatDate(d))
	}
	return out
}

// ExpectedTradingDays counts the dates in [start, end] expected to carry
// a record: every day when allDays is set (callers pass it for GOLD, since
// SJC quotes every day including weekends), weekdays only otherwise.
func ExpectedTradingDays(start, end time.Time, allDays bool) int {
	if end.Before(start) {
		return 0
	}
	if allDays {
		return int(end.Sub(start).Hours()/24) + 1
	}
	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsWeekday(d) {
			count++
		}
	}
	return count
}
