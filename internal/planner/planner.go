// Package planner implements a pure, deterministic range planner: turning
// a requested [start, end] window and a set of already cached dates into
// the minimum set of contiguous gap ranges to fetch.
package planner

import (
	"sort"
	"time"

	"github.com/Kyon9x/vn-market-service/internal/calendar"
)

// Gap is an inclusive contiguous missing-date range.
type Gap struct {
	Start string
	End   string
}

// Plan computes the gap list for [start, end] given the set of dates
// already cached. Dates in cachedDates outside [start,end] are ignored.
func Plan(start, end time.Time, cachedDates map[string]struct{}) []Gap {
	all := calendar.EnumerateDates(start, end)
	if len(all) == 0 {
		return nil
	}

	missing := make([]string, 0, len(all))
	for _, d := range all {
		if _, ok := cachedDates[d]; !ok {
			missing = append(missing, d)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)

	gaps := make([]Gap, 0)
	gapStart := missing[0]
	prev, _ := calendar.ParseDate(missing[0])

	for i := 1; i < len(missing); i++ {
		cur, _ := calendar.ParseDate(missing[i])
		if cur.Sub(prev).Hours() == 24 {
			prev = cur
			continue
		}
		gaps = append(gaps, Gap{Start: gapStart, End: calendar.FormatDate(prev)})
		gapStart = missing[i]
		prev = cur
	}
	gaps = append(gaps, Gap{Start: gapStart, End: calendar.FormatDate(prev)})
	return gaps
}

// fullRangeThreshold is the missing-day fraction above which fetching the
// full requested range in one call beats fetching each gap separately.
const fullRangeThreshold = 0.8

// ShouldFetchFullRange implements the full-vs-gap heuristic: true when
// missing-day count exceeds 80% of the requested window.
func ShouldFetchFullRange(gaps []Gap, requestedDayCount int) bool {
	if requestedDayCount <= 0 {
		return false
	}
	missingDays := 0
	for _, g := range gaps {
		s, errS := calendar.ParseDate(g.Start)
		e, errE := calendar.ParseDate(g.End)
		if errS != nil || errE != nil {
			continue
		}
		missingDays += int(e.Sub(s).Hours()/24) + 1
	}
	return float64(missingDays) > fullRangeThreshold*float64(requestedDayCount)
}
