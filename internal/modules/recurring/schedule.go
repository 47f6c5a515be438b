package recurring

import "time"

// NextDue returns the next execution time for an order of frequency f whose
// schedule is anchored at from. Calendar arithmetic is done in the process's
// local zone, so a daily order keeps its wall-clock time across DST changes.
//
// Monthly keeps the day of month, clamped to the last day of a shorter
// target month (Jan 31 -> Feb 28/29). The result is always after from.
func NextDue(f Frequency, from time.Time) time.Time {
	local := from.In(time.Local)

	var next time.Time
	switch f {
	case Weekly:
		next = local.AddDate(0, 0, 7)
	case Biweekly:
		next = local.AddDate(0, 0, 14)
	case Monthly:
		next = addMonthClamped(local)
	default:
		// Daily, and anything Add would have rejected
		next = local.AddDate(0, 0, 1)
	}

	// A wall-clock time skipped by a DST jump normalises forward, never back,
	// but guard the strict-future guarantee anyway.
	if !next.After(from) {
		next = from.Add(24 * time.Hour).In(time.Local)
	}
	return next
}

func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	targetYear, targetMonth := year, month+1
	if targetMonth > time.December {
		targetMonth = time.January
		targetYear++
	}

	if last := daysIn(targetYear, targetMonth, t.Location()); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day, hour, min, sec, t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in month of year
func daysIn(year int, month time.Month, loc *time.Location) int {
	// Day 0 of the following month is the last day of this one
	return time.Date(year, month+1, 0, 12, 0, 0, 0, loc).Day()
}
