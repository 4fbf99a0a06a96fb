package github

import "time"

// WindowBounds computes the day boundaries for a lookback window of N days
// ago in the given reference timezone. All users share the same reference
// zone so "today" means the same thing for everyone, including the server.
func WindowBounds(now time.Time, daysAgo int, loc *time.Location) (since, until time.Time) {
	day := now.In(loc).AddDate(0, 0, -daysAgo)
	since = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	until = time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
	return since, until
}

// DateKey renders the calendar date of t in the reference timezone, used as
// the day-set and quota key component.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
