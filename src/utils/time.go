package utils

import "time"

// NextMidnight returns the first midnight strictly after now in loc.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)

	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
