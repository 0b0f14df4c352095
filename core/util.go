package core

import (
	"strings"
	"time"
)

// NowFunc is mockable in tests.
var NowFunc = time.Now

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Now returns the current time in UTC, truncated to the microsecond (the DB precision).
func Now() time.Time {
	return NowFunc().UTC().Truncate(time.Microsecond)
}

// TruncateDate returns the UTC midnight of t's calendar day.
// Every date column is stored this way so that equality lookups work on all engines.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current UTC date.
func Today() time.Time {
	return TruncateDate(NowFunc().UTC())
}
