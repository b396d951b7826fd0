package util

import (
	"strconv"
	"time"
)

// unix timestamps at or above this are taken as milliseconds.
const unixMillisThreshold = 100_000_000_000

// ParseTime tries RFC3339, RFC3339Nano, unix seconds and unix milliseconds.
// Returns (t, true) if any worked. Results are in UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts >= unixMillisThreshold {
			return time.UnixMilli(ts).UTC(), true
		}
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// CandleWindow returns the [from, to) range covering the last n bars of
// length bar that closed at or before end.
func CandleWindow(end time.Time, bar time.Duration, n int) (time.Time, time.Time) {
	if bar <= 0 {
		bar = time.Minute
	}
	to := end.Truncate(bar)
	from := to.Add(-time.Duration(n) * bar)
	return from, to
}
