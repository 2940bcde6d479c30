package wire

import (
	"strconv"
	"strings"
	"time"
)

// Values above this are epoch milliseconds, below it epoch seconds. 1e12 ms is
// September 2001; 1e12 s is far beyond any plausible date.
const msThreshold = 1_000_000_000_000

var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
}

// ParseTimestamp accepts the timestamp shapes the backend emits: epoch seconds
// or milliseconds (as a number or numeric string), RFC 3339, or a naive
// "2006-01-02 15:04:05" wall-clock time interpreted in loc. The second return
// is false for empty or unrecognized input.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, false
		}
		if n >= msThreshold {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
		// Fractional epoch seconds, e.g. 1700000000.25
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), true
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t the way outbound frames carry it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
