// Package dates normalizes the heterogeneous datetime strings found in
// article exports into local timestamps.
package dates

import "time"

// formats is the ordered list of layouts tried against a raw datetime
// string. First match wins. The order matters: more specific layouts
// (fractional seconds, offsets) come before bare dates.
var formats = []string{
	"2006-01-02T15:04:05.999999999Z07:00", // ISO-8601 with fractional seconds and offset
	"2006-01-02T15:04:05Z07:00",           // ISO-8601 with offset
	"2006-01-02T15:04:05.999999999",       // ISO-8601 with fractional seconds, no offset
	"2006-01-02T15:04:05",                 // ISO-8601, no offset
	"2006-01-02 15:04:05",                 // Space-separated date-time
	"2006-01-02",                          // Bare date
}

// Normalize parses raw against the ordered format list and converts the
// result to local time. It never fails: an empty or unparseable input
// yields the current instant.
func Normalize(raw string) time.Time {
	return NormalizeAt(raw, time.Now)
}

// NormalizeAt is Normalize with an injectable clock for the fallback,
// so callers can test the failure path deterministically.
func NormalizeAt(raw string, now func() time.Time) time.Time {
	if raw == "" {
		return now()
	}

	for _, layout := range formats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Local()
		}
	}

	return now()
}
