package protocol

import "time"

// TimestampLayout is UTC ISO-8601 with millisecond precision, e.g. 2024-01-15T10:30:00.123Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses an offset-qualified ISO-8601 timestamp.
// Fractional seconds of any precision are accepted.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
