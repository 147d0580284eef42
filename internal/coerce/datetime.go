package coerce

import (
	"fmt"
	"time"
)

// writeLayout is the wire format required for setTagsValues writes to
// a datetime tag.
const writeLayout = "02.01.2006 15:04:05"

// EpochMillis converts an OPC UA DateTime value into Unix epoch
// milliseconds, the supervisor-facing projection of a datetime tag.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// ParseWriteDatetime parses the "DD.MM.YYYY HH:mm:ss" wire string a
// setTagsValues write sends for a datetime tag, interpreting it as UTC.
func ParseWriteDatetime(s string) (time.Time, error) {
	t, err := time.Parse(writeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid datetime %q", ErrInvalidDatetime, s)
	}
	return t.UTC(), nil
}

// FormatWriteDatetime is the inverse of ParseWriteDatetime, used by
// tests to exercise the round-trip property.
func FormatWriteDatetime(t time.Time) string {
	return t.UTC().Format(writeLayout)
}
