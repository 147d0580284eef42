package coerce

import "errors"

var (
	// ErrInvalidDatetime is returned when a write-side datetime string does
	// not match the DD.MM.YYYY HH:mm:ss wire layout.
	ErrInvalidDatetime = errors.New("coerce: invalid datetime")

	// ErrIndexOutOfRange names an arrayIndex outside the observed array.
	// No function in this package returns it: ByIndex yields nil for such
	// an index and ReplaceElement reports domain.ErrConfigError.
	ErrIndexOutOfRange = errors.New("coerce: array index out of range")
)
