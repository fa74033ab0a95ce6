package store

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfRange indicates an offset or span index outside the allocated range.
	ErrOutOfRange = errors.New("store: offset out of range")

	// ErrNotLive indicates access to a slot that is not inside a live span.
	ErrNotLive = errors.New("store: offset not allocated")

	// ErrSentinelWrite indicates a write to the reserved sentinel record.
	ErrSentinelWrite = errors.New("store: write to sentinel record")

	// ErrInvalidSpan indicates use of a released, moved-from or dummy span.
	ErrInvalidSpan = errors.New("store: invalid span")

	// ErrStaleSpan indicates use of a span acquired before the last Reset.
	ErrStaleSpan = errors.New("store: span predates reset")
)

func assertionf(sentinel error, format string, args ...any) error {
	return errors.WithAssertionFailure(errors.Wrapf(sentinel, format, args...))
}
