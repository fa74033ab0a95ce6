package alloc

import "github.com/cockroachdb/errors"

var (
	// ErrBadLength indicates a span length that is zero or negative.
	ErrBadLength = errors.New("alloc: span length must be positive")

	// ErrCapacity indicates that growing the slab would exceed the configured ceiling.
	ErrCapacity = errors.New("alloc: capacity ceiling exceeded")

	// ErrSentinel indicates an attempt to free the reserved offset 0.
	ErrSentinel = errors.New("alloc: offset 0 is reserved")

	// ErrOutOfRange indicates an offset at or beyond the high-water mark.
	ErrOutOfRange = errors.New("alloc: offset out of range")

	// ErrNotAllocated indicates a double free or a free of a never-allocated offset.
	ErrNotAllocated = errors.New("alloc: span not allocated")

	// ErrLengthMismatch indicates a free whose length differs from the allocation.
	ErrLengthMismatch = errors.New("alloc: span length mismatch")
)

// assertionf wraps sentinel with context and marks it as an invariant violation.
func assertionf(sentinel error, format string, args ...any) error {
	return errors.WithAssertionFailure(errors.Wrapf(sentinel, format, args...))
}
