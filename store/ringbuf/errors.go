package ringbuf

import "github.com/cockroachdb/errors"

var (
	// ErrTooLarge indicates a resize beyond Config.MaxBytes.
	ErrTooLarge = errors.New("ringbuf: buffer too large")

	// ErrAlreadyMapped indicates a second Map or a Resize while a mapping is open.
	ErrAlreadyMapped = errors.New("ringbuf: already mapped")

	// ErrNotMapped indicates Unmap without a matching Map.
	ErrNotMapped = errors.New("ringbuf: not mapped")

	// ErrOutOfRange indicates a mapping outside the buffer.
	ErrOutOfRange = errors.New("ringbuf: range out of bounds")

	// ErrPointerType indicates a record type that holds Go pointers.
	ErrPointerType = errors.New("ringbuf: record type contains pointers")

	// ErrClosed indicates use after Close.
	ErrClosed = errors.New("ringbuf: closed")
)
