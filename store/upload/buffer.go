package upload

// Buffer is a consumer-visible array of records with rotating generations.
//
// Implementations are driven by a single Uploader inside the storage's
// critical section and need no locking of their own.
type Buffer[T any] interface {
	// Capacity returns the number of records per generation.
	Capacity() int

	// Resize re-creates the buffer with room for n records. Contents are not
	// preserved. On failure the previous buffer stays usable.
	Resize(n int) error

	// Map returns a writable view of records [off, off+n) of the current
	// generation. Only one mapping may be open at a time.
	Map(off, n int) ([]T, error)

	// Unmap closes the mapping returned by Map.
	Unmap() error

	// Bind exposes the buffer to the consumer at slot.
	Bind(slot uint32)

	// Unbind hides the buffer from the consumer at slot.
	Unbind(slot uint32)

	// Persistent reports whether each generation keeps its contents between
	// cycles. Non-persistent buffers get a full copy every cycle.
	Persistent() bool

	// Advance rotates to the next generation.
	Advance()
}
