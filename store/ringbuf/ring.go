// Package ringbuf provides a multi-generation record buffer backed by one
// anonymous memory mapping.
//
// A Ring stands in for a GPU-visible buffer: the uploader writes the current
// generation, then rotates so the consumer can keep reading the previous
// ones. Record types must be free of Go pointers, since the mapping lives
// outside the garbage-collected heap.
package ringbuf

import (
	"log/slog"
	"reflect"
	"slices"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/modelstore/store/upload"
)

// DefaultGenerations matches the uploader's default buffering factor.
const DefaultGenerations = 3

// Config controls a Ring.
type Config struct {
	// Name identifies the ring in logs.
	Name string

	// Generations is the number of rotating copies. Zero selects DefaultGenerations.
	Generations int

	// Persistent keeps each generation's contents across rotations.
	// When false, a generation is cleared as it becomes current.
	Persistent bool

	// MaxBytes caps the total mapping size. Zero means unlimited.
	MaxBytes int

	// Logger receives resize events. Nil discards.
	Logger *slog.Logger
}

// Stats reports ring metrics.
type Stats struct {
	Resizes int // Region re-creations
	Maps    int // Map calls
	Bytes   int // Current region size
}

// Ring is a Buffer of T split into generations.
//
// NOT thread-safe. It is driven by one uploader inside the storage's
// critical section.
type Ring[T any] struct {
	cfg      Config
	logger   *slog.Logger
	elemSize int

	region   []byte
	capacity int // Records per generation
	gen      int

	mapped bool
	bound  bool
	slot   uint32
	closed bool

	stats Stats
}

var _ upload.Buffer[uint64] = (*Ring[uint64])(nil)

// New creates an empty ring. Call Resize before mapping.
func New[T any](cfg Config) (*Ring[T], error) {
	typ := reflect.TypeFor[T]()
	if hasPointers(typ) {
		return nil, errors.Wrapf(ErrPointerType, "%s", typ)
	}
	if typ.Size() == 0 {
		return nil, errors.Newf("ringbuf: zero-size record type %s", typ)
	}
	if cfg.Generations <= 0 {
		cfg.Generations = DefaultGenerations
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ring[T]{
		cfg:      cfg,
		logger:   logger.With("ring", cfg.Name),
		elemSize: int(typ.Size()),
	}, nil
}

// hasPointers reports whether values of t contain anything the garbage
// collector must trace.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice,
		reflect.String, reflect.Chan, reflect.Func, reflect.Interface:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// Capacity returns the number of records per generation.
func (r *Ring[T]) Capacity() int { return r.capacity }

// Generations returns the number of rotating copies.
func (r *Ring[T]) Generations() int { return r.cfg.Generations }

// Persistent reports whether generations keep their contents.
func (r *Ring[T]) Persistent() bool { return r.cfg.Persistent }

// Resize replaces the region with room for n records per generation.
// Contents are not preserved. On failure the old region is kept.
func (r *Ring[T]) Resize(n int) error {
	switch {
	case r.closed:
		return ErrClosed
	case r.mapped:
		return errors.Wrap(ErrAlreadyMapped, "resize")
	case n < 0:
		return errors.Wrapf(ErrOutOfRange, "resize to %d records", n)
	}

	size := n * r.elemSize * r.cfg.Generations
	if r.cfg.MaxBytes > 0 && size > r.cfg.MaxBytes {
		return errors.Wrapf(ErrTooLarge, "%d records need %d bytes, limit %d", n, size, r.cfg.MaxBytes)
	}

	region, err := mapRegion(size)
	if err != nil {
		return err
	}
	if err := unmapRegion(r.region); err != nil {
		_ = unmapRegion(region)
		return err
	}

	r.region = region
	r.capacity = n
	r.gen = 0
	r.stats.Resizes++
	r.stats.Bytes = size
	r.logger.Debug("ring resized", "records", n, "bytes", size, "generations", r.cfg.Generations)
	return nil
}

// generation returns the records of generation g.
func (r *Ring[T]) generation(g int) []T {
	if r.capacity == 0 {
		return nil
	}
	all := unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(r.region))), r.capacity*r.cfg.Generations)
	return all[g*r.capacity : (g+1)*r.capacity : (g+1)*r.capacity]
}

// Map returns records [off, off+n) of the current generation.
func (r *Ring[T]) Map(off, n int) ([]T, error) {
	switch {
	case r.closed:
		return nil, ErrClosed
	case r.mapped:
		return nil, ErrAlreadyMapped
	case off < 0 || n < 0 || off+n > r.capacity:
		return nil, errors.Wrapf(ErrOutOfRange, "map [%d,%d), capacity %d", off, off+n, r.capacity)
	}
	r.mapped = true
	r.stats.Maps++
	return r.generation(r.gen)[off : off+n : off+n], nil
}

// Unmap closes the open mapping.
func (r *Ring[T]) Unmap() error {
	if !r.mapped {
		return ErrNotMapped
	}
	r.mapped = false
	return nil
}

// Bind exposes the ring at slot.
func (r *Ring[T]) Bind(slot uint32) {
	r.bound = true
	r.slot = slot
}

// Unbind hides the ring if it is bound at slot.
func (r *Ring[T]) Unbind(slot uint32) {
	if r.bound && r.slot == slot {
		r.bound = false
	}
}

// Bound returns the slot the ring is bound to.
func (r *Ring[T]) Bound() (uint32, bool) { return r.slot, r.bound }

// Advance rotates to the next generation.
func (r *Ring[T]) Advance() {
	r.gen = (r.gen + 1) % r.cfg.Generations
	if !r.cfg.Persistent {
		clear(r.generation(r.gen))
	}
}

// Generation returns the index of the generation the next Map writes.
func (r *Ring[T]) Generation() int { return r.gen }

// Contents returns a copy of generation g.
func (r *Ring[T]) Contents(g int) []T {
	if g < 0 || g >= r.cfg.Generations {
		return nil
	}
	return slices.Clone(r.generation(g))
}

// Stats returns ring metrics.
func (r *Ring[T]) Stats() Stats { return r.stats }

// Close releases the region.
func (r *Ring[T]) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.bound = false
	r.mapped = false
	err := unmapRegion(r.region)
	r.region = nil
	r.capacity = 0
	return err
}
