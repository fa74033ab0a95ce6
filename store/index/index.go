package index

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/modelstore/store"
)

// estimatedBytesPerEntry approximates one entry in both maps: key, offset
// and Go's per-bucket overhead.
const estimatedBytesPerEntry = 64

// ReadOnly is the query side of an Index.
type ReadOnly[K comparable] interface {
	// Lookup returns the offset of id without creating it.
	// The zero key always reports store.Invalid.
	Lookup(id K) (store.Offset, bool)

	// Len returns the number of indexed identities.
	Len() int

	// Stats returns index statistics.
	Stats() Stats
}

// Stats reports index metrics.
type Stats struct {
	Entries     int // Indexed identities
	Creates     int // Lazily created records
	Removes     int // Removed identities
	Hits        int // Lookups that found an existing entry
	Resets      int // Storage resets observed
	BytesApprox int // Approximate map memory (best effort)
}

// Index lazily assigns one record per identity.
type Index[K comparable, T any] struct {
	s     *store.Storage[T]
	init  T
	byID  map[K]store.Offset
	byOff map[store.Offset]K
	stats Stats
}

var _ ReadOnly[*int] = (*Index[*int, int])(nil)

// New creates an index over s. New records are initialised to init.
// capHint presizes the maps; values <= 0 select a small default.
func New[K comparable, T any](s *store.Storage[T], init T, capHint int) *Index[K, T] {
	if capHint <= 0 {
		capHint = 64
	}
	ix := &Index[K, T]{
		s:     s,
		init:  init,
		byID:  make(map[K]store.Offset, capHint),
		byOff: make(map[store.Offset]K, capHint),
	}
	s.OnReset(ix.clear)
	return ix
}

// GetOrCreate returns the offset of id, allocating a record on first use.
func (ix *Index[K, T]) GetOrCreate(id K) (store.Offset, error) {
	var off store.Offset
	err := ix.s.Do(func(tx *store.Tx[T]) error {
		var err error
		off, err = ix.getOrCreate(tx, id)
		return err
	})
	return off, err
}

// Lookup returns the offset of id without creating it.
func (ix *Index[K, T]) Lookup(id K) (store.Offset, bool) {
	if isZero(id) {
		return store.Invalid, true
	}
	var (
		off store.Offset
		ok  bool
	)
	_ = ix.s.Do(func(*store.Tx[T]) error {
		off, ok = ix.byID[id]
		return nil
	})
	return off, ok
}

// Identity returns the identity that owns off.
func (ix *Index[K, T]) Identity(off store.Offset) (K, bool) {
	var (
		id K
		ok bool
	)
	_ = ix.s.Do(func(*store.Tx[T]) error {
		id, ok = ix.byOff[off]
		return nil
	})
	return id, ok
}

// Get returns the record of id, creating it if needed.
// The zero key returns the sentinel record.
func (ix *Index[K, T]) Get(id K) (T, error) {
	var v T
	err := ix.s.Do(func(tx *store.Tx[T]) error {
		off, err := ix.getOrCreate(tx, id)
		if err != nil {
			return err
		}
		v, err = tx.Get(off)
		return err
	})
	return v, err
}

// Set overwrites the record of id, creating it if needed.
func (ix *Index[K, T]) Set(id K, v T) error {
	return ix.s.Do(func(tx *store.Tx[T]) error {
		off, err := ix.getOrCreate(tx, id)
		if err != nil {
			return err
		}
		return tx.Set(off, v)
	})
}

// Update mutates the record of id in place, creating it if needed.
func (ix *Index[K, T]) Update(id K, fn func(*T)) error {
	return ix.s.Do(func(tx *store.Tx[T]) error {
		off, err := ix.getOrCreate(tx, id)
		if err != nil {
			return err
		}
		return tx.Update(off, fn)
	})
}

// Remove frees the record of id. Removing the zero key is a no-op.
func (ix *Index[K, T]) Remove(id K) error {
	if isZero(id) {
		return nil
	}
	return ix.s.Do(func(tx *store.Tx[T]) error {
		removed, err := ix.remove(tx, id)
		if err == nil && !removed {
			err = errors.WithAssertionFailure(errors.Wrapf(ErrUnknownIdentity, "remove %v", id))
		}
		return err
	})
}

// TryRemove frees the record of id if it has one.
func (ix *Index[K, T]) TryRemove(id K) (bool, error) {
	if isZero(id) {
		return false, nil
	}
	var removed bool
	err := ix.s.Do(func(tx *store.Tx[T]) error {
		var err error
		removed, err = ix.remove(tx, id)
		return err
	})
	return removed, err
}

func (ix *Index[K, T]) remove(tx *store.Tx[T], id K) (bool, error) {
	off, ok := ix.byID[id]
	if !ok {
		return false, nil
	}
	if err := tx.Free(off, 1, nil); err != nil {
		return false, errors.Wrapf(err, "remove %v at %d", id, off)
	}
	delete(ix.byID, id)
	delete(ix.byOff, off)
	ix.stats.Removes++
	return true, nil
}

// Len returns the number of indexed identities.
func (ix *Index[K, T]) Len() int {
	var n int
	_ = ix.s.Do(func(*store.Tx[T]) error {
		n = len(ix.byID)
		return nil
	})
	return n
}

// Stats returns index statistics.
func (ix *Index[K, T]) Stats() Stats {
	var st Stats
	_ = ix.s.Do(func(*store.Tx[T]) error {
		st = ix.stats
		st.Entries = len(ix.byID)
		st.BytesApprox = st.Entries * estimatedBytesPerEntry
		return nil
	})
	return st
}

func (ix *Index[K, T]) getOrCreate(tx *store.Tx[T], id K) (store.Offset, error) {
	if isZero(id) {
		return store.Invalid, nil
	}
	if off, ok := ix.byID[id]; ok {
		ix.stats.Hits++
		return off, nil
	}

	off, err := tx.Allocate(1, ix.init)
	if err != nil {
		return store.Invalid, errors.Wrapf(err, "create entry for %v", id)
	}
	ix.byID[id] = off
	ix.byOff[off] = id
	ix.stats.Creates++
	return off, nil
}

// clear runs inside Storage.Reset with the storage locked.
func (ix *Index[K, T]) clear() {
	clear(ix.byID)
	clear(ix.byOff)
	ix.stats.Resets++
}

// isZero reports whether id is the zero key. Typed nil pointers held in an
// interface key count as zero.
func isZero[K comparable](id K) bool {
	var zero K
	return id == zero || store.IsNil(id)
}
