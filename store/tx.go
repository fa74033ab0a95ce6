package store

import (
	"github.com/joshuapare/modelstore/store/dirty"
)

// Tx is the locked view of a Storage handed to Do callbacks.
//
// Methods panic if the Tx is used after its callback returned.
type Tx[T any] struct {
	s    *Storage[T]
	open bool
}

func (tx *Tx[T]) storage() *Storage[T] {
	if !tx.open {
		panic("store: Tx used outside Do")
	}
	return tx.s
}

// Allocate reserves n records initialised to init and marks them dirty.
func (tx *Tx[T]) Allocate(n int, init T) (Offset, error) {
	s := tx.storage()
	off, err := s.alloc.Allocate(n)
	if err != nil {
		return Invalid, err
	}
	s.syncSize()

	recs := s.records[off : int(off)+n]
	for i := range recs {
		recs[i] = init
	}
	s.dirty.MarkRange(int(off), n)
	s.writes += n
	return off, nil
}

// Free releases [off, off+n). When zero is non-nil it is written into the
// freed records, which are then marked dirty so the consumer sees it.
func (tx *Tx[T]) Free(off Offset, n int, zero *T) error {
	s := tx.storage()
	if err := s.alloc.Free(off, n); err != nil {
		return err
	}
	if zero == nil {
		return nil
	}

	recs := s.records[off : int(off)+n]
	for i := range recs {
		recs[i] = *zero
	}
	s.dirty.MarkRange(int(off), n)
	s.writes += n
	return nil
}

// Get returns the record at off. Get(Invalid) returns the sentinel.
func (tx *Tx[T]) Get(off Offset) (T, error) {
	s := tx.storage()
	if off != Invalid {
		if err := s.checkLive("get", off); err != nil {
			var zero T
			return zero, err
		}
	}
	return s.records[off], nil
}

// Set overwrites the record at off and marks it dirty.
func (tx *Tx[T]) Set(off Offset, v T) error {
	s := tx.storage()
	if err := s.checkWrite(off); err != nil {
		return err
	}
	s.records[off] = v
	s.dirty.MarkDirty(int(off))
	s.writes++
	return nil
}

// Update calls fn with a pointer to the record at off and marks it dirty.
// The pointer must not be retained.
func (tx *Tx[T]) Update(off Offset, fn func(*T)) error {
	s := tx.storage()
	if err := s.checkWrite(off); err != nil {
		return err
	}
	fn(&s.records[off])
	s.dirty.MarkDirty(int(off))
	s.writes++
	return nil
}

// Size returns the high-water mark in records, including the sentinel.
func (tx *Tx[T]) Size() int { return len(tx.storage().records) }

// Records returns the record array up to the high-water mark. The slice
// aliases storage memory and is invalidated by the next allocation.
func (tx *Tx[T]) Records() []T { return tx.storage().records }

// Tracker returns the dirty tracker.
func (tx *Tx[T]) Tracker() *dirty.Tracker { return tx.storage().dirty }

// Dirty returns the upload side of the dirty tracker.
func (tx *Tx[T]) Dirty() dirty.Source { return tx.storage().dirty }

// Epoch returns the number of resets so far.
func (tx *Tx[T]) Epoch() uint64 { return tx.storage().epoch }

// Live reports whether off starts a live span, and its length.
func (tx *Tx[T]) Live(off Offset) (int, bool) { return tx.storage().alloc.Live(off) }

func (s *Storage[T]) checkWrite(off Offset) error {
	if off == Invalid {
		return assertionf(ErrSentinelWrite, "write to offset %d", off)
	}
	return s.checkLive("write", off)
}

func (s *Storage[T]) checkLive(op string, off Offset) error {
	if int(off) >= len(s.records) {
		return assertionf(ErrOutOfRange, "%s %d, size %d", op, off, len(s.records))
	}
	if !s.alloc.InUse(off) {
		return assertionf(ErrNotLive, "%s %d", op, off)
	}
	return nil
}
