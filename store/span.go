package store

// noCopy trips go vet's copylocks check when a Span is copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Span owns a run of records in a Storage.
//
// A Span is move-only. Transfer ownership with Move; the source is left
// invalid. An invalid span reports Invalid as its offset, which consumers
// resolve to the sentinel record.
type Span[T any] struct {
	_ noCopy

	s     *Storage[T]
	first Offset
	n     int
	zero  T
	epoch uint64
}

// AcquireSpan allocates n records initialised to zero. zero is also written
// back into the records when the span is released.
func AcquireSpan[T any](s *Storage[T], n int, zero T) (*Span[T], error) {
	sp := &Span[T]{s: s, n: n, zero: zero}
	err := s.Do(func(tx *Tx[T]) error {
		off, err := tx.Allocate(n, zero)
		if err != nil {
			return err
		}
		sp.first = off
		sp.epoch = tx.Epoch()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sp, nil
}

// Dummy returns a span that owns nothing. Its offset is Invalid.
func Dummy[T any]() *Span[T] { return &Span[T]{} }

// Valid reports whether the span owns records.
func (sp *Span[T]) Valid() bool { return sp != nil && sp.first != Invalid }

// Offset returns the first record, or Invalid.
func (sp *Span[T]) Offset() Offset {
	if !sp.Valid() {
		return Invalid
	}
	return sp.first
}

// Len returns the number of owned records.
func (sp *Span[T]) Len() int {
	if !sp.Valid() {
		return 0
	}
	return sp.n
}

// Get returns record i of the span.
func (sp *Span[T]) Get(i int) (T, error) {
	var v T
	err := sp.do(i, func(tx *Tx[T], off Offset) error {
		var err error
		v, err = tx.Get(off)
		return err
	})
	return v, err
}

// Set overwrites record i of the span.
func (sp *Span[T]) Set(i int, v T) error {
	return sp.do(i, func(tx *Tx[T], off Offset) error {
		return tx.Set(off, v)
	})
}

// Update mutates record i of the span in place.
func (sp *Span[T]) Update(i int, fn func(*T)) error {
	return sp.do(i, func(tx *Tx[T], off Offset) error {
		return tx.Update(off, fn)
	})
}

// Release frees the records, writing the span's zero pattern into them.
// Releasing an invalid span, or one that predates a Reset, is a no-op.
func (sp *Span[T]) Release() error {
	if !sp.Valid() {
		return nil
	}
	first, n := sp.first, sp.n
	sp.first, sp.n = Invalid, 0

	return sp.s.Do(func(tx *Tx[T]) error {
		if tx.Epoch() != sp.epoch {
			return nil
		}
		return tx.Free(first, n, &sp.zero)
	})
}

// Move transfers ownership to a new handle and invalidates sp.
func (sp *Span[T]) Move() *Span[T] {
	if !sp.Valid() {
		return Dummy[T]()
	}
	out := &Span[T]{s: sp.s, first: sp.first, n: sp.n, zero: sp.zero, epoch: sp.epoch}
	sp.first, sp.n = Invalid, 0
	return out
}

// do runs fn on record i inside the storage's critical section.
func (sp *Span[T]) do(i int, fn func(tx *Tx[T], off Offset) error) error {
	if !sp.Valid() {
		return assertionf(ErrInvalidSpan, "access record %d", i)
	}
	if i < 0 || i >= sp.n {
		return assertionf(ErrOutOfRange, "span index %d, len %d", i, sp.n)
	}
	off := sp.first + Offset(i)
	return sp.s.Do(func(tx *Tx[T]) error {
		if tx.Epoch() != sp.epoch {
			return assertionf(ErrStaleSpan, "span at %d, epoch %d, storage epoch %d", sp.first, sp.epoch, tx.Epoch())
		}
		return fn(tx, off)
	})
}
