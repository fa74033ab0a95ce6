package store

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/modelstore/store/alloc"
)

type rec struct {
	A, B int32
}

var sentinelRec = rec{A: -1, B: -1}

func newStorage(t *testing.T, capacity int) *Storage[rec] {
	t.Helper()
	return New(Config{Name: "test", Alloc: alloc.Config{InitialCapacity: capacity}}, sentinelRec)
}

// settle runs enough upload cycles to clear every dirty counter.
func settle(t *testing.T, s *Storage[rec]) {
	t.Helper()
	require.NoError(t, s.Do(func(tx *Tx[rec]) error {
		for range tx.Tracker().Buffering() {
			tx.Tracker().Advance()
		}
		return nil
	}))
	require.False(t, s.NeedsUpload())
}

// raw reads a record straight from the slab, bypassing liveness checks.
func raw(t *testing.T, s *Storage[rec], off Offset) rec {
	t.Helper()
	var v rec
	require.NoError(t, s.Do(func(tx *Tx[rec]) error {
		v = tx.Records()[off]
		return nil
	}))
	return v
}

func TestNew_SentinelAtZero(t *testing.T) {
	s := newStorage(t, 8)

	require.Equal(t, 1, s.Size())
	got, err := s.Get(Invalid)
	require.NoError(t, err)
	require.Equal(t, sentinelRec, got)
	require.True(t, s.NeedsUpload(), "fresh storage owes the sentinel to the consumer")
}

func TestSet_SentinelRejected(t *testing.T) {
	s := newStorage(t, 8)

	err := s.Set(Invalid, rec{A: 1})
	require.ErrorIs(t, err, ErrSentinelWrite)
	require.True(t, errors.HasAssertionFailure(err))

	err = s.Update(Invalid, func(r *rec) { r.A = 1 })
	require.ErrorIs(t, err, ErrSentinelWrite)

	got, _ := s.Get(Invalid)
	require.Equal(t, sentinelRec, got)
}

func TestGetSet_OutOfRange(t *testing.T) {
	s := newStorage(t, 8)

	_, err := s.Get(5)
	require.ErrorIs(t, err, ErrOutOfRange)
	require.True(t, errors.HasAssertionFailure(err))

	require.ErrorIs(t, s.Set(5, rec{}), ErrOutOfRange)
}

func TestAllocate_InitialisesAndMarksDirty(t *testing.T) {
	s := newStorage(t, 8)
	settle(t, s)

	off, err := s.Allocate(3, rec{A: 7})
	require.NoError(t, err)
	require.Equal(t, Offset(1), off)

	for i := range 3 {
		got, err := s.Get(off + Offset(i))
		require.NoError(t, err)
		require.Equal(t, rec{A: 7}, got)
	}

	require.NoError(t, s.Do(func(tx *Tx[rec]) error {
		require.Equal(t, 3, tx.Tracker().Pending())
		r, ok := tx.Tracker().First()
		require.True(t, ok)
		require.Equal(t, 1, r.Off)
		require.Equal(t, 3, r.Len)
		return nil
	}))
}

func TestFree_WritesZeroPattern(t *testing.T) {
	s := newStorage(t, 8)
	off, err := s.Allocate(2, rec{A: 5})
	require.NoError(t, err)
	settle(t, s)

	zero := rec{A: 0, B: 99}
	require.NoError(t, s.Free(off, 2, &zero))

	require.Equal(t, zero, raw(t, s, off+1))
	require.True(t, s.NeedsUpload(), "zeroed records are owed to the consumer")

	// Freeing without a pattern leaves data and dirty state alone.
	off, err = s.Allocate(1, rec{A: 3})
	require.NoError(t, err)
	settle(t, s)
	require.NoError(t, s.Free(off, 1, nil))
	require.False(t, s.NeedsUpload())
}

func TestFree_Errors(t *testing.T) {
	s := newStorage(t, 8)
	off, err := s.Allocate(2, rec{})
	require.NoError(t, err)

	err = s.Free(off, 3, nil)
	require.ErrorIs(t, err, alloc.ErrLengthMismatch)
	require.True(t, errors.HasAssertionFailure(err))

	require.NoError(t, s.Free(off, 2, nil))
	require.ErrorIs(t, s.Free(off, 2, nil), alloc.ErrNotAllocated)
}

func TestAccess_FreedSlotsRejected(t *testing.T) {
	s := newStorage(t, 8)
	first, err := s.Allocate(2, rec{A: 1})
	require.NoError(t, err)
	kept, err := s.Allocate(1, rec{A: 2})
	require.NoError(t, err)
	require.NoError(t, s.Free(first, 2, nil))
	settle(t, s)

	for _, off := range []Offset{first, first + 1} {
		err := s.Set(off, rec{A: 9})
		require.ErrorIs(t, err, ErrNotLive, "set %d", off)
		require.True(t, errors.HasAssertionFailure(err))

		require.ErrorIs(t, s.Update(off, func(r *rec) { r.A = 9 }), ErrNotLive, "update %d", off)

		_, err = s.Get(off)
		require.ErrorIs(t, err, ErrNotLive, "get %d", off)
	}
	require.False(t, s.NeedsUpload(), "rejected writes mark nothing dirty")
	require.Equal(t, rec{A: 1}, raw(t, s, first+1), "freed record untouched")

	require.NoError(t, s.Set(kept, rec{A: 3}), "neighbouring live span still writable")

	// Reusing the hole makes its head live again, but only its head.
	again, err := s.Allocate(1, rec{A: 4})
	require.NoError(t, err)
	require.Equal(t, first, again)
	require.NoError(t, s.Set(again, rec{A: 5}))
	require.ErrorIs(t, s.Set(first+1, rec{}), ErrNotLive)
}

// TestGrow_OffsetsStable checks that growth copies records forward and never
// moves a live span.
func TestGrow_OffsetsStable(t *testing.T) {
	s := newStorage(t, 4)

	type held struct {
		off Offset
		v   rec
	}
	var all []held
	for i := range 50 {
		v := rec{A: int32(i), B: int32(i * 2)}
		off, err := s.Allocate(1+i%3, v)
		require.NoError(t, err)
		all = append(all, held{off, v})
	}

	st := s.Stats()
	require.Positive(t, st.Grows)
	require.Equal(t, st.Alloc.Size, st.Records)
	require.Equal(t, st.Alloc.Capacity, st.Capacity)

	for _, h := range all {
		got, err := s.Get(h.off)
		require.NoError(t, err)
		require.Equal(t, h.v, got, "offset %d", h.off)
	}

	require.NoError(t, s.Do(func(tx *Tx[rec]) error {
		require.Equal(t, tx.Size(), tx.Tracker().Len(), "tracker follows the slab")
		require.Len(t, tx.Records(), tx.Size())
		return nil
	}))
}

func TestUpdate_InPlace(t *testing.T) {
	s := newStorage(t, 8)
	off, err := s.Allocate(1, rec{A: 1})
	require.NoError(t, err)

	require.NoError(t, s.Update(off, func(r *rec) { r.B = 42 }))
	got, _ := s.Get(off)
	require.Equal(t, rec{A: 1, B: 42}, got)
	require.Equal(t, 2, s.Stats().Writes)
}

func TestReset(t *testing.T) {
	s := newStorage(t, 4)
	for range 10 {
		_, err := s.Allocate(2, rec{A: 1})
		require.NoError(t, err)
	}
	settle(t, s)

	hooks := 0
	s.OnReset(func() { hooks++ })

	s.Reset()

	require.Equal(t, 1, hooks)
	require.Equal(t, 1, s.Size())
	require.True(t, s.NeedsUpload())
	got, _ := s.Get(Invalid)
	require.Equal(t, sentinelRec, got)

	st := s.Stats()
	require.Equal(t, 4, st.Capacity, "reset returns to the initial capacity")
	require.Zero(t, st.Alloc.LiveSpans)

	off, err := s.Allocate(1, rec{A: 9})
	require.NoError(t, err)
	require.Equal(t, Offset(1), off)
}

func TestTx_UseOutsideDoPanics(t *testing.T) {
	s := newStorage(t, 4)

	var leaked *Tx[rec]
	require.NoError(t, s.Do(func(tx *Tx[rec]) error {
		leaked = tx
		return nil
	}))

	require.Panics(t, func() { _ = leaked.Size() })
}

func TestDo_PropagatesError(t *testing.T) {
	s := newStorage(t, 4)
	boom := errors.New("boom")
	require.ErrorIs(t, s.Do(func(*Tx[rec]) error { return boom }), boom)
}

// TestStorage_Concurrent runs producers against a consumer that drains the
// tracker. Run with -race.
func TestStorage_Concurrent(t *testing.T) {
	s := newStorage(t, 16)

	const producers = 4
	const rounds = 200

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			zero := rec{}
			for i := range rounds {
				off, err := s.Allocate(1+i%4, rec{A: int32(p)})
				if err != nil {
					t.Error(err)
					return
				}
				if err := s.Set(off, rec{A: int32(p), B: int32(i)}); err != nil {
					t.Error(err)
					return
				}
				got, err := s.Get(off)
				if err != nil || got.A != int32(p) {
					t.Errorf("producer %d: got %+v, %v", p, got, err)
					return
				}
				if err := s.Free(off, 1+i%4, &zero); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	done := make(chan struct{})
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			select {
			case <-done:
				return
			default:
			}
			_ = s.Do(func(tx *Tx[rec]) error {
				recs := tx.Records()
				for r := range tx.Tracker().All() {
					_ = recs[r.Off:r.End()]
				}
				tx.Tracker().Advance()
				return nil
			})
		}
	}()

	wg.Wait()
	close(done)
	<-consumerDone

	st := s.Stats()
	require.Zero(t, st.Alloc.LiveSpans)
	require.Equal(t, producers*rounds, st.Alloc.FreeCalls)
}

func BenchmarkStorage_SetGet(b *testing.B) {
	s := New(Config{Alloc: alloc.DefaultConfig}, rec{})
	off, err := s.Allocate(1, rec{})
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := range b.N {
		if err := s.Set(off, rec{A: int32(i)}); err != nil {
			b.Fatal(err)
		}
		if _, err := s.Get(off); err != nil {
			b.Fatal(err)
		}
	}
}
