package alloc

import (
	"cmp"
	"math/bits"
	"slices"

	"github.com/cockroachdb/errors"
)

// SpanAllocator tracks which slots of a slab are live, which are holes, and
// where the high-water mark sits.
//
// Every slot in [1, Size()) is either inside exactly one live span or inside
// exactly one hole. Slot 0 is the sentinel.
type SpanAllocator struct {
	cfg Config

	size     int // High-water mark, including the sentinel slot
	capacity int // Reserved slots, always >= size

	free freeList

	// live maps span start -> length, for double-free and mismatch detection
	live        map[Offset]int
	liveRecords int

	// used has one bit per slot, set while the slot is inside a live span
	used []uint64

	stats Stats
}

// Stats holds allocator counters.
type Stats struct {
	AllocCalls    int     // Total Allocate() calls
	FreeCalls     int     // Total Free() calls
	Reused        int     // Allocations served from a hole
	Splits        int     // Holes split by a smaller allocation
	TailAbsorbs   int     // Tail holes absorbed into a high-water allocation
	Coalesces     int     // Hole merges performed by Free()
	Grows         int     // Capacity increases
	Resets        int     // Reset() calls
	Size          int     // Current high-water mark
	Capacity      int     // Current capacity
	LiveSpans     int     // Live allocations
	LiveRecords   int     // Slots inside live allocations
	FreeSpans     int     // Holes
	FreeRecords   int     // Slots inside holes
	LargestHole   int     // Length of the largest hole
	Fragmentation float64 // FreeRecords / (Size - 1), 0 when empty
}

// New creates an allocator with the sentinel slot already occupied.
func New(cfg Config) *SpanAllocator {
	cfg = cfg.normalized()
	a := &SpanAllocator{
		cfg:  cfg,
		free: newFreeList(),
		live: make(map[Offset]int, 1024),
	}
	a.reset()
	return a
}

// Config returns the normalized configuration.
func (a *SpanAllocator) Config() Config { return a.cfg }

// Size returns the high-water mark: one past the highest slot ever handed out.
func (a *SpanAllocator) Size() int { return a.size }

// Capacity returns the number of reserved slots.
func (a *SpanAllocator) Capacity() int { return a.capacity }

// Allocate reserves n contiguous slots and returns the first one.
func (a *SpanAllocator) Allocate(n int) (Offset, error) {
	a.stats.AllocCalls++

	if n <= 0 {
		return Invalid, assertionf(ErrBadLength, "allocate %d slots", n)
	}

	// Best-fit from holes
	if h, ok := a.free.bestFit(n); ok {
		a.free.remove(h.Off, h.Len)
		if h.Len > n {
			a.free.add(h.Off+Offset(n), h.Len-n)
			a.stats.Splits++
		}
		a.stats.Reused++
		a.markLive(h.Off, n)
		return h.Off, nil
	}

	// Extend the high-water mark, absorbing a hole that touches it
	start := Offset(a.size)
	tail, absorbed := a.free.endingAt(start)
	if absorbed {
		a.free.remove(tail.Off, tail.Len)
		start = tail.Off
	}

	newSize := int(start) + n
	if err := a.ensureCapacity(newSize); err != nil {
		if absorbed {
			a.free.add(tail.Off, tail.Len)
		}
		return Invalid, err
	}
	if absorbed {
		a.stats.TailAbsorbs++
	}

	a.size = newSize
	a.markLive(start, n)
	return start, nil
}

// Free returns the span [off, off+n) to the free list.
//
// off must be the start of a live span allocated with exactly n slots.
func (a *SpanAllocator) Free(off Offset, n int) error {
	a.stats.FreeCalls++

	switch {
	case n <= 0:
		return assertionf(ErrBadLength, "free %d slots at %d", n, off)
	case off == Invalid:
		return assertionf(ErrSentinel, "free %d slots", n)
	case int(off) >= a.size:
		return assertionf(ErrOutOfRange, "free offset %d, size %d", off, a.size)
	}

	ln, ok := a.live[off]
	if !ok {
		return assertionf(ErrNotAllocated, "free offset %d", off)
	}
	if ln != n {
		return assertionf(ErrLengthMismatch, "free offset %d: allocated %d, freeing %d", off, ln, n)
	}

	delete(a.live, off)
	a.liveRecords -= n
	a.setUsed(off, n, false)

	_, merges := a.free.insert(off, n)
	a.stats.Coalesces += merges
	return nil
}

// Live reports the length of the live span starting at off.
func (a *SpanAllocator) Live(off Offset) (int, bool) {
	n, ok := a.live[off]
	return n, ok
}

// Contains reports whether slot off lies inside [0, Size()).
func (a *SpanAllocator) Contains(off Offset) bool {
	return int(off) < a.size
}

// InUse reports whether slot off lies inside a live span. The sentinel slot
// and slots inside holes are not in use.
func (a *SpanAllocator) InUse(off Offset) bool {
	w := int(off) / 64
	return w < len(a.used) && a.used[w]&(1<<(off%64)) != 0
}

// Reset drops every allocation and hole and restores the initial capacity.
func (a *SpanAllocator) Reset() {
	a.stats.Resets++
	a.reset()
}

func (a *SpanAllocator) reset() {
	clear(a.live)
	a.liveRecords = 0
	clear(a.used)
	a.free.reset()
	a.size = 1 // sentinel
	a.capacity = a.cfg.InitialCapacity
}

// Holes returns the free holes sorted by offset.
func (a *SpanAllocator) Holes() []Extent { return a.free.holes() }

// Spans returns the live spans sorted by offset.
func (a *SpanAllocator) Spans() []Extent {
	out := make([]Extent, 0, len(a.live))
	for off, n := range a.live {
		out = append(out, Extent{Off: off, Len: n})
	}
	slices.SortFunc(out, func(x, y Extent) int { return cmp.Compare(x.Off, y.Off) })
	return out
}

// Stats returns a snapshot of allocator counters.
func (a *SpanAllocator) Stats() Stats {
	s := a.stats
	s.Size = a.size
	s.Capacity = a.capacity
	s.LiveSpans = len(a.live)
	s.LiveRecords = a.liveRecords
	s.FreeSpans = a.free.len()
	s.FreeRecords = a.free.records
	s.LargestHole = a.free.largest()
	if a.size > 1 {
		s.Fragmentation = float64(a.free.records) / float64(a.size-1)
	}
	return s
}

// Validate checks that live spans and holes tile [1, Size()) exactly.
func (a *SpanAllocator) Validate() error {
	type tagged struct {
		Extent
		hole bool
	}
	all := make([]tagged, 0, len(a.live)+a.free.len())
	for _, e := range a.Spans() {
		all = append(all, tagged{Extent: e})
	}
	for _, e := range a.free.holes() {
		all = append(all, tagged{Extent: e, hole: true})
	}
	slices.SortFunc(all, func(x, y tagged) int { return cmp.Compare(x.Off, y.Off) })

	next := Offset(1)
	prevHole := false
	for i, e := range all {
		if e.Off != next {
			return errors.AssertionFailedf("extent %d at %d (len %d): expected offset %d", i, e.Off, e.Len, next)
		}
		if e.Len <= 0 {
			return errors.AssertionFailedf("extent %d at %d has length %d", i, e.Off, e.Len)
		}
		if e.hole && prevHole {
			return errors.AssertionFailedf("uncoalesced holes meet at %d", e.Off)
		}
		prevHole = e.hole
		next = e.End()
	}
	if int(next) != a.size {
		return errors.AssertionFailedf("extents end at %d, size is %d", next, a.size)
	}
	if a.size > a.capacity {
		return errors.AssertionFailedf("size %d exceeds capacity %d", a.size, a.capacity)
	}
	used := 0
	for _, w := range a.used {
		used += bits.OnesCount64(w)
	}
	if used != a.liveRecords {
		return errors.AssertionFailedf("%d slots marked in use, %d live records", used, a.liveRecords)
	}
	return nil
}

func (a *SpanAllocator) markLive(off Offset, n int) {
	a.live[off] = n
	a.liveRecords += n
	a.setUsed(off, n, true)
}

func (a *SpanAllocator) setUsed(off Offset, n int, on bool) {
	end := int(off) + n
	if need := (end + 63) / 64; need > len(a.used) {
		a.used = append(a.used, make([]uint64, need-len(a.used))...)
	}
	for i := int(off); i < end; i++ {
		if on {
			a.used[i/64] |= 1 << (i % 64)
		} else {
			a.used[i/64] &^= 1 << (i % 64)
		}
	}
}

// ensureCapacity raises capacity until it holds need slots.
func (a *SpanAllocator) ensureCapacity(need int) error {
	if need <= a.capacity {
		return nil
	}
	if need > maxRecords {
		return errors.Wrapf(ErrCapacity, "need %d slots, offset limit %d", need, maxRecords)
	}

	newCap := a.capacity
	for newCap < need {
		if newCap > maxRecords/2 {
			newCap = maxRecords
			break
		}
		if a.cfg.GrowIncrement > 0 {
			newCap += a.cfg.GrowIncrement
		} else {
			newCap *= 2
		}
	}
	newCap = min(newCap, maxRecords)

	if limit := a.cfg.MaxCapacity; limit > 0 && newCap > limit {
		if need > limit {
			return errors.Wrapf(ErrCapacity, "need %d slots, ceiling %d", need, limit)
		}
		newCap = limit
	}

	a.capacity = newCap
	a.stats.Grows++
	return nil
}
