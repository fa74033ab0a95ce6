package dirty

import (
	"bytes"
	"iter"
)

// Buffering is the default number of rotating destination copies. A write
// stays dirty for this many upload cycles.
const Buffering uint8 = 3

// Range is a run of consecutive dirty record slots.
type Range struct {
	Off int // First slot
	Len int // Number of slots
}

// End returns the first slot past the range.
func (r Range) End() int { return r.Off + r.Len }

// Tracker holds one cycle counter per record slot.
//
// NOT thread-safe. Only one goroutine should use it at a time.
type Tracker struct {
	counters  []uint8 // Remaining upload cycles per slot
	pending   int     // Number of non-zero counters
	buffering uint8
}

// NewTracker creates a tracker for n slots, all dirty.
//
// A fresh destination holds no valid data, so every slot starts at the
// buffering factor. buffering == 0 selects Buffering.
func NewTracker(n int, buffering uint8) *Tracker {
	if buffering == 0 {
		buffering = Buffering
	}
	t := &Tracker{
		counters:  make([]uint8, n),
		buffering: buffering,
	}
	t.MarkAllDirty()
	return t
}

// Buffering returns the number of cycles a write stays dirty.
func (t *Tracker) Buffering() uint8 { return t.buffering }

// Len returns the number of tracked slots.
func (t *Tracker) Len() int { return len(t.counters) }

// Counter returns the remaining upload cycles for slot off.
func (t *Tracker) Counter(off int) uint8 { return t.counters[off] }

// Pending returns the number of dirty slots.
func (t *Tracker) Pending() int { return t.pending }

// NeedsUpload reports whether any slot is dirty.
func (t *Tracker) NeedsUpload() bool { return t.pending > 0 }

// MarkDirty marks slot off dirty for a full buffering window.
func (t *Tracker) MarkDirty(off int) {
	if t.counters[off] == 0 {
		t.pending++
	}
	t.counters[off] = t.buffering
}

// MarkRange marks n slots starting at off.
func (t *Tracker) MarkRange(off, n int) {
	for i := off; i < off+n; i++ {
		t.MarkDirty(i)
	}
}

// MarkAllDirty marks every slot dirty.
func (t *Tracker) MarkAllDirty() {
	for i := range t.counters {
		t.counters[i] = t.buffering
	}
	t.pending = len(t.counters)
}

// First returns the first dirty range of a pass.
func (t *Tracker) First() (Range, bool) { return t.scan(0) }

// Next returns the dirty range that starts strictly after prev.
func (t *Tracker) Next(prev Range) (Range, bool) { return t.scan(prev.End()) }

// scan finds the maximal dirty run starting at or after from.
func (t *Tracker) scan(from int) (Range, bool) {
	if t.pending == 0 || from >= len(t.counters) {
		return Range{}, false
	}
	if from < 0 {
		from = 0
	}

	start := -1
	for i := from; i < len(t.counters); i++ {
		if t.counters[i] != 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return Range{}, false
	}

	n := bytes.IndexByte(t.counters[start:], 0)
	if n < 0 {
		n = len(t.counters) - start
	}
	return Range{Off: start, Len: n}, true
}

// All iterates over the dirty ranges of one pass.
func (t *Tracker) All() iter.Seq[Range] {
	return func(yield func(Range) bool) {
		for r, ok := t.First(); ok; r, ok = t.Next(r) {
			if !yield(r) {
				return
			}
		}
	}
}

// Ranges returns the dirty ranges of one pass.
func (t *Tracker) Ranges() []Range {
	var out []Range
	for r := range t.All() {
		out = append(out, r)
	}
	return out
}

// Advance ends one upload cycle: every non-zero counter drops by one.
func (t *Tracker) Advance() {
	if t.pending == 0 {
		return
	}
	for i, c := range t.counters {
		if c == 0 {
			continue
		}
		c--
		t.counters[i] = c
		if c == 0 {
			t.pending--
		}
	}
}

// Resize follows the slab to n slots. New slots start dirty; shrinking
// drops the truncated counters.
func (t *Tracker) Resize(n int) {
	old := len(t.counters)
	switch {
	case n > old:
		if n <= cap(t.counters) {
			t.counters = t.counters[:n]
		} else {
			grown := make([]uint8, n, max(n, 2*cap(t.counters)))
			copy(grown, t.counters)
			t.counters = grown
		}
		for i := old; i < n; i++ {
			t.counters[i] = t.buffering
		}
		t.pending += n - old
	case n < old:
		for _, c := range t.counters[n:] {
			if c != 0 {
				t.pending--
			}
		}
		t.counters = t.counters[:n]
	}
}
