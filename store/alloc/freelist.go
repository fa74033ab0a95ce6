package alloc

import (
	"cmp"
	"slices"
)

// freeList indexes holes three ways:
//   - bySize keeps holes sorted by (length, offset) for best-fit binary search
//   - byStart maps hole start -> length (forward coalesce lookup)
//   - byEnd maps hole end (exclusive) -> start (backward coalesce lookup)
type freeList struct {
	bySize  []Extent
	byStart map[Offset]int
	byEnd   map[Offset]Offset
	records int // Total slots held in holes
}

func newFreeList() freeList {
	return freeList{
		bySize:  make([]Extent, 0, 64),
		byStart: make(map[Offset]int, 64),
		byEnd:   make(map[Offset]Offset, 64),
	}
}

func compareExtent(a, b Extent) int {
	if c := cmp.Compare(a.Len, b.Len); c != 0 {
		return c
	}
	return cmp.Compare(a.Off, b.Off)
}

// len returns the number of holes.
func (fl *freeList) len() int { return len(fl.bySize) }

// add records a hole without coalescing. The caller guarantees it touches no other hole.
func (fl *freeList) add(off Offset, n int) {
	e := Extent{Off: off, Len: n}
	i, _ := slices.BinarySearchFunc(fl.bySize, e, compareExtent)
	fl.bySize = slices.Insert(fl.bySize, i, e)
	fl.byStart[off] = n
	fl.byEnd[e.End()] = off
	fl.records += n
}

// remove drops an existing hole.
func (fl *freeList) remove(off Offset, n int) {
	e := Extent{Off: off, Len: n}
	if i, found := slices.BinarySearchFunc(fl.bySize, e, compareExtent); found {
		fl.bySize = slices.Delete(fl.bySize, i, i+1)
	}
	delete(fl.byStart, off)
	delete(fl.byEnd, e.End())
	fl.records -= n
}

// insert records a hole, merging it with any hole that touches either side.
// Returns the merged extent and the number of merges performed.
func (fl *freeList) insert(off Offset, n int) (Extent, int) {
	merges := 0

	// Backward: a hole ending where this one starts
	if start, ok := fl.byEnd[off]; ok {
		ln := fl.byStart[start]
		fl.remove(start, ln)
		off, n = start, n+ln
		merges++
	}

	// Forward: a hole starting where this one ends
	end := off + Offset(n)
	if ln, ok := fl.byStart[end]; ok {
		fl.remove(end, ln)
		n += ln
		merges++
	}

	fl.add(off, n)
	return Extent{Off: off, Len: n}, merges
}

// bestFit returns the smallest hole of at least n slots, lowest offset first.
func (fl *freeList) bestFit(n int) (Extent, bool) {
	i, _ := slices.BinarySearchFunc(fl.bySize, Extent{Off: 0, Len: n}, compareExtent)
	if i >= len(fl.bySize) {
		return Extent{}, false
	}
	return fl.bySize[i], true
}

// endingAt returns the hole whose exclusive end is end, if any.
func (fl *freeList) endingAt(end Offset) (Extent, bool) {
	start, ok := fl.byEnd[end]
	if !ok {
		return Extent{}, false
	}
	return Extent{Off: start, Len: fl.byStart[start]}, true
}

// largest returns the length of the largest hole (0 when empty).
func (fl *freeList) largest() int {
	if len(fl.bySize) == 0 {
		return 0
	}
	return fl.bySize[len(fl.bySize)-1].Len
}

// holes returns the holes sorted by offset.
func (fl *freeList) holes() []Extent {
	out := slices.Clone(fl.bySize)
	slices.SortFunc(out, func(a, b Extent) int { return cmp.Compare(a.Off, b.Off) })
	return out
}

func (fl *freeList) reset() {
	fl.bySize = fl.bySize[:0]
	clear(fl.byStart)
	clear(fl.byEnd)
	fl.records = 0
}
