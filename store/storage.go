package store

import (
	"log/slog"
	"sync"

	"github.com/joshuapare/modelstore/store/alloc"
	"github.com/joshuapare/modelstore/store/dirty"
)

// Offset addresses a record slot.
type Offset = alloc.Offset

// Invalid is the sentinel offset.
const Invalid = alloc.Invalid

// Config controls a Storage.
type Config struct {
	// Name identifies the storage in logs and stats.
	Name string

	// Alloc controls slab capacity.
	Alloc alloc.Config

	// Buffering is the number of upload cycles a write stays dirty.
	// Zero selects dirty.Buffering.
	Buffering uint8

	// Logger receives growth and reset events. Nil discards.
	Logger *slog.Logger
}

// Storage is a slab of records of type T.
type Storage[T any] struct {
	mu sync.Mutex
	tx Tx[T]

	name     string
	records  []T
	sentinel T

	alloc *alloc.SpanAllocator
	dirty *dirty.Tracker

	onReset []func()
	logger  *slog.Logger

	epoch uint64 // Incremented by Reset

	writes int
	grows  int
}

// Stats reports storage metrics.
type Stats struct {
	Name         string
	Records      int // High-water mark, including the sentinel
	Capacity     int // Reserved records
	DirtyRecords int // Records still owed to the consumer
	Writes       int // Record writes through Set/Update/Allocate/Free
	Grows        int // Record array reallocations
	Epoch        uint64
	Alloc        alloc.Stats
}

// New creates a storage whose offset 0 holds sentinel.
func New[T any](cfg Config, sentinel T) *Storage[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	a := alloc.New(cfg.Alloc)
	s := &Storage[T]{
		name:     cfg.Name,
		sentinel: sentinel,
		alloc:    a,
		dirty:    dirty.NewTracker(a.Size(), cfg.Buffering),
		logger:   logger.With("storage", cfg.Name),
	}
	s.tx.s = s
	s.records = make([]T, a.Size(), a.Capacity())
	s.records[0] = sentinel
	return s
}

// Name returns the configured name.
func (s *Storage[T]) Name() string { return s.name }

// Do runs fn with the storage locked. The Tx passed to fn must not be used
// after fn returns, and fn must not call other Storage methods.
func (s *Storage[T]) Do(fn func(tx *Tx[T]) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tx.open = true
	defer func() { s.tx.open = false }()
	return fn(&s.tx)
}

// Allocate reserves n records initialised to init.
func (s *Storage[T]) Allocate(n int, init T) (Offset, error) {
	var off Offset
	err := s.Do(func(tx *Tx[T]) error {
		var err error
		off, err = tx.Allocate(n, init)
		return err
	})
	return off, err
}

// Free releases [off, off+n). When zero is non-nil it is written into every
// freed record.
func (s *Storage[T]) Free(off Offset, n int, zero *T) error {
	return s.Do(func(tx *Tx[T]) error {
		return tx.Free(off, n, zero)
	})
}

// Get returns the record at off. Get(Invalid) returns the sentinel.
func (s *Storage[T]) Get(off Offset) (T, error) {
	var v T
	err := s.Do(func(tx *Tx[T]) error {
		var err error
		v, err = tx.Get(off)
		return err
	})
	return v, err
}

// Set overwrites the record at off and marks it dirty.
func (s *Storage[T]) Set(off Offset, v T) error {
	return s.Do(func(tx *Tx[T]) error {
		return tx.Set(off, v)
	})
}

// Update mutates the record at off in place and marks it dirty.
func (s *Storage[T]) Update(off Offset, fn func(*T)) error {
	return s.Do(func(tx *Tx[T]) error {
		return tx.Update(off, fn)
	})
}

// Size returns the high-water mark in records, including the sentinel.
func (s *Storage[T]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// NeedsUpload reports whether any record is still owed to the consumer.
func (s *Storage[T]) NeedsUpload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty.NeedsUpload()
}

// MarkAllDirty schedules every record for a full re-upload.
func (s *Storage[T]) MarkAllDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty.MarkAllDirty()
}

// OnReset registers fn to run inside Reset, with the storage locked.
// fn must not call Storage methods.
func (s *Storage[T]) OnReset(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReset = append(s.onReset, fn)
}

// Reset drops every allocation, returns to the initial capacity and marks
// every remaining record dirty. Spans acquired before the reset become stale.
func (s *Storage[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.records)
	s.alloc.Reset()

	size, capacity := s.alloc.Size(), s.alloc.Capacity()
	if cap(s.records) > capacity {
		s.records = make([]T, size, capacity)
	} else {
		s.records = s.records[:size]
	}
	s.records[0] = s.sentinel

	s.dirty.Resize(size)
	s.dirty.MarkAllDirty()
	s.epoch++

	for _, fn := range s.onReset {
		fn()
	}

	s.logger.Debug("storage reset", "records_before", before, "capacity", capacity)
}

// Stats returns a snapshot of storage metrics.
func (s *Storage[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Name:         s.name,
		Records:      len(s.records),
		Capacity:     cap(s.records),
		DirtyRecords: s.dirty.Pending(),
		Writes:       s.writes,
		Grows:        s.grows,
		Epoch:        s.epoch,
		Alloc:        s.alloc.Stats(),
	}
}

// syncSize resizes the record array and the tracker in lockstep with the
// allocator's high-water mark. Existing records are copied forward.
func (s *Storage[T]) syncSize() {
	size := s.alloc.Size()
	if size == len(s.records) {
		return
	}

	if size > cap(s.records) {
		grown := make([]T, size, s.alloc.Capacity())
		copy(grown, s.records)
		s.records = grown
		s.grows++
		s.logger.Debug("storage grown", "records", size, "capacity", cap(grown))
	} else {
		s.records = s.records[:size]
	}
	s.dirty.Resize(size)
}
