// Package store keeps a slab of fixed-size records at stable offsets and
// tracks which of them must be streamed to a multi-buffered consumer.
//
// # Overview
//
// Storage[T] combines three pieces behind one mutex:
//
//   - a record array indexed by Offset
//   - an alloc.SpanAllocator that hands out and reuses spans of that array
//   - a dirty.Tracker with one upload counter per record
//
// Offset 0 holds a sentinel record. Reads of Invalid return it, so read paths
// stay total; writes to it are rejected.
//
// # Concurrency
//
// Every exported Storage method takes the mutex for its own duration. Work
// that needs several steps to be atomic (identity index updates, a whole
// upload cycle) runs inside Do, which holds the mutex while the callback runs
// and hands it a Tx. A Tx is only valid inside its callback.
//
// Storage is the only lock in the subsystem. Indexes and uploaders built on
// top of it never take a lock of their own.
//
// # Spans
//
// Span[T] is an owning handle over a multi-record allocation. Release frees
// it and writes the handle's zero pattern into the freed records so a
// consumer that reads them before the next overwrite sees inert data. Spans
// are move-only: use Move to transfer ownership.
//
// # Related Packages
//
//   - github.com/joshuapare/modelstore/store/alloc: span bookkeeping
//   - github.com/joshuapare/modelstore/store/dirty: upload counters
//   - github.com/joshuapare/modelstore/store/index: identity -> offset index
//   - github.com/joshuapare/modelstore/store/upload: streaming to a GPU-visible buffer
package store
