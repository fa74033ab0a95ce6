// Package alloc provides span bookkeeping for a slab of fixed-size records.
//
// # Overview
//
// A SpanAllocator hands out contiguous runs of record slots ("spans") addressed
// by integer Offset. It never touches record memory itself: the owning storage
// keeps the backing array and resizes it whenever Size or Capacity moves.
//
// Offsets are stable. Freeing a span never moves another span, and the slab is
// never compacted while records are live. Holes left by Free are kept in a free
// list and reused before the high-water mark is extended.
//
// # Offset 0
//
// Offset 0 is reserved for a sentinel record. It is occupied from construction
// and after every Reset, and Allocate never returns it. Callers use Invalid
// (== 0) to mean "no allocation".
//
// # Allocation Policy
//
//   - Best-fit: the smallest hole with length >= n wins, ties broken by the
//     lowest offset. Larger holes are split and the tail stays free.
//   - Otherwise the span is carved from the high-water mark. A hole that ends
//     exactly at the high-water mark is absorbed into the new span.
//   - Capacity doubles (or grows by Config.GrowIncrement) when the high-water
//     mark passes it. Config.MaxCapacity turns that into ErrCapacity.
//
// # Coalescing
//
// Freed spans merge with adjacent holes in O(1) using start/end indexes, so
// the free list never holds two touching holes.
//
// # Errors
//
// Bad lengths, double frees, frees of never-allocated offsets and length
// mismatches are programming errors. They are returned wrapped with an
// assertion marker (see errors.HasAssertionFailure). ErrCapacity is the only
// resource error.
//
// # Thread Safety
//
// SpanAllocator instances are not thread-safe. The store package serialises
// all access behind the storage mutex.
//
// # Related Packages
//
//   - github.com/joshuapare/modelstore/store: record storage built on this allocator
//   - github.com/joshuapare/modelstore/store/dirty: per-record upload tracking
package alloc
