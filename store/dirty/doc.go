// Package dirty provides per-record upload tracking for a multi-buffered consumer.
//
// # Overview
//
// Every record slot has a small counter. Writing a record sets its counter to
// the buffering factor; every completed upload cycle decrements each non-zero
// counter by one. A record therefore stays dirty for Buffering consecutive
// cycles after its last write, which is what a consumer rotating among
// Buffering physical copies of the destination needs: one upload only lands
// in one copy.
//
// # Tracker
//
// The main type provides:
//
//   - MarkDirty(off) / MarkRange(off, n): a record was written
//   - MarkAllDirty(): the destination was recreated and holds nothing valid
//   - NeedsUpload(): any counter non-zero
//   - First() / Next(prev): walk maximal runs of dirty records
//   - Advance(): one upload cycle completed
//   - Resize(n): follow slab growth (new slots start dirty)
//
// Uploaders only see the Source interface: the walk, Advance and MarkAllDirty.
//
// # Range Coalescing
//
// Ranges are produced straight from the counter array, so neighbouring dirty
// records always come out as one range:
//
//	Dirty records: [0, 1, 2, 5, 6] → Ranges: [{0, 3}, {5, 2}]
//
// A pass is First() followed by Next() until it reports false. Each run is
// visited once per pass.
//
// # Thread Safety
//
// Tracker instances are not thread-safe. The store package serialises access
// behind the storage mutex.
//
// # Related Packages
//
//   - github.com/joshuapare/modelstore/store: storage that marks records on write
//   - github.com/joshuapare/modelstore/store/upload: uploader that walks and advances the tracker
package dirty
