// Package upload streams dirty records from a store.Storage into a
// multi-buffered, consumer-visible Buffer.
//
// One call to Uploader.Update is one upload cycle:
//
//  1. Grow the buffer when the slab outgrew it, and schedule a full re-upload.
//  2. Return early when nothing is dirty.
//  3. Copy every dirty range (or the whole slab for non-persistent buffers).
//  4. Rebind the buffer, rotate its generation and age the dirty counters.
//
// The whole cycle runs inside the storage's critical section. A failed cycle
// leaves the dirty counters untouched so the next cycle retries the same
// ranges.
package upload
