// Package index maps caller identities to record offsets in a store.Storage.
//
// # Overview
//
// An Index[K, T] keeps two maps, identity to offset and offset to identity,
// and lazily creates one record per identity on first access. Both maps are
// only touched inside the storage's critical section, so an Index needs no
// lock of its own and stays consistent with the slab under concurrent use.
//
// The zero value of K (typically a nil pointer) is permanently mapped to
// store.Invalid. Looking it up never allocates and returns the sentinel
// record, which lets callers treat "no owner" like any other identity.
//
// # Interfaces
//
// ReadOnly: lookups without creation
//   - Lookup(id): offset if present
//   - Len(): number of identities
//   - Stats(): index statistics
//
// Index: full implementation (satisfies ReadOnly)
//   - GetOrCreate/Get/Set/Update: lazy creation
//   - Remove/TryRemove: frees the record
//
// # Usage Example
//
//	s := store.New(store.Config{Name: "uniforms"}, model.ModelUniforms{})
//	ix := index.New[*Unit](s, model.ModelUniforms{}, 0)
//
//	off, err := ix.GetOrCreate(u) // allocates on first call
//	err = ix.Update(u, func(m *model.ModelUniforms) { m.Health = 50 })
//	err = ix.Remove(u)            // frees the record
//
// Storage.Reset clears the index through a reset hook.
package index
