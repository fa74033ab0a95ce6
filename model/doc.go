// Package model defines the fixed-layout records kept in the stores.
//
// Every type here is pointer free with a fixed size, so a slab of them can be
// copied byte for byte into a consumer-visible buffer.
package model
