package alloc

import "math"

// Offset is the index of a record slot within the slab.
type Offset uint32

// Invalid is the reserved sentinel offset. It never names a live allocation.
const Invalid Offset = 0

// maxRecords bounds the slab so slot counts fit an int on every platform.
const maxRecords = math.MaxInt32

// Valid reports whether o names a real slot rather than the sentinel.
func (o Offset) Valid() bool { return o != Invalid }

// Extent is a contiguous run of record slots.
type Extent struct {
	Off Offset // First slot
	Len int    // Number of slots
}

// End returns the first slot past the extent.
func (e Extent) End() Offset { return e.Off + Offset(e.Len) }

// Config controls slab capacity.
type Config struct {
	// InitialCapacity is the number of slots reserved at construction and
	// restored by Reset. Values below 1 are raised to 1 (the sentinel slot).
	InitialCapacity int

	// GrowIncrement is added to the capacity each time it is exceeded.
	// Zero doubles the capacity instead.
	GrowIncrement int

	// MaxCapacity is a hard ceiling on capacity. Zero means unbounded.
	MaxCapacity int
}

// DefaultConfig reserves 64K slots and doubles on growth.
var DefaultConfig = Config{
	InitialCapacity: 1 << 16,
}

func (c Config) normalized() Config {
	if c.InitialCapacity < 1 {
		c.InitialCapacity = 1
	}
	if c.GrowIncrement < 0 {
		c.GrowIncrement = 0
	}
	if c.MaxCapacity < 0 {
		c.MaxCapacity = 0
	}
	if c.MaxCapacity > 0 && c.InitialCapacity > c.MaxCapacity {
		c.InitialCapacity = c.MaxCapacity
	}
	return c
}
