package session

import (
	"github.com/joshuapare/modelstore/store/alloc"
	"github.com/joshuapare/modelstore/store/dirty"
	"github.com/joshuapare/modelstore/store/ringbuf"
	"github.com/joshuapare/modelstore/store/upload"
)

// Default sizes, in records.
const (
	TransformsInitial   = 1 << 16
	TransformsBuffer    = 1 << 16
	TransformsIncrement = 1 << 14
	TransformsBinding   = 0

	UniformsInitial   = 1 << 12
	UniformsBuffer    = 1 << 12
	UniformsIncrement = 1 << 11
	UniformsBinding   = 1
)

// Config holds the settings of both storages and their uploaders.
type Config struct {
	// Buffering is the number of upload cycles a write stays dirty, and the
	// number of generations of ring buffers built by NewWithRingBuffers.
	Buffering uint8

	Transforms       alloc.Config
	TransformsUpload upload.Config

	Uniforms       alloc.Config
	UniformsUpload upload.Config

	// Ring configures buffers built by NewWithRingBuffers. Name and
	// Generations are filled in per buffer.
	Ring ringbuf.Config
}

// DefaultConfig returns the production sizes.
func DefaultConfig() Config {
	return Config{
		Buffering: dirty.Buffering,
		Transforms: alloc.Config{
			InitialCapacity: TransformsInitial,
		},
		TransformsUpload: upload.Config{
			Name:            "transforms",
			Binding:         TransformsBinding,
			InitialCapacity: TransformsBuffer,
			Increment:       TransformsIncrement,
		},
		Uniforms: alloc.Config{
			InitialCapacity: UniformsInitial,
		},
		UniformsUpload: upload.Config{
			Name:            "uniforms",
			Binding:         UniformsBinding,
			InitialCapacity: UniformsBuffer,
			Increment:       UniformsIncrement,
		},
		Ring: ringbuf.Config{Persistent: true},
	}
}
