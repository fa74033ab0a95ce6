//go:build !linux && !darwin

package ringbuf

// mapRegion falls back to the Go heap where anonymous mappings are not wired.
func mapRegion(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	return make([]byte, size), nil
}

func unmapRegion([]byte) error { return nil }
