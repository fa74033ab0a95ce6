package upload

import (
	"log/slog"

	"github.com/joshuapare/modelstore/store"
)

// Resolver maps an owner to its record offset.
type Resolver[O any] func(owner O) (store.Offset, error)

// Resolve returns the offset of owner, or store.Invalid when owner is nil
// (including a typed nil) or r fails. Failures are logged at error level, so
// consumers always receive an offset they can read through.
func Resolve[O comparable](logger *slog.Logger, name string, owner O, r Resolver[O]) store.Offset {
	var zero O
	if owner == zero || store.IsNil(owner) {
		return store.Invalid
	}
	off, err := r(owner)
	if err != nil {
		if logger != nil {
			logger.Error("offset resolution failed", "storage", name, "error", err)
		}
		return store.Invalid
	}
	return off
}
