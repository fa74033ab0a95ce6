package session

import (
	"github.com/joshuapare/modelstore/model"
	"github.com/joshuapare/modelstore/store"
)

// Kind is the closed set of things that can ask for uniforms.
type Kind uint8

const (
	KindUnit Kind = iota
	KindFeature
	KindProjectile
	KindUnitDef
	KindFeatureDef
	KindModel
)

var kindNames = [...]string{
	KindUnit:       "unit",
	KindFeature:    "feature",
	KindProjectile: "projectile",
	KindUnitDef:    "unit-def",
	KindFeatureDef: "feature-def",
	KindModel:      "model",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// OwnsUniforms reports whether objects of kind k get a uniforms record.
// Definitions and models are shared read-only data and resolve to the
// sentinel instead.
func (k Kind) OwnsUniforms() bool {
	switch k {
	case KindUnit, KindFeature, KindProjectile:
		return true
	}
	return false
}

// Object is a world object or definition.
//
// Objects are identified by interface equality, so implementations must be
// pointer types.
type Object interface {
	Kind() Kind
}

// TransformOwner holds a span of transforms, one per model piece.
type TransformOwner interface {
	Transforms() *store.Span[model.Transform]
}
