package model

// Float4 is a four-component float vector.
type Float4 struct {
	X, Y, Z, W float32
}

// Quaternion is a rotation stored as imaginary part (X, Y, Z) and real part R.
type Quaternion struct {
	X, Y, Z, R float32
}

// IdentityQuaternion is the no-rotation quaternion.
var IdentityQuaternion = Quaternion{R: 1}

// Transform is a decomposed rigid transform with scale.
type Transform struct {
	R Quaternion // Rotation
	T Float4     // Translation
	S Float4     // Scale; W is unused and zero
}

// TransformSize is the record size in bytes.
const TransformSize = 48

// IdentityTransform returns the transform that leaves positions unchanged.
func IdentityTransform() Transform {
	return Transform{
		R: IdentityQuaternion,
		S: Float4{X: 1, Y: 1, Z: 1},
	}
}

// ZeroTransform returns the transform that collapses everything to the
// origin. Released spans are filled with it so stale reads draw nothing.
func ZeroTransform() Transform { return Transform{} }

// IsIdentity reports whether t equals IdentityTransform.
func (t Transform) IsIdentity() bool { return t == IdentityTransform() }

// Matrix44 is a column-major 4x4 float matrix.
type Matrix44 [16]float32

// IdentityMatrix returns the 4x4 identity.
func IdentityMatrix() Matrix44 {
	return Matrix44{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// ZeroMatrix returns the all-zero matrix.
func ZeroMatrix() Matrix44 { return Matrix44{} }
