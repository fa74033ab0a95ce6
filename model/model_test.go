package model

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestRecordSizes(t *testing.T) {
	require.Equal(t, uintptr(16), unsafe.Sizeof(Float4{}))
	require.Equal(t, uintptr(TransformSize), unsafe.Sizeof(Transform{}))
	require.Equal(t, uintptr(64), unsafe.Sizeof(Matrix44{}))
	require.Equal(t, uintptr(ModelUniformsSize), unsafe.Sizeof(ModelUniforms{}))
}

func TestModelUniforms_Std140Offsets(t *testing.T) {
	var u ModelUniforms
	require.Equal(t, uintptr(2), unsafe.Offsetof(u.ID))
	require.Equal(t, uintptr(16), unsafe.Offsetof(u.MaxHealth))
	require.Equal(t, uintptr(32), unsafe.Offsetof(u.DrawPos))
	require.Equal(t, uintptr(48), unsafe.Offsetof(u.Speed))
	require.Equal(t, uintptr(64), unsafe.Offsetof(u.UserDefined))
}

func TestIdentityTransform(t *testing.T) {
	id := IdentityTransform()
	require.Equal(t, float32(1), id.R.R)
	require.Equal(t, Float4{X: 1, Y: 1, Z: 1, W: 0}, id.S)
	require.Equal(t, Float4{}, id.T)
	require.True(t, id.IsIdentity())
	require.False(t, ZeroTransform().IsIdentity())
}

func TestMatrices(t *testing.T) {
	m := IdentityMatrix()
	for i := range 4 {
		for j := range 4 {
			want := float32(0)
			if i == j {
				want = 1
			}
			require.Equal(t, want, m[i*4+j], "m[%d][%d]", i, j)
		}
	}
	require.Equal(t, Matrix44{}, ZeroMatrix())
}

func TestHealthFraction(t *testing.T) {
	require.Zero(t, ModelUniforms{Health: 5}.HealthFraction())
	require.InDelta(t, 0.25, ModelUniforms{Health: 25, MaxHealth: 100}.HealthFraction(), 1e-6)
}
