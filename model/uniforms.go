package model

// Draw flags stored in ModelUniforms.DrawFlag.
const (
	DrawFlagNone      uint8 = 0
	DrawFlagOpaque    uint8 = 1 << 0
	DrawFlagAlpha     uint8 = 1 << 1
	DrawFlagReflected uint8 = 1 << 2
	DrawFlagRefracted uint8 = 1 << 3
	DrawFlagShadow    uint8 = 1 << 4
	DrawFlagIcon      uint8 = 1 << 7
)

// UserDefinedSlots is the number of free-form floats per uniforms record.
const UserDefinedSlots = 16

// ModelUniforms is the per-instance shader data of one world object.
//
// The layout follows std140 rules so the record can be consumed as-is:
// every Float4 starts on a 16-byte boundary.
type ModelUniforms struct {
	DrawFlag  uint8
	_         uint8
	ID        uint16
	_         [3]uint32
	MaxHealth float32
	Health    float32
	_         [2]float32
	DrawPos   Float4
	Speed     Float4

	UserDefined [UserDefinedSlots]float32
}

// ModelUniformsSize is the record size in bytes.
const ModelUniformsSize = 128

// HealthFraction returns Health/MaxHealth, or 0 when MaxHealth is not positive.
func (u ModelUniforms) HealthFraction() float32 {
	if u.MaxHealth <= 0 {
		return 0
	}
	return u.Health / u.MaxHealth
}
