package upload

// AlignUp returns n rounded up to the next multiple of inc.
// inc <= 0 returns n unchanged.
//
// Example:
//
//	AlignUp(1, 16384)     = 16384
//	AlignUp(16384, 16384) = 16384
//	AlignUp(16385, 16384) = 32768
func AlignUp(n, inc int) int {
	if inc <= 0 {
		return n
	}
	return (n + inc - 1) / inc * inc
}
