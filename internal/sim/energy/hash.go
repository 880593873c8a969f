package energy

import "math"

// mix32 is a 32-bit integer avalanche mixer.
func mix32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x45d9f3b
	x ^= x >> 16
	x *= 0x45d9f3b
	x ^= x >> 16
	return x
}

func hashUnit(x, shift, scale uint32) float64 {
	return float64(mix32((x+shift)/scale)) / float64(math.MaxUint32)
}

// smoothHash interpolates hashUnit linearly between multiples of scale, so
// the result varies continuously with x.
func smoothHash(x, shift, scale uint32) float64 {
	h := hashUnit(x, shift, scale)
	hNext := hashUnit(x+scale, shift, scale)
	t := float64(x%scale) / float64(scale)
	return h*(1-t) + hNext*t
}
