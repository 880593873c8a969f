// Package gen derives the deterministic random streams used to generate and
// regenerate patches. Every (seed, patch, pass, phase) tuple maps to its own
// PCG stream, so results do not depend on worker count or scheduling order.
package gen

import "math/rand/v2"

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, y int64) uint64 {
	v := uint64(seed) ^ (uint64(x) * 0x9e3779b97f4a7c15) ^ (uint64(y) * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int64) uint64 {
	v := uint64(seed) ^ (uint64(x) * 0x9e3779b97f4a7c15) ^ (uint64(y) * 0xc2b2ae3d27d4eb4f) ^ (uint64(z) * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// PatchRand returns the stream for one patch during one sampling pass and
// quadrant phase.
func PatchRand(seed int64, px, py int64, pass uint64, phase uint8) *rand.Rand {
	s1 := Hash2(seed, px, py)
	s2 := mix64(pass<<8 | uint64(phase))
	return rand.New(rand.NewPCG(s1, s2^s1))
}

// TimeRand returns the stream for the regeneration pass at time step t.
func TimeRand(seed int64, t uint64) *rand.Rand {
	return rand.New(rand.NewPCG(Hash3(seed, 0x7265, 0x67656e, int64(t)), mix64(t)))
}
