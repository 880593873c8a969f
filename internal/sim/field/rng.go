package field

// RNG is the randomness a sampler needs: uniform draws over the full uint64
// range. *math/rand/v2.Rand satisfies it. Callers own seeding; the same
// seed assigned to the same (patch, phase) replays identically.
type RNG interface {
	Uint64() uint64
}

// uniform returns a float64 in the open interval (0, 1).
func uniform(rng RNG) float64 {
	return (float64(rng.Uint64()>>12) + 0.5) / (1 << 52)
}

func intn(rng RNG, n int) int {
	return int(rng.Uint64() % uint64(n))
}

func shuffle(rng RNG, cells []Position) {
	for i := len(cells) - 1; i > 0; i-- {
		j := intn(rng, i+1)
		cells[i], cells[j] = cells[j], cells[i]
	}
}
