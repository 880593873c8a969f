package field

import "math"

// Regenerate advances patches to simulated time step time. For each patch it
// expires items older than their type's lifetime, then runs one move of the
// configured strategy with every type's intensity raised by log(1 + r), where
// r is the type's regeneration rate at the patch center. A rate of -1 or
// below forbids births of that type for this move. Items born here record
// CreationTime = time. With zero regeneration the move is an ordinary
// sampling move, so a field at equilibrium stays there.
func (f *Field) Regenerate(rng RNG, time uint64) {
	defer func() {
		clear(f.boost)
		f.now = f.base
	}()
	f.now = time
	half := f.n / 2
	for i := range f.hoods {
		h := &f.hoods[i]
		f.expire(f.arena.Get(h.Center), time)
		mid := f.origin(h).Add(Position{X: half, Y: half})
		for t := range f.boost {
			f.boost[t] = regenerationBoost(f.cache.Regeneration(mid, time, t))
		}
		f.samplePatch(rng, h)
	}
}

func regenerationBoost(r float64) float64 {
	switch {
	case math.IsNaN(r):
		return 0
	case r <= -1:
		return math.Inf(-1)
	}
	return math.Log1p(r)
}

func (f *Field) expire(p *Patch, time uint64) {
	for i := 0; i < len(p.Items); {
		it := &p.Items[i]
		if life := f.cache.Lifetime(it.Type); life > 0 && it.CreationTime+life <= time {
			p.removeAt(i)
			f.stats.Expired++
			continue
		}
		i++
	}
}
