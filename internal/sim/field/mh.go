package field

import "math"

// Birth/death moves. With T item types, m candidate cells and k items in
// scope, a birth of type t at x is accepted with log-probability
//
//	E(x, t) - log(k+1) + log T + log m
//
// and a death with the mirror-image value, so the chain satisfies detailed
// balance for the configured energies. E sums the intensity and both
// directions of every pairwise interaction in the quadrant neighborhood.

func (f *Field) mhPatch(rng RNG, h *Neighborhood) {
	center := f.arena.Get(h.Center)
	if rng.Uint64()%2 == 0 {
		t := intn(rng, len(f.boost))
		local := Position{X: int64(intn(rng, int(f.n))), Y: int64(intn(rng, int(f.n)))}
		f.tryBirth(rng, h, center, t, f.origin(h).Add(local), len(center.Items), f.logNSquared)
	} else if len(center.Items) > 0 {
		k := len(center.Items)
		f.tryDeath(rng, h, center, intn(rng, k), k, f.logNSquared)
	}
}

// mhQuadrant proposes a move confined to quadrant q: births on its cells and
// deaths among the center patch items lying in it.
func (f *Field) mhQuadrant(rng RNG, h *Neighborhood, q Quadrant) {
	cells := f.cells[q]
	if len(cells) == 0 {
		return
	}
	center := f.arena.Get(h.Center)
	origin := f.origin(h)
	picks := f.picks[:0]
	for i := range center.Items {
		if QuadrantOf(center.Items[i].Pos.Sub(origin), f.n) == q {
			picks = append(picks, i)
		}
	}
	f.picks = picks
	if rng.Uint64()%2 == 0 {
		t := intn(rng, len(f.boost))
		pos := origin.Add(cells[intn(rng, len(cells))])
		f.tryBirth(rng, h, center, t, pos, len(picks), f.logCells[q])
	} else if len(picks) > 0 {
		f.tryDeath(rng, h, center, picks[intn(rng, len(picks))], len(picks), f.logCells[q])
	}
}

func (f *Field) tryBirth(rng RNG, h *Neighborhood, center *Patch, t int, pos Position, k int, logCells float64) {
	f.stats.BirthProposals++
	q := QuadrantOf(pos.Sub(f.origin(h)), f.n)
	sum, occupied := f.interactionSum(&h.Quadrants[q], pos, t, true)
	if occupied {
		f.stats.RejectedOccupied++
		return
	}
	p := sum + f.intensity(pos, t)
	p -= logs.Get(k + 1)
	p += f.logTypeCount + logCells
	if math.Log(uniform(rng)) < p {
		center.Items = append(center.Items, Item{Type: t, Pos: pos, CreationTime: f.now})
		f.stats.Births++
	}
}

func (f *Field) tryDeath(rng RNG, h *Neighborhood, center *Patch, idx, k int, logCells float64) {
	f.stats.DeathProposals++
	it := center.Items[idx]
	q := QuadrantOf(it.Pos.Sub(f.origin(h)), f.n)
	sum, _ := f.interactionSum(&h.Quadrants[q], it.Pos, it.Type, false)
	p := -sum - f.intensity(it.Pos, it.Type)
	p -= f.logTypeCount + logCells
	p += logs.Get(k)
	if math.Log(uniform(rng)) < p {
		center.removeAt(idx)
		f.stats.Deaths++
	}
}
