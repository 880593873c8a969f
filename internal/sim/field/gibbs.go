package field

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

func (f *Field) gibbsQuadrant(rng RNG, h *Neighborhood, q Quadrant) {
	cells := f.cells[q]
	if len(cells) == 0 {
		return
	}
	shuffle(rng, cells)
	center := f.arena.Get(h.Center)
	origin := f.origin(h)
	for _, c := range cells {
		f.gibbsCell(rng, &h.Quadrants[q], center, origin.Add(c))
	}
}

// gibbsCell resamples the occupant of pos from its full conditional: every
// item type plus "empty", whose log-weight is 0.
func (f *Field) gibbsCell(rng RNG, nb *QuadrantNeighbors, center *Patch, pos Position) {
	f.stats.GibbsCells++
	types := len(f.boost)
	old := center.IndexAt(pos)
	oldType := types
	if old >= 0 {
		oldType = center.Items[old].Type
	}

	lp := f.logits
	for t := 0; t < types; t++ {
		lp[t] = f.intensity(pos, t)
	}
	for _, id := range nb.List() {
		items := f.arena.Get(id).Items
		for k := range items {
			other := &items[k]
			if other.Pos == pos {
				continue
			}
			for t := 0; t < types; t++ {
				lp[t] += f.cache.Interaction(pos, other.Pos, t, other.Type)
				lp[t] += f.cache.Interaction(other.Pos, pos, other.Type, t)
			}
		}
	}
	lp[types] = 0

	picked := sampleLogits(lp, uniform(rng))
	if picked == oldType {
		return
	}
	if old >= 0 {
		center.removeAt(old)
	}
	if picked < types {
		center.Items = append(center.Items, Item{Type: picked, Pos: pos, CreationTime: f.now})
	}
	f.stats.GibbsChanges++
}

// sampleLogits normalizes lp in place and returns the index whose cumulative
// probability first exceeds u. Zero-probability entries are never chosen.
func sampleLogits(lp []float64, u float64) int {
	floats.AddConst(-floats.LogSumExp(lp), lp)
	last := len(lp) - 1
	var cum float64
	for i, v := range lp {
		w := math.Exp(v)
		if w == 0 {
			continue
		}
		last = i
		cum += w
		if u < cum {
			return i
		}
	}
	return last
}
