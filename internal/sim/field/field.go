// Package field samples item placements from a Markov random field defined
// by per-type intensity, pairwise interaction and regeneration energies.
//
// A Field owns no patches. It mutates the item lists of the center patches of
// the neighborhoods it was given and reads the neighbor patches. Concurrent
// Fields over one Arena are safe only when no patch one of them writes is
// read or written by another, which the quadrant phase protocol (Phases)
// plus the caller's scheduling must ensure.
package field

import (
	"errors"
	"fmt"
	"math"
)

type Strategy uint8

const (
	StrategyMetropolisHastings Strategy = iota
	StrategyGibbs
)

var ErrUnknownStrategy = errors.New("field: unknown sampling strategy")

func (s Strategy) String() string {
	switch s {
	case StrategyMetropolisHastings:
		return "mh"
	case StrategyGibbs:
		return "gibbs"
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "mh", "metropolis-hastings":
		return StrategyMetropolisHastings, nil
	case "gibbs":
		return StrategyGibbs, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

type Config struct {
	N        int
	Strategy Strategy
	// Now is the simulated time stamped on items born by Sample and
	// SampleQuadrant. Regenerate stamps its own pass time.
	Now uint64
}

// Stats counts sampler outcomes since the Field was created.
type Stats struct {
	BirthProposals   uint64
	DeathProposals   uint64
	Births           uint64
	Deaths           uint64
	RejectedOccupied uint64
	GibbsCells       uint64
	GibbsChanges     uint64
	Expired          uint64
}

func (s *Stats) Add(o Stats) {
	s.BirthProposals += o.BirthProposals
	s.DeathProposals += o.DeathProposals
	s.Births += o.Births
	s.Deaths += o.Deaths
	s.RejectedOccupied += o.RejectedOccupied
	s.GibbsCells += o.GibbsCells
	s.GibbsChanges += o.GibbsChanges
	s.Expired += o.Expired
}

// Field runs sampling passes over a fixed set of neighborhoods. A Field is
// not safe for concurrent use; give each worker its own.
type Field struct {
	cache    *Cache
	arena    *Arena
	hoods    []Neighborhood
	n        int64
	strategy Strategy

	logTypeCount float64
	logNSquared  float64

	// cells[q] lists the patch-local cells of quadrant q.
	cells    [4][]Position
	logCells [4]float64

	// boost is added to every intensity; zero outside Regenerate.
	boost []float64
	now   uint64
	base  uint64

	logits []float64
	picks  []int

	stats Stats
}

func New(cache *Cache, arena *Arena, hoods []Neighborhood, cfg Config) (*Field, error) {
	if cache == nil {
		return nil, ErrEmptyCatalog
	}
	if cfg.N != cache.N() {
		return nil, fmt.Errorf("%w: config %d, cache %d", ErrBadPatchSize, cfg.N, cache.N())
	}
	if cfg.Strategy > StrategyGibbs {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, cfg.Strategy)
	}
	types := cache.TypeCount()
	f := &Field{
		cache:        cache,
		arena:        arena,
		hoods:        hoods,
		n:            int64(cfg.N),
		strategy:     cfg.Strategy,
		logTypeCount: math.Log(float64(types)),
		logNSquared:  2 * math.Log(float64(cfg.N)),
		boost:        make([]float64, types),
		now:          cfg.Now,
		base:         cfg.Now,
		logits:       make([]float64, types+1),
	}
	for x := int64(0); x < f.n; x++ {
		for y := int64(0); y < f.n; y++ {
			p := Position{X: x, Y: y}
			q := QuadrantOf(p, f.n)
			f.cells[q] = append(f.cells[q], p)
		}
	}
	for q := range f.cells {
		f.logCells[q] = math.Log(float64(len(f.cells[q])))
	}
	return f, nil
}

func (f *Field) Strategy() Strategy { return f.strategy }
func (f *Field) Stats() Stats       { return f.stats }

// Sample runs one pass over every neighborhood: a single birth or death
// proposal per patch under Metropolis-Hastings, or a full sweep of all four
// quadrants (BL, TR, TL, BR) under Gibbs.
func (f *Field) Sample(rng RNG) {
	for i := range f.hoods {
		f.samplePatch(rng, &f.hoods[i])
	}
}

// SampleQuadrant runs one pass restricted to quadrant q of every patch.
// Phase-ordered schedulers call it once per entry of Phases.
func (f *Field) SampleQuadrant(rng RNG, q Quadrant) {
	for i := range f.hoods {
		h := &f.hoods[i]
		switch f.strategy {
		case StrategyGibbs:
			f.gibbsQuadrant(rng, h, q)
		default:
			f.mhQuadrant(rng, h, q)
		}
	}
}

func (f *Field) samplePatch(rng RNG, h *Neighborhood) {
	switch f.strategy {
	case StrategyGibbs:
		f.gibbsQuadrant(rng, h, BottomLeft)
		f.gibbsQuadrant(rng, h, TopRight)
		f.gibbsQuadrant(rng, h, TopLeft)
		f.gibbsQuadrant(rng, h, BottomRight)
	default:
		f.mhPatch(rng, h)
	}
}

func (f *Field) intensity(p Position, t int) float64 {
	return f.cache.Intensity(p, t) + f.boost[t]
}

// interactionSum adds both directions of the interaction between an item of
// type t at pos and every other item in the listed patches. With
// stopOnOccupied it reports whether some item already sits at pos.
func (f *Field) interactionSum(nb *QuadrantNeighbors, pos Position, t int, stopOnOccupied bool) (float64, bool) {
	var sum float64
	for _, id := range nb.List() {
		items := f.arena.Get(id).Items
		for k := range items {
			other := &items[k]
			if other.Pos == pos {
				if stopOnOccupied {
					return 0, true
				}
				continue
			}
			sum += f.cache.Interaction(pos, other.Pos, t, other.Type)
			sum += f.cache.Interaction(other.Pos, pos, other.Type, t)
		}
	}
	return sum, false
}

func (f *Field) origin(h *Neighborhood) Position { return h.Pos.Scale(f.n) }
