package field

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/energy"
	"gibbsworld.ai/internal/sim/geom"
)

// gridWorld builds a w x h block of empty patches at patch coordinates
// [0,w) x [0,h).
func gridWorld(w, h int) (*Arena, []Neighborhood) {
	arena := NewArena(w * h)
	ids := map[Position]PatchID{}
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			p := geom.Pos(int64(x), int64(y))
			ids[p] = arena.Add(&Patch{Pos: p})
		}
	}
	lookup := func(p Position) (PatchID, bool) {
		id, ok := ids[p]
		return id, ok
	}
	var hoods []Neighborhood
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			p := geom.Pos(int64(x), int64(y))
			hoods = append(hoods, NeighborhoodOf(ids[p], p, lookup))
		}
	}
	return arena, hoods
}

func newTestField(t *testing.T, types []catalogs.ItemType, n int, s Strategy, arena *Arena, hoods []Neighborhood) *Field {
	t.Helper()
	c, err := NewCache(types, n)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(c.Close)
	f, err := New(c, arena, hoods, Config{N: n, Strategy: s})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func logistic(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func assertUniquePositions(t *testing.T, p *Patch) {
	t.Helper()
	seen := map[Position]bool{}
	for _, it := range p.Items {
		if seen[it.Pos] {
			t.Fatalf("duplicate item at %v", it.Pos)
		}
		seen[it.Pos] = true
	}
}

func TestQuadrantOf(t *testing.T) {
	cases := []struct {
		p    Position
		want Quadrant
	}{
		{geom.Pos(0, 0), BottomLeft},
		{geom.Pos(3, 3), BottomLeft},
		{geom.Pos(3, 4), TopLeft},
		{geom.Pos(4, 3), BottomRight},
		{geom.Pos(7, 7), TopRight},
	}
	for _, c := range cases {
		if got := QuadrantOf(c.p, 8); got != c.want {
			t.Fatalf("QuadrantOf(%v): got %s want %s", c.p, got, c.want)
		}
	}
}

func TestNeighborhoodOf_CornerAndInterior(t *testing.T) {
	_, hoods := gridWorld(3, 3)
	var corner, middle Neighborhood
	for _, h := range hoods {
		switch h.Pos {
		case geom.Pos(0, 0):
			corner = h
		case geom.Pos(1, 1):
			middle = h
		}
	}
	for q, qn := range middle.Quadrants {
		if qn.Count != 4 || qn.IDs[0] != middle.Center {
			t.Fatalf("interior quadrant %s: %+v", Quadrant(q), qn)
		}
	}
	want := map[Quadrant]uint8{BottomLeft: 1, TopLeft: 2, BottomRight: 2, TopRight: 4}
	for q, n := range want {
		if got := corner.Quadrants[q].Count; got != n {
			t.Fatalf("corner quadrant %s: got %d neighbors want %d", q, got, n)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	types := uniformTypes(1, energy.Intensity{}, energy.Interaction{})
	c, err := NewCache(types, 4)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	arena, hoods := gridWorld(1, 1)
	if _, err := New(c, arena, hoods, Config{N: 8}); err == nil {
		t.Fatalf("expected patch size mismatch error")
	}
	if _, err := New(c, arena, hoods, Config{N: 4, Strategy: Strategy(9)}); err == nil {
		t.Fatalf("expected unknown strategy error")
	}
	for _, name := range []string{"mh", "gibbs", ""} {
		if _, err := ParseStrategy(name); err != nil {
			t.Fatalf("ParseStrategy(%q): %v", name, err)
		}
	}
	if _, err := ParseStrategy("annealing"); err == nil {
		t.Fatalf("expected error for unknown strategy name")
	}
}

func TestMH_BirthOnOccupiedCellAlwaysRejected(t *testing.T) {
	const n = 2
	// A large positive intensity accepts every unoccupied birth and rejects
	// every death, so only the occupancy check can stop a birth.
	types := uniformTypes(1, energy.MustIntensity(energy.IntensityConstant, 1000), energy.MustInteraction(energy.InteractionMoore))
	arena, hoods := gridWorld(1, 1)
	p := arena.Get(hoods[0].Center)
	for x := int64(0); x < n; x++ {
		for y := int64(0); y < n; y++ {
			p.Items = append(p.Items, Item{Pos: geom.Pos(x, y)})
		}
	}
	f := newTestField(t, types, n, StrategyMetropolisHastings, arena, hoods)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 5000; i++ {
		f.Sample(rng)
	}
	st := f.Stats()
	if st.BirthProposals == 0 {
		t.Fatalf("no birth proposals")
	}
	if st.RejectedOccupied != st.BirthProposals || st.Births != 0 {
		t.Fatalf("births on a full patch: %+v", st)
	}
	if len(p.Items) != n*n {
		t.Fatalf("items changed: %d", len(p.Items))
	}
	assertUniquePositions(t, p)
}

func TestMH_NoDeathProposalOnEmptyPatch(t *testing.T) {
	types := uniformTypes(2, energy.MustIntensity(energy.IntensityConstant, -1000), energy.Interaction{})
	arena, hoods := gridWorld(1, 1)
	f := newTestField(t, types, 4, StrategyMetropolisHastings, arena, hoods)
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 2000; i++ {
		f.Sample(rng)
	}
	st := f.Stats()
	if st.DeathProposals != 0 {
		t.Fatalf("death proposed on an empty patch: %+v", st)
	}
	if st.BirthProposals == 0 || st.Births != 0 {
		t.Fatalf("unexpected birth stats: %+v", st)
	}
}

// One type, one cell: the chain has two states and P(occupied) = sigma(c).
func TestMH_SingleCellMatchesBoltzmann(t *testing.T) {
	const c = 0.5
	types := uniformTypes(1, energy.MustIntensity(energy.IntensityConstant, c), energy.Interaction{})
	arena, hoods := gridWorld(1, 1)
	f := newTestField(t, types, 1, StrategyMetropolisHastings, arena, hoods)
	p := arena.Get(hoods[0].Center)
	rng := rand.New(rand.NewPCG(5, 6))

	obs := make([]float64, 2)
	for i := 0; i < 400000; i++ {
		f.Sample(rng)
		if i >= 1000 && i%20 == 0 {
			obs[len(p.Items)]++
		}
	}
	total := obs[0] + obs[1]
	pOcc := logistic(c)
	exp := []float64{total * (1 - pOcc), total * pOcc}
	chi := stat.ChiSquare(obs, exp)
	pValue := distuv.ChiSquared{K: 1}.Survival(chi)
	if pValue < 0.001 {
		t.Fatalf("occupancy histogram %v vs expected %v: chi2=%.3f p=%.5f", obs, exp, chi, pValue)
	}
}

// With zero interaction the field factorizes: each of the n*n cells is
// occupied independently with probability sigma(c), so the mean item count is
// 16*sigma(c) for n = 4 once the log(k+1), log T and 2 log n proposal terms
// cancel.
func TestConstantIntensityMeanOccupancy(t *testing.T) {
	const c = -1.0
	want := 16 * logistic(c)
	cases := []struct {
		strategy Strategy
		passes   int
		burn     int
	}{
		{StrategyMetropolisHastings, 400000, 5000},
		{StrategyGibbs, 6000, 100},
	}
	for _, tc := range cases {
		types := uniformTypes(1, energy.MustIntensity(energy.IntensityConstant, c), energy.Interaction{})
		arena, hoods := gridWorld(1, 1)
		f := newTestField(t, types, 4, tc.strategy, arena, hoods)
		p := arena.Get(hoods[0].Center)
		rng := rand.New(rand.NewPCG(7, uint64(tc.strategy)))

		var sum, samples float64
		for i := 0; i < tc.passes; i++ {
			f.Sample(rng)
			if i >= tc.burn {
				sum += float64(len(p.Items))
				samples++
			}
		}
		assertUniquePositions(t, p)
		if got := sum / samples; math.Abs(got-want) > 0.2 {
			t.Fatalf("%s: mean occupancy %.3f, want %.3f", tc.strategy, got, want)
		}
	}
}

func TestRepulsiveBoxKeepsTypesApart(t *testing.T) {
	const (
		n      = 8
		cutoff = 9 // squared distance
	)
	box := energy.MustInteraction(energy.InteractionPiecewiseBox, cutoff, cutoff+1, -1000, 0)
	types := uniformTypes(2, energy.MustIntensity(energy.IntensityConstant, 0), energy.Interaction{})
	types[0].Interactions[1] = box
	types[1].Interactions[0] = box

	for _, s := range []Strategy{StrategyMetropolisHastings, StrategyGibbs} {
		arena, hoods := gridWorld(2, 2)
		f := newTestField(t, types, n, s, arena, hoods)
		rng := rand.New(rand.NewPCG(11, 13))
		passes := 20000
		if s == StrategyGibbs {
			passes = 400
		}
		for i := 0; i < passes; i++ {
			f.Sample(rng)
			if i%(passes/20) != 0 {
				continue
			}
			var all []Item
			for id := 0; id < arena.Len(); id++ {
				assertUniquePositions(t, arena.Get(PatchID(id)))
				all = append(all, arena.Get(PatchID(id)).Items...)
			}
			for a := range all {
				for b := a + 1; b < len(all); b++ {
					if all[a].Type == all[b].Type {
						continue
					}
					if all[a].Pos.Sub(all[b].Pos).SquaredLength() < cutoff {
						t.Fatalf("%s pass %d: types %d and %d at %v and %v", s, i, all[a].Type, all[b].Type, all[a].Pos, all[b].Pos)
					}
				}
			}
		}
		if st := f.Stats(); st.Births+st.GibbsChanges == 0 {
			t.Fatalf("%s: nothing happened: %+v", s, st)
		}
	}
}

func TestSampleQuadrant_OnlyTouchesQuadrant(t *testing.T) {
	const n = 8
	types := uniformTypes(2, energy.MustIntensity(energy.IntensityConstant, 3), energy.Interaction{})
	for _, s := range []Strategy{StrategyMetropolisHastings, StrategyGibbs} {
		arena, hoods := gridWorld(2, 1)
		f := newTestField(t, types, n, s, arena, hoods)
		rng := rand.New(rand.NewPCG(17, 19))
		for i := 0; i < 500; i++ {
			f.SampleQuadrant(rng, TopLeft)
		}
		for id := 0; id < arena.Len(); id++ {
			p := arena.Get(PatchID(id))
			if len(p.Items) == 0 {
				t.Fatalf("%s: patch %v stayed empty", s, p.Pos)
			}
			origin := p.Pos.Scale(n)
			for _, it := range p.Items {
				if q := QuadrantOf(it.Pos.Sub(origin), n); q != TopLeft {
					t.Fatalf("%s: item at %v lies in %s", s, it.Pos, q)
				}
			}
		}
	}
}

func TestSample_DeterministicForSeed(t *testing.T) {
	types := zooTypes()
	run := func() []Item {
		arena, hoods := gridWorld(2, 2)
		f := newTestField(t, types, 4, StrategyMetropolisHastings, arena, hoods)
		rng := rand.New(rand.NewPCG(23, 29))
		for i := 0; i < 3000; i++ {
			f.Sample(rng)
		}
		var out []Item
		for id := 0; id < arena.Len(); id++ {
			out = append(out, arena.Get(PatchID(id)).Items...)
		}
		return out
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("runs differ in size: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs differ at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSampleLogits(t *testing.T) {
	lp := []float64{math.Inf(-1), 0, math.Log(3)}
	if got := sampleLogits(append([]float64(nil), lp...), 0.2); got != 1 {
		t.Fatalf("u=0.2: got %d want 1", got)
	}
	if got := sampleLogits(append([]float64(nil), lp...), 0.3); got != 2 {
		t.Fatalf("u=0.3: got %d want 2", got)
	}
	if got := sampleLogits(append([]float64(nil), lp...), 0.9999999); got != 2 {
		t.Fatalf("u near 1: got %d want 2", got)
	}
	if got := sampleLogits([]float64{math.Inf(-1), 0}, 1e-9); got != 1 {
		t.Fatalf("zero-weight entry chosen: %d", got)
	}
}

func TestUniformOpenInterval(t *testing.T) {
	if u := uniform(constRNG(0)); u <= 0 || u >= 1 {
		t.Fatalf("uniform(0) = %v", u)
	}
	if u := uniform(constRNG(math.MaxUint64)); u <= 0 || u >= 1 {
		t.Fatalf("uniform(max) = %v", u)
	}
}

type constRNG uint64

func (c constRNG) Uint64() uint64 { return uint64(c) }
