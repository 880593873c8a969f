package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	snapv1 "gibbsworld.ai/internal/persistence/snapshot"
	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/energy"
	"gibbsworld.ai/internal/sim/field"
)

func testTypes() []catalogs.ItemType {
	repel := energy.MustInteraction(energy.InteractionPiecewiseBox, 2, 3, -4, -1)
	types := []catalogs.ItemType{
		{Name: "banana", Intensity: energy.MustIntensity(energy.IntensityConstant, -2)},
		{Name: "wall", Intensity: energy.MustIntensity(energy.IntensityConstant, -3)},
	}
	for i := range types {
		types[i].Interactions = []energy.Interaction{repel, {}}
	}
	types[1].Interactions[1] = energy.MustInteraction(energy.InteractionCross, 1, 3, 2, -2, 1, -1)
	return types
}

func newTestStore(t *testing.T, g WorldGen) *PatchStore {
	t.Helper()
	s, err := NewPatchStore(g, testTypes())
	if err != nil {
		t.Fatalf("NewPatchStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func testGen(workers int) WorldGen {
	return WorldGen{Seed: 99, PatchSize: 8, MCMCIterations: 30, Strategy: field.StrategyGibbs, Workers: workers}
}

func TestGenerateRegion_FixesTargetsAndSamplesMargin(t *testing.T) {
	s := newTestStore(t, testGen(1))
	stats, err := s.GenerateRegion(context.Background(), []PatchKey{{0, 0}, {1, 0}, {0, 0}}, 0)
	if err != nil {
		t.Fatalf("GenerateRegion: %v", err)
	}
	if len(s.Patches) != 4*3 {
		t.Fatalf("expected 2 targets + margin = 12 patches, got %d", len(s.Patches))
	}
	fixed := 0
	for k, p := range s.Patches {
		if p.Fixed {
			fixed++
			if k != (PatchKey{0, 0}) && k != (PatchKey{1, 0}) {
				t.Fatalf("margin patch %v marked fixed", k)
			}
		}
	}
	if fixed != 2 {
		t.Fatalf("expected 2 fixed patches, got %d", fixed)
	}
	if stats.GibbsCells == 0 || stats.GibbsChanges == 0 {
		t.Fatalf("no sampling happened: %+v", stats)
	}
	for k, p := range s.Patches {
		origin := k.Pos().Scale(8)
		seen := map[field.Position]bool{}
		for _, it := range p.Items {
			local := it.Pos.Sub(origin)
			if local.X < 0 || local.X >= 8 || local.Y < 0 || local.Y >= 8 {
				t.Fatalf("item %v outside patch %v", it.Pos, k)
			}
			if seen[it.Pos] {
				t.Fatalf("duplicate item at %v", it.Pos)
			}
			seen[it.Pos] = true
		}
	}
}

func TestGenerateRegion_FixedPatchesUntouched(t *testing.T) {
	s := newTestStore(t, testGen(1))
	p, err := s.GetOrGenPatch(0, 0, 0)
	if err != nil {
		t.Fatalf("GetOrGenPatch: %v", err)
	}
	before := PatchDigest(p)
	if _, err := s.GenerateRegion(context.Background(), []PatchKey{{1, 0}, {1, 1}}, 0); err != nil {
		t.Fatalf("GenerateRegion: %v", err)
	}
	if PatchDigest(s.Patches[PatchKey{0, 0}]) != before {
		t.Fatalf("fixed patch changed by neighboring generation")
	}
	again, err := s.GetOrGenPatch(0, 0, 0)
	if err != nil || again != p {
		t.Fatalf("GetOrGenPatch regenerated a fixed patch: %v", err)
	}
}

func TestGenerateRegion_DeterministicAcrossWorkers(t *testing.T) {
	keys := []PatchKey{{-1, -1}, {0, -1}, {-1, 0}, {0, 0}, {1, 0}, {2, 2}}
	var digests []map[PatchKey][32]byte
	for _, w := range []int{1, 4} {
		s := newTestStore(t, testGen(w))
		if _, err := s.GenerateRegion(context.Background(), keys, 0); err != nil {
			t.Fatalf("workers=%d: %v", w, err)
		}
		d := map[PatchKey][32]byte{}
		for k, p := range s.Patches {
			d[k] = PatchDigest(p)
		}
		digests = append(digests, d)
	}
	if len(digests[0]) != len(digests[1]) {
		t.Fatalf("patch sets differ: %d vs %d", len(digests[0]), len(digests[1]))
	}
	for k, d := range digests[0] {
		if digests[1][k] != d {
			t.Fatalf("patch %v differs between worker counts", k)
		}
	}
}

func TestGenerateRegion_Cancelled(t *testing.T) {
	s := newTestStore(t, testGen(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.GenerateRegion(ctx, []PatchKey{{0, 0}}, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p := s.Patches[PatchKey{0, 0}]; p == nil || p.Fixed {
		t.Fatalf("cancelled patch should exist unfixed: %+v", p)
	}
}

func TestGenerateRegion_Boundary(t *testing.T) {
	g := testGen(1)
	g.BoundaryR = 1
	s := newTestStore(t, g)
	if _, err := s.GenerateRegion(context.Background(), []PatchKey{{1, 1}, {5, 5}}, 0); err != nil {
		t.Fatalf("GenerateRegion: %v", err)
	}
	if _, ok := s.Patches[PatchKey{5, 5}]; ok {
		t.Fatalf("out-of-bounds patch generated")
	}
	for k := range s.Patches {
		if !s.InBounds(k) {
			t.Fatalf("margin patch %v outside boundary", k)
		}
	}
	if len(s.Patches) != 4 {
		t.Fatalf("expected 4 in-bounds patches around (1,1), got %d", len(s.Patches))
	}
}

func TestNeighborhood_Quadrants(t *testing.T) {
	s := newTestStore(t, testGen(1))
	for x := int64(0); x < 3; x++ {
		for y := int64(0); y < 3; y++ {
			s.Patches[PatchKey{x, y}] = &field.Patch{Pos: field.Position{X: x, Y: y}}
		}
	}
	q, ok := s.Neighborhood(PatchKey{1, 1})
	if !ok {
		t.Fatalf("center not loaded")
	}
	for i, list := range q {
		if len(list) != 4 || list[0] != s.Patches[PatchKey{1, 1}] {
			t.Fatalf("quadrant %s: %d patches", field.Quadrant(i), len(list))
		}
	}
	corner, _ := s.Neighborhood(PatchKey{0, 0})
	if len(corner[field.TopRight]) != 4 || len(corner[field.BottomLeft]) != 1 {
		t.Fatalf("corner quadrants: TR=%d BL=%d", len(corner[field.TopRight]), len(corner[field.BottomLeft]))
	}
	if _, ok := s.Neighborhood(PatchKey{9, 9}); ok {
		t.Fatalf("unloaded patch reported")
	}
}

func TestGridAndItemsIn(t *testing.T) {
	s := newTestStore(t, testGen(1))
	s.Patches[PatchKey{-1, 0}] = &field.Patch{
		Pos: field.Position{X: -1, Y: 0},
		Items: []field.Item{
			{Type: 1, Pos: field.Position{X: -1, Y: 7}},
			{Type: 0, Pos: field.Position{X: -8, Y: 0}},
		},
	}
	grid, ok := s.Grid(PatchKey{-1, 0})
	if !ok || len(grid) != 64 {
		t.Fatalf("grid: ok=%v len=%d", ok, len(grid))
	}
	if grid[0] != 1 || grid[7+7*8] != 2 {
		t.Fatalf("grid cells: %d %d", grid[0], grid[63])
	}
	items := s.ItemsIn(field.Position{X: -8, Y: 0}, field.Position{X: 0, Y: 7})
	if len(items) != 2 || items[0].Pos.Y != 0 {
		t.Fatalf("ItemsIn: %+v", items)
	}
	if got := s.ItemsIn(field.Position{X: -8, Y: 1}, field.Position{X: -2, Y: 7}); len(got) != 0 {
		t.Fatalf("ItemsIn excluded rectangle: %+v", got)
	}
	if it, ok := s.ItemAt(field.Position{X: -1, Y: 7}); !ok || it.Type != 1 {
		t.Fatalf("ItemAt: %+v %v", it, ok)
	}
	if got := s.KeyAt(field.Position{X: -9, Y: 8}); got != (PatchKey{-2, 1}) {
		t.Fatalf("KeyAt: %v", got)
	}
	if c := s.Counts([]PatchKey{{-1, 0}}); c[0] != 1 || c[1] != 1 {
		t.Fatalf("Counts: %v", c)
	}
}

func TestRegenerate_OnlyFixedPatches(t *testing.T) {
	s := newTestStore(t, testGen(1))
	if _, err := s.GenerateRegion(context.Background(), []PatchKey{{0, 0}}, 0); err != nil {
		t.Fatalf("GenerateRegion: %v", err)
	}
	margin := map[PatchKey][32]byte{}
	for k, p := range s.Patches {
		if !p.Fixed {
			margin[k] = PatchDigest(p)
		}
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for step := uint64(1); step <= 50; step++ {
		if _, err := s.Regenerate(rng, step); err != nil {
			t.Fatalf("Regenerate: %v", err)
		}
	}
	for k, d := range margin {
		if PatchDigest(s.Patches[k]) != d {
			t.Fatalf("margin patch %v modified by regeneration", k)
		}
	}
}

func TestGenerateRegion_LateItemsSurviveNextRegeneration(t *testing.T) {
	types := testTypes()
	for i := range types {
		types[i].Lifetime = 50
	}
	s, err := NewPatchStore(testGen(1), types)
	if err != nil {
		t.Fatalf("NewPatchStore: %v", err)
	}
	t.Cleanup(s.Close)

	const now = 1000
	if _, err := s.GenerateRegion(context.Background(), []PatchKey{{0, 0}}, now); err != nil {
		t.Fatalf("GenerateRegion: %v", err)
	}
	p := s.Patches[PatchKey{0, 0}]
	if len(p.Items) == 0 {
		t.Fatalf("no items generated")
	}
	for _, it := range p.Items {
		if it.CreationTime != now {
			t.Fatalf("item at %v created at %d, want %d", it.Pos, it.CreationTime, now)
		}
	}
	stats, err := s.Regenerate(rand.New(rand.NewPCG(3, 4)), now+1)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if stats.Expired != 0 {
		t.Fatalf("%d freshly generated items expired on the next pass", stats.Expired)
	}
}

func TestNewPatchStore_RejectsReachBeyondHalfPatch(t *testing.T) {
	types := testTypes()
	// sqrt(20) lets the outer ring reach 4 cells, which fits n=8 exactly.
	types[0].Interactions[0] = energy.MustInteraction(energy.InteractionPiecewiseBox, 2, 20, -4, -1)
	s, err := NewPatchStore(testGen(1), types)
	if err != nil {
		t.Fatalf("reach 4 at patch size 8: %v", err)
	}
	s.Close()

	types[0].Interactions[0] = energy.MustInteraction(energy.InteractionPiecewiseBox, 2, 26, -4, -1)
	if _, err := NewPatchStore(testGen(1), types); !errors.Is(err, catalogs.ErrReach) {
		t.Fatalf("reach 5 at patch size 8: expected ErrReach, got %v", err)
	}
}

func TestExportAndImportPatchesRoundTrip(t *testing.T) {
	g := testGen(1)
	s := newTestStore(t, g)
	if _, err := s.GenerateRegion(context.Background(), []PatchKey{{1, -2}}, 0); err != nil {
		t.Fatalf("GenerateRegion: %v", err)
	}
	keys := s.LoadedPatchKeys()
	exported := ExportPatches(s.Patches, keys)
	if len(exported) != len(keys) {
		t.Fatalf("expected %d exported patches, got %d", len(keys), len(exported))
	}
	imported, err := ImportPatches(g, testTypes(), exported)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	defer imported.Close()
	for _, k := range keys {
		got := imported.Patches[k]
		if got == nil {
			t.Fatalf("missing imported patch %v", k)
		}
		if got.Fixed != s.Patches[k].Fixed || PatchDigest(got) != PatchDigest(s.Patches[k]) {
			t.Fatalf("patch %v differs after round trip", k)
		}
	}
}

func TestImportPatchesRejectsInvalidShape(t *testing.T) {
	g := testGen(1)
	cases := map[string][]snapv1.PatchV1{
		"outside":   {{PX: 0, PY: 0, Items: []snapv1.ItemV1{{Type: 0, X: 8, Y: 0}}}},
		"bad type":  {{PX: 0, PY: 0, Items: []snapv1.ItemV1{{Type: 2, X: 1, Y: 1}}}},
		"collision": {{PX: 0, PY: 0, Items: []snapv1.ItemV1{{Type: 0, X: 1, Y: 1}, {Type: 1, X: 1, Y: 1}}}},
		"duplicate": {{PX: 0, PY: 0}, {PX: 0, PY: 0}},
	}
	for name, patches := range cases {
		if _, err := ImportPatches(g, testTypes(), patches); !errors.Is(err, ErrBadPatch) {
			t.Fatalf("%s: expected ErrBadPatch, got %v", name, err)
		}
	}
}
