package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gibbsworld.ai/internal/sim/field"
	"gibbsworld.ai/internal/sim/world/terrain/gen"
)

// GenerateRegion samples every requested patch that is not yet fixed,
// together with a one-patch margin of unfixed neighbors, then marks the
// requested patches Fixed. Fixed patches around the region are read as
// boundary conditions and never modified. Out-of-bounds keys are skipped.
//
// Each pass walks the quadrant phases in field.Phases order. Inside a phase,
// patches are split into four colors by coordinate parity; patches of one
// color are never adjacent, so a color is sampled concurrently by the
// worker pool. Every (patch, pass, phase) draws from its own stream, so the
// result depends only on the seed and the set of patches involved.
//
// Items born here record CreationTime = now, the world's current simulated
// time. On cancellation the sampled patches are left unfixed and ctx.Err()
// is returned.
func (s *PatchStore) GenerateRegion(ctx context.Context, keys []PatchKey, now uint64) (field.Stats, error) {
	var stats field.Stats
	targets := s.pendingTargets(keys)
	if len(targets) == 0 {
		return stats, nil
	}
	start := time.Now()

	sampled := s.withMargin(targets)
	arena, ids := s.buildArena(withNeighbors(sampled, s.InBounds))
	cfg := field.Config{N: s.Gen.PatchSize, Strategy: s.Gen.Strategy, Now: now}
	fields := make([]*field.Field, len(sampled))
	for i, k := range sampled {
		h := neighborhoodIn(ids, k)
		f, err := field.New(s.cache, arena, []field.Neighborhood{h}, cfg)
		if err != nil {
			return stats, fmt.Errorf("generate %v: %w", k, err)
		}
		fields[i] = f
	}

	var colors [4][]int
	for i, k := range sampled {
		c := parity(k.PX) | parity(k.PY)<<1
		colors[c] = append(colors[c], i)
	}

	pool := newWorkerPool(s.Gen.Workers)
	defer pool.stop()
	for pass := 0; pass < s.Gen.MCMCIterations; pass++ {
		for phase, q := range field.Phases {
			if err := ctx.Err(); err != nil {
				return sumStats(fields), err
			}
			for _, color := range colors {
				pool.run(color, func(i int) {
					k := sampled[i]
					rng := gen.PatchRand(s.Gen.Seed, k.PX, k.PY, uint64(pass), uint8(phase))
					fields[i].SampleQuadrant(rng, q)
				})
			}
		}
	}

	for _, k := range targets {
		s.Patches[k].Fixed = true
	}
	stats = sumStats(fields)
	s.logger.Printf("generated %d patches (%d sampled) in %s: births=%d deaths=%d gibbs_changes=%d",
		len(targets), len(sampled), time.Since(start).Round(time.Millisecond), stats.Births, stats.Deaths, stats.GibbsChanges)
	return stats, nil
}

// pendingTargets returns the sorted, deduplicated in-bounds keys that are
// not fixed yet.
func (s *PatchStore) pendingTargets(keys []PatchKey) []PatchKey {
	seen := map[PatchKey]bool{}
	var out []PatchKey
	for _, k := range keys {
		if seen[k] || !s.InBounds(k) {
			continue
		}
		seen[k] = true
		if p, ok := s.Patches[k]; ok && p.Fixed {
			continue
		}
		out = append(out, k)
	}
	sortKeys(out)
	return out
}

// withMargin returns targets plus their unfixed in-bounds neighbors,
// allocating empty patches for any that are missing.
func (s *PatchStore) withMargin(targets []PatchKey) []PatchKey {
	all := withNeighbors(targets, s.InBounds)
	out := all[:0]
	for _, k := range all {
		p, ok := s.Patches[k]
		if !ok {
			p = &field.Patch{Pos: k.Pos()}
			s.Patches[k] = p
		}
		if !p.Fixed {
			out = append(out, k)
		}
	}
	return out
}

// withNeighbors returns keys plus their eight neighbors that pass keep,
// sorted and deduplicated.
func withNeighbors(keys []PatchKey, keep func(PatchKey) bool) []PatchKey {
	seen := map[PatchKey]bool{}
	var out []PatchKey
	for _, k := range keys {
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				nk := PatchKey{PX: k.PX + dx, PY: k.PY + dy}
				if seen[nk] || !keep(nk) {
					continue
				}
				seen[nk] = true
				out = append(out, nk)
			}
		}
	}
	sortKeys(out)
	return out
}

// buildArena registers the loaded patches among keys in an arena.
func (s *PatchStore) buildArena(keys []PatchKey) (*field.Arena, map[PatchKey]field.PatchID) {
	arena := field.NewArena(len(keys))
	ids := make(map[PatchKey]field.PatchID, len(keys))
	for _, k := range keys {
		if p, ok := s.Patches[k]; ok {
			ids[k] = arena.Add(p)
		}
	}
	return arena, ids
}

func neighborhoodIn(ids map[PatchKey]field.PatchID, k PatchKey) field.Neighborhood {
	return field.NeighborhoodOf(ids[k], k.Pos(), func(p field.Position) (field.PatchID, bool) {
		id, ok := ids[PatchKey{PX: p.X, PY: p.Y}]
		return id, ok
	})
}

// Neighborhood returns the loaded patches visible from each quadrant of the
// patch at k, indexed by field.Quadrant. ok is false if k is not loaded.
func (s *PatchStore) Neighborhood(k PatchKey) (quadrants [4][]*field.Patch, ok bool) {
	if _, ok := s.Patches[k]; !ok {
		return quadrants, false
	}
	arena, ids := s.buildArena(withNeighbors([]PatchKey{k}, func(PatchKey) bool { return true }))
	h := neighborhoodIn(ids, k)
	for q := range h.Quadrants {
		for _, id := range h.Quadrants[q].List() {
			quadrants[q] = append(quadrants[q], arena.Get(id))
		}
	}
	return quadrants, true
}

// Regenerate runs one regeneration move over every fixed patch at simulated
// time t. Unfixed margin patches are only read.
func (s *PatchStore) Regenerate(rng field.RNG, t uint64) (field.Stats, error) {
	var fixed []PatchKey
	for _, k := range s.LoadedPatchKeys() {
		if s.Patches[k].Fixed {
			fixed = append(fixed, k)
		}
	}
	if len(fixed) == 0 {
		return field.Stats{}, nil
	}
	arena, ids := s.buildArena(s.LoadedPatchKeys())
	hoods := make([]field.Neighborhood, len(fixed))
	for i, k := range fixed {
		hoods[i] = neighborhoodIn(ids, k)
	}
	f, err := field.New(s.cache, arena, hoods, field.Config{N: s.Gen.PatchSize, Strategy: s.Gen.Strategy})
	if err != nil {
		return field.Stats{}, fmt.Errorf("regenerate: %w", err)
	}
	f.Regenerate(rng, t)
	return f.Stats(), nil
}

func parity(v int64) int { return int(v & 1) }

func sumStats(fields []*field.Field) field.Stats {
	var out field.Stats
	for _, f := range fields {
		if f != nil {
			out.Add(f.Stats())
		}
	}
	return out
}

// workerPool runs batches of index jobs on a fixed set of goroutines. run
// returns once the whole batch is done.
type workerPool struct {
	workers int
	work    chan func()
	wg      sync.WaitGroup
	once    sync.Once
}

func newWorkerPool(workers int) *workerPool {
	if workers < 1 {
		workers = 1
	}
	p := &workerPool{workers: workers}
	if workers == 1 {
		return p
	}
	p.work = make(chan func(), workers)
	for i := 0; i < workers; i++ {
		go func() {
			for job := range p.work {
				job()
			}
		}()
	}
	return p
}

func (p *workerPool) run(jobs []int, fn func(i int)) {
	if p.work == nil || len(jobs) == 1 {
		for _, i := range jobs {
			fn(i)
		}
		return
	}
	p.wg.Add(len(jobs))
	for _, i := range jobs {
		p.work <- func() {
			defer p.wg.Done()
			fn(i)
		}
	}
	p.wg.Wait()
}

func (p *workerPool) stop() {
	p.once.Do(func() {
		if p.work != nil {
			close(p.work)
		}
	})
}
