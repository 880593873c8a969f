package store

import (
	"context"
	"slices"

	"gibbsworld.ai/internal/sim/field"
	"gibbsworld.ai/internal/sim/geom"
)

func (s *PatchStore) InBounds(k PatchKey) bool {
	if s.Gen.BoundaryR <= 0 {
		return true
	}
	r := s.Gen.BoundaryR
	return k.PX >= -r && k.PX <= r && k.PY >= -r && k.PY <= r
}

// KeyAt returns the key of the patch containing world cell p.
func (s *PatchStore) KeyAt(p field.Position) PatchKey {
	n := int64(s.Gen.PatchSize)
	return PatchKey{PX: geom.FloorDiv(p.X, n), PY: geom.FloorDiv(p.Y, n)}
}

func (s *PatchStore) LoadedPatchKeys() []PatchKey {
	keys := make([]PatchKey, 0, len(s.Patches))
	for k := range s.Patches {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []PatchKey) {
	slices.SortFunc(keys, func(a, b PatchKey) int {
		if a.PX != b.PX {
			return cmpInt64(a.PX, b.PX)
		}
		return cmpInt64(a.PY, b.PY)
	})
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// GetOrGenPatch returns the fixed patch at (px, py), generating it at time
// now first if needed.
func (s *PatchStore) GetOrGenPatch(px, py int64, now uint64) (*field.Patch, error) {
	k := PatchKey{PX: px, PY: py}
	if p, ok := s.Patches[k]; ok && p.Fixed {
		return p, nil
	}
	if _, err := s.GenerateRegion(context.Background(), []PatchKey{k}, now); err != nil {
		return nil, err
	}
	return s.Patches[k], nil
}

// ItemAt returns the item at world cell p if its patch is loaded.
func (s *PatchStore) ItemAt(p field.Position) (field.Item, bool) {
	patch, ok := s.Patches[s.KeyAt(p)]
	if !ok {
		return field.Item{}, false
	}
	if i := patch.IndexAt(p); i >= 0 {
		return patch.Items[i], true
	}
	return field.Item{}, false
}

// ItemsIn lists items of loaded patches inside the inclusive rectangle
// [min, max], ordered by position.
func (s *PatchStore) ItemsIn(min, max field.Position) []field.Item {
	lo, hi := s.KeyAt(min), s.KeyAt(max)
	var out []field.Item
	for px := lo.PX; px <= hi.PX; px++ {
		for py := lo.PY; py <= hi.PY; py++ {
			p, ok := s.Patches[PatchKey{PX: px, PY: py}]
			if !ok {
				continue
			}
			for _, it := range p.Items {
				if it.Pos.X >= min.X && it.Pos.X <= max.X && it.Pos.Y >= min.Y && it.Pos.Y <= max.Y {
					out = append(out, it)
				}
			}
		}
	}
	return sortedItems(out)
}

func sortedItems(items []field.Item) []field.Item {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b field.Item) int {
		if a.Pos.Y != b.Pos.Y {
			return cmpInt64(a.Pos.Y, b.Pos.Y)
		}
		return cmpInt64(a.Pos.X, b.Pos.X)
	})
	return out
}

// Grid returns the patch as n*n cell values indexed x + y*n: 0 for empty,
// item type + 1 otherwise. ok is false if the patch is not loaded.
func (s *PatchStore) Grid(k PatchKey) (grid []uint16, ok bool) {
	p, ok := s.Patches[k]
	if !ok {
		return nil, false
	}
	n := int64(s.Gen.PatchSize)
	grid = make([]uint16, n*n)
	origin := k.Pos().Scale(n)
	for _, it := range p.Items {
		local := it.Pos.Sub(origin)
		grid[local.X+local.Y*n] = uint16(it.Type + 1)
	}
	return grid, true
}

// Counts returns per-type item counts over the given patches.
func (s *PatchStore) Counts(keys []PatchKey) []int {
	out := make([]int, len(s.Types))
	for _, k := range keys {
		if p, ok := s.Patches[k]; ok {
			for _, it := range p.Items {
				out[it.Type]++
			}
		}
	}
	return out
}
