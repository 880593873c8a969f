package store

import (
	"fmt"

	snapv1 "gibbsworld.ai/internal/persistence/snapshot"
	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/field"
)

// ExportPatches converts the patches at keys into snapshot form. Items are
// written in position order.
func ExportPatches(patches map[PatchKey]*field.Patch, keys []PatchKey) []snapv1.PatchV1 {
	out := make([]snapv1.PatchV1, 0, len(keys))
	for _, k := range keys {
		p := patches[k]
		if p == nil {
			continue
		}
		items := sortedItems(p.Items)
		pv := snapv1.PatchV1{PX: k.PX, PY: k.PY, Fixed: p.Fixed, Items: make([]snapv1.ItemV1, len(items))}
		for i, it := range items {
			pv.Items[i] = snapv1.ItemV1{
				Type:         it.Type,
				X:            it.Pos.X,
				Y:            it.Pos.Y,
				CreationTime: it.CreationTime,
				DeletionTime: it.DeletionTime,
			}
		}
		out = append(out, pv)
	}
	return out
}

// ImportPatches rebuilds a patch store from snapshot patches. Every item must
// lie inside its patch, reference a known type, and not share a cell.
func ImportPatches(g WorldGen, types []catalogs.ItemType, patches []snapv1.PatchV1) (*PatchStore, error) {
	s, err := NewPatchStore(g, types)
	if err != nil {
		return nil, err
	}
	n := int64(g.PatchSize)
	for _, pv := range patches {
		k := PatchKey{PX: pv.PX, PY: pv.PY}
		if _, dup := s.Patches[k]; dup {
			s.Close()
			return nil, fmt.Errorf("%w: duplicate patch %d,%d", ErrBadPatch, k.PX, k.PY)
		}
		p := &field.Patch{Pos: k.Pos(), Fixed: pv.Fixed, Items: make([]field.Item, 0, len(pv.Items))}
		origin := k.Pos().Scale(n)
		seen := make(map[field.Position]bool, len(pv.Items))
		for _, iv := range pv.Items {
			pos := field.Position{X: iv.X, Y: iv.Y}
			local := pos.Sub(origin)
			switch {
			case iv.Type < 0 || iv.Type >= len(types):
				s.Close()
				return nil, fmt.Errorf("%w: patch %d,%d item type %d", ErrBadPatch, k.PX, k.PY, iv.Type)
			case local.X < 0 || local.X >= n || local.Y < 0 || local.Y >= n:
				s.Close()
				return nil, fmt.Errorf("%w: item %v outside patch %d,%d", ErrBadPatch, pos, k.PX, k.PY)
			case seen[pos]:
				s.Close()
				return nil, fmt.Errorf("%w: two items at %v", ErrBadPatch, pos)
			}
			seen[pos] = true
			p.Items = append(p.Items, field.Item{
				Type:         iv.Type,
				Pos:          pos,
				CreationTime: iv.CreationTime,
				DeletionTime: iv.DeletionTime,
			})
		}
		s.Patches[k] = p
	}
	return s, nil
}
