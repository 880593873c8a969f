package main

import (
	"fmt"
	"strconv"
	"strings"

	"gibbsworld.ai/internal/persistence/snapshot"
)

type snapshotSummary struct {
	WorldID        string         `json:"world_id"`
	Time           uint64         `json:"time"`
	Seed           int64          `json:"seed"`
	PatchSize      int            `json:"patch_size"`
	Strategy       string         `json:"strategy"`
	MCMCIterations int            `json:"mcmc_iterations"`
	BoundaryR      int64          `json:"boundary_r,omitempty"`
	CatalogDigest  string         `json:"catalog_digest"`
	Patches        int            `json:"patches"`
	FixedPatches   int            `json:"fixed_patches"`
	Items          int            `json:"items"`
	Counts         map[string]int `json:"counts"`
}

func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		WorldID:        snap.Header.WorldID,
		Time:           snap.Header.Time,
		Seed:           snap.Seed,
		PatchSize:      snap.PatchSize,
		Strategy:       snap.Strategy,
		MCMCIterations: snap.MCMCIterations,
		BoundaryR:      snap.BoundaryR,
		CatalogDigest:  snap.CatalogDigest,
		Patches:        len(snap.Patches),
		Counts:         map[string]int{},
	}
	for _, p := range snap.Patches {
		if p.Fixed {
			s.FixedPatches++
		}
		s.Items += len(p.Items)
		for _, it := range p.Items {
			name := fmt.Sprintf("type_%d", it.Type)
			if it.Type >= 0 && it.Type < len(snap.ItemTypes) {
				name = snap.ItemTypes[it.Type].Name
			}
			s.Counts[name]++
		}
	}
	return s
}

// resetPatches empties and unfixes every patch whose key lies in the
// inclusive rectangle [min, max]. The header item count is kept in sync.
func resetPatches(snap *snapshot.SnapshotV1, min, max [2]int64) (reset, removed int) {
	if snap == nil {
		return 0, 0
	}
	for i := range snap.Patches {
		p := &snap.Patches[i]
		if p.PX < min[0] || p.PX > max[0] || p.PY < min[1] || p.PY > max[1] {
			continue
		}
		removed += len(p.Items)
		p.Items = nil
		p.Fixed = false
		reset++
	}
	snap.Header.Items -= removed
	if snap.Header.Items < 0 {
		snap.Header.Items = 0
	}
	return reset, removed
}

func parseRect(s string) (min, max [2]int64, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected px1,py1:px2,py2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 2; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec2(s string) ([2]int64, error) {
	var v [2]int64
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected px,py")
	}
	for i := 0; i < 2; i++ {
		n, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 64)
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
