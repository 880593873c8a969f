package world

import (
	"errors"
	"fmt"

	"gibbsworld.ai/internal/persistence/snapshot"
	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/field"
	"gibbsworld.ai/internal/sim/world/terrain/store"
)

var ErrSnapshotMismatch = errors.New("snapshot does not match world config")

// ExportSnapshot captures every loaded patch, fixed or not, together with the
// catalog and generation parameters needed to resume. It must only be called
// from the Run goroutine, or when Run is not running.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	keys := w.store.LoadedPatchKeys()
	patches := store.ExportPatches(w.store.Patches, keys)
	items := 0
	for _, p := range patches {
		items += len(p.Items)
	}
	types := make([]snapshot.ItemTypeV1, len(w.catalog.Types))
	for i, t := range w.catalog.Types {
		types[i] = snapshot.ItemTypeV1{
			Name:            t.Name,
			Scent:           t.Scent,
			Color:           t.Color,
			RequiredCounts:  t.RequiredCounts,
			RequiredCosts:   t.RequiredCosts,
			BlocksMovement:  t.BlocksMovement,
			VisualOcclusion: t.VisualOcclusion,
			Lifetime:        t.Lifetime,
			Intensity:       t.Intensity,
			Interactions:    t.Interactions,
			Regeneration:    t.Regeneration,
		}
	}
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Time:    w.CurrentTime(),
			Patches: len(patches),
			Items:   items,
		},
		Seed:           w.cfg.Seed,
		PatchSize:      w.cfg.PatchSize,
		Strategy:       w.cfg.Strategy.String(),
		MCMCIterations: w.cfg.MCMCIterations,
		BoundaryR:      w.cfg.BoundaryR,
		CatalogDigest:  w.catalog.Digest,
		ItemTypes:      types,
		Patches:        patches,
	}
}

// CatalogFromSnapshot rebuilds the item catalog stored in snap.
func CatalogFromSnapshot(snap snapshot.SnapshotV1) (*catalogs.ItemCatalog, error) {
	types := make([]catalogs.ItemType, len(snap.ItemTypes))
	for i, t := range snap.ItemTypes {
		types[i] = catalogs.ItemType{
			Name:            t.Name,
			Scent:           t.Scent,
			Color:           t.Color,
			RequiredCounts:  t.RequiredCounts,
			RequiredCosts:   t.RequiredCosts,
			BlocksMovement:  t.BlocksMovement,
			VisualOcclusion: t.VisualOcclusion,
			Lifetime:        t.Lifetime,
			Intensity:       t.Intensity,
			Interactions:    t.Interactions,
			Regeneration:    t.Regeneration,
		}
	}
	cat, err := catalogs.NewItemCatalog(types)
	if err != nil {
		return nil, fmt.Errorf("snapshot catalog: %w", err)
	}
	if snap.CatalogDigest != "" && cat.Digest != snap.CatalogDigest {
		return nil, fmt.Errorf("%w: catalog digest %s, stored %s", ErrSnapshotMismatch, cat.Digest, snap.CatalogDigest)
	}
	return cat, nil
}

// FromSnapshot resumes a world from snap. The generation parameters stored in
// the snapshot override cfg, since changing them would make already fixed
// patches inconsistent with new ones; runtime settings come from cfg.
func FromSnapshot(cfg WorldConfig, snap snapshot.SnapshotV1) (*World, error) {
	if cfg.ID != "" && snap.Header.WorldID != "" && cfg.ID != snap.Header.WorldID {
		return nil, fmt.Errorf("%w: world id %q, snapshot %q", ErrSnapshotMismatch, cfg.ID, snap.Header.WorldID)
	}
	cat, err := CatalogFromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	strategy, err := field.ParseStrategy(snap.Strategy)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if snap.Header.WorldID != "" {
		cfg.ID = snap.Header.WorldID
	}
	cfg.Seed = snap.Seed
	cfg.PatchSize = snap.PatchSize
	cfg.Strategy = strategy
	cfg.MCMCIterations = snap.MCMCIterations
	cfg.BoundaryR = snap.BoundaryR
	cfg.applyDefaults()

	s, err := store.ImportPatches(genOf(cfg), cat.Types, snap.Patches)
	if err != nil {
		return nil, err
	}
	w := newWorld(cfg, cat, s)
	w.time.Store(snap.Header.Time)
	w.publishMetrics(0)
	return w, nil
}
