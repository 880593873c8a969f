package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gibbsworld.ai/internal/persistence/archive"
	persistlog "gibbsworld.ai/internal/persistence/log"
	"gibbsworld.ai/internal/persistence/snapshot"
	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/multiworld"
	"gibbsworld.ai/internal/sim/tuning"
	"gibbsworld.ai/internal/sim/world"
)

type serverRuntimeConfig struct {
	DataDir    string
	DisableDB  bool
	LoadLatest bool
}

// worldRuntime bundles one hosted world with its persistence sinks.
type worldRuntime struct {
	spec   multiworld.WorldSpec
	world  *world.World
	dir    string
	idx    runtimeIndex
	events *persistlog.GenLogger
	snapCh chan snapshot.SnapshotV1
}

func (r *worldRuntime) Close() {
	if r.events != nil {
		_ = r.events.Close()
	}
	if r.idx != nil {
		_ = r.idx.Close()
	}
}

// buildWorldRuntime creates or resumes one world. A snapshot is resumed when
// one exists in the world directory and LoadLatest is set.
func buildWorldRuntime(rtCfg serverRuntimeConfig, spec multiworld.WorldSpec, tune tuning.Tuning, cat *catalogs.ItemCatalog, logger *log.Logger) (*worldRuntime, error) {
	dir := filepath.Join(rtCfg.DataDir, "worlds", spec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	wc, err := spec.WorldConfig(tune)
	if err != nil {
		return nil, err
	}

	var w *world.World
	snapPath := ""
	if rtCfg.LoadLatest {
		snapPath = latestSnapshot(dir)
	}
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot %s: %w", snapPath, err)
		}
		if snap.CatalogDigest != cat.Digest {
			logger.Printf("world %s: snapshot catalog digest %s differs from items catalog %s; using the snapshot's", spec.ID, snap.CatalogDigest, cat.Digest)
		}
		if w, err = world.FromSnapshot(wc, snap); err != nil {
			return nil, err
		}
		logger.Printf("world %s: resumed from %s time=%d patches=%d", spec.ID, filepath.Base(snapPath), w.CurrentTime(), snap.Header.Patches)
	} else {
		if w, err = world.New(wc, cat); err != nil {
			return nil, err
		}
	}
	w.SetLogger(log.New(os.Stdout, fmt.Sprintf("[world %s] ", spec.ID), log.LstdFlags|log.Lmicroseconds))

	rt := &worldRuntime{spec: spec, world: w, dir: dir, snapCh: make(chan snapshot.SnapshotV1, 2)}
	idx, err := openRuntimeIndex(dir, rtCfg.DisableDB)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("open index (%s): %w", spec.ID, err)
	}
	if idx != nil {
		rt.idx = idx
		if err := idx.UpsertCatalogs(w.Catalog(), tune); err != nil {
			logger.Printf("index db upsert catalogs (%s): %v", spec.ID, err)
		}
		w.SetIndex(idx)
	}
	rt.events = persistlog.NewGenLogger(dir)
	w.SetGenLogger(rt.events)
	w.SetSnapshotSink(rt.snapCh)
	return rt, nil
}

// runSnapshotWriter persists snapshots sent by the world loop until ctx is
// done.
func (r *worldRuntime) runSnapshotWriter(ctx context.Context, tune tuning.Tuning, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-r.snapCh:
			if _, err := r.writeSnapshot(snap, tune); err != nil {
				logger.Printf("world %s: %v", r.spec.ID, err)
			}
		}
	}
}

func (r *worldRuntime) writeSnapshot(snap snapshot.SnapshotV1, tune tuning.Tuning) (string, error) {
	dir := filepath.Join(r.dir, "snapshots")
	path := filepath.Join(dir, archive.SnapshotName(snap.Header.Time))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", fmt.Errorf("snapshot write: %w", err)
	}
	if r.idx != nil {
		r.idx.RecordSnapshot(path, snap)
	}
	if r.events != nil {
		_ = r.events.WriteSnapshot(persistlog.SnapshotEvent{Time: snap.Header.Time, Path: path, Items: snap.Header.Items})
	}
	if _, _, _, err := archive.ArchiveEpochSnapshot(r.dir, path, snap, tune.EpochLength); err != nil {
		return path, fmt.Errorf("archive epoch snapshot: %w", err)
	}
	if _, err := archive.PruneSnapshots(dir, tune.KeepSnapshots); err != nil {
		return path, fmt.Errorf("prune snapshots: %w", err)
	}
	return path, nil
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTime uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || t > bestTime {
			bestTime = t
			best = filepath.Join(dir, name)
		}
	}
	return best
}
