// Command gen generates a rectangle of patches headlessly, optionally runs
// regeneration passes over it, and writes the result as a snapshot plus CSV
// tables.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gibbsworld.ai/internal/persistence/archive"
	"gibbsworld.ai/internal/persistence/export"
	"gibbsworld.ai/internal/persistence/snapshot"
	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/multiworld"
	"gibbsworld.ai/internal/sim/tuning"
	"gibbsworld.ai/internal/sim/world"
	"gibbsworld.ai/internal/sim/world/terrain/store"
)

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		worldsPath = flag.String("worlds", "", "multi-world config path (default: <configs>/worlds.yaml if present)")
		worldID    = flag.String("world", "", "world id from the worlds config (default world if empty)")
		seed       = flag.Int64("seed", 0, "override the tuning seed (0 keeps tuning)")
		rect       = flag.String("rect", "-2,-2:2,2", "patch rectangle px1,py1:px2,py2")
		regen      = flag.Int("regen", 0, "regeneration passes to run after generation")
		outDir     = flag.String("out", "./out", "output directory")
		noCSV      = flag.Bool("no_csv", false, "skip CSV export")
		timeout    = flag.Duration("timeout", 10*time.Minute, "generation deadline")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[gen] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	cat, err := catalogs.Load(filepath.Join(*configDir, "items.yaml"))
	if err != nil {
		logger.Fatalf("load item catalog: %v", err)
	}

	wp := strings.TrimSpace(*worldsPath)
	if wp == "" {
		if p := filepath.Join(*configDir, "worlds.yaml"); fileExists(p) {
			wp = p
		}
	}
	mcfg, err := multiworld.Load(wp)
	if err != nil {
		logger.Fatalf("load worlds config: %v", err)
	}
	id := strings.TrimSpace(*worldID)
	if id == "" {
		id = mcfg.DefaultWorldID
	}
	spec, ok := mcfg.WorldSpecByID(id)
	if !ok {
		logger.Fatalf("unknown world %q (have %s)", id, strings.Join(mcfg.WorldIDs(), ","))
	}
	wcfg, err := spec.WorldConfig(tune)
	if err != nil {
		logger.Fatalf("world %s: %v", id, err)
	}
	wcfg.SnapshotEveryPasses = 0

	keys, err := rectKeys(*rect)
	if err != nil {
		logger.Fatalf("bad -rect: %v", err)
	}

	w, err := world.New(wcfg, cat)
	if err != nil {
		logger.Fatalf("world %s: %v", id, err)
	}
	defer w.Close()
	w.SetLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	start := time.Now()
	if err := w.Generate(ctx, keys); err != nil {
		logger.Fatalf("generate: %v", err)
	}
	for i := 0; i < *regen; i++ {
		w.StepRegen()
	}
	elapsed := time.Since(start)

	snap := w.ExportSnapshot()
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatalf("mkdir: %v", err)
	}
	snapPath := filepath.Join(*outDir, archive.SnapshotName(snap.Header.Time))
	if err := snapshot.WriteSnapshot(snapPath, snap); err != nil {
		logger.Fatalf("write snapshot: %v", err)
	}
	if !*noCSV {
		if err := export.WriteDir(*outDir, snap); err != nil {
			logger.Fatalf("export csv: %v", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(struct {
		WorldID   string             `json:"world_id"`
		Requested int                `json:"requested_patches"`
		ElapsedMS int64              `json:"elapsed_ms"`
		Snapshot  string             `json:"snapshot"`
		Metrics   world.WorldMetrics `json:"metrics"`
	}{
		WorldID:   w.ID(),
		Requested: len(keys),
		ElapsedMS: elapsed.Milliseconds(),
		Snapshot:  snapPath,
		Metrics:   w.Metrics(),
	})
}

// rectKeys expands "px1,py1:px2,py2" into the row-major keys of the
// inclusive rectangle.
func rectKeys(s string) ([]store.PatchKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("expected px1,py1:px2,py2")
	}
	a, err := parsePair(parts[0])
	if err != nil {
		return nil, err
	}
	b, err := parsePair(parts[1])
	if err != nil {
		return nil, err
	}
	minX, maxX := min(a[0], b[0]), max(a[0], b[0])
	minY, maxY := min(a[1], b[1]), max(a[1], b[1])
	dx, dy := uint64(maxX)-uint64(minX), uint64(maxY)-uint64(minY)
	if dx >= 1<<16 || dy >= 1<<16 || (dx+1)*(dy+1) > 1<<16 {
		return nil, fmt.Errorf("rectangle too large")
	}
	var keys []store.PatchKey
	for py := minY; py <= maxY; py++ {
		for px := minX; px <= maxX; px++ {
			keys = append(keys, store.PatchKey{PX: px, PY: py})
		}
	}
	return keys, nil
}

func parsePair(s string) ([2]int64, error) {
	var v [2]int64
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected px,py")
	}
	for i := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 64)
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
