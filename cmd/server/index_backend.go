package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gibbsworld.ai/internal/persistence/indexdb"
	"gibbsworld.ai/internal/persistence/snapshot"
	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/tuning"
	"gibbsworld.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.Index
	Close() error
	Stats() indexdb.Stats
	UpsertCatalogs(cat *catalogs.ItemCatalog, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

// openRuntimeIndex opens the read-model index selected by GW_INDEX_BACKEND.
// It returns nil when indexing is disabled.
func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("GW_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported GW_INDEX_BACKEND: %s", backend)
	}
}
