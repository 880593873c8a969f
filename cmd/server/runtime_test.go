package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/multiworld"
	"gibbsworld.ai/internal/sim/tuning"
	"gibbsworld.ai/internal/sim/world/terrain/store"
)

func testTuning() tuning.Tuning {
	tune := tuning.Defaults()
	tune.PatchSize = 32
	tune.MCMCIterations = 3
	tune.Workers = 2
	tune.RegenIntervalMs = 0
	tune.EpochLength = 0
	tune.KeepSnapshots = 2
	return tune
}

func testItems(t *testing.T) *catalogs.ItemCatalog {
	t.Helper()
	cat, err := catalogs.Load(filepath.Join("..", "..", "configs", "items.yaml"))
	if err != nil {
		t.Fatalf("load items: %v", err)
	}
	return cat
}

func TestWorldRuntime_SnapshotAndResume(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	rtCfg := serverRuntimeConfig{DataDir: t.TempDir(), LoadLatest: true}
	spec := multiworld.WorldSpec{ID: "meadow"}
	tune := testTuning()
	cat := testItems(t)

	rt, err := buildWorldRuntime(rtCfg, spec, tune, cat, logger)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := rt.world.Generate(context.Background(), []store.PatchKey{{PX: 0, PY: 0}}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rt.world.StepRegen()
	rt.world.StepRegen()
	path, err := rt.writeSnapshot(rt.world.ExportSnapshot(), tune)
	if err != nil {
		t.Fatalf("writeSnapshot: %v", err)
	}
	if got := latestSnapshot(rt.dir); got != path {
		t.Fatalf("latestSnapshot = %q, want %q", got, path)
	}
	fixed := rt.world.Metrics().FixedPatches
	rt.world.Close()
	rt.Close()

	again, err := buildWorldRuntime(rtCfg, spec, tune, cat, logger)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	defer again.Close()
	defer again.world.Close()
	if again.world.CurrentTime() != 2 {
		t.Fatalf("resumed time = %d", again.world.CurrentTime())
	}
	if got := again.world.Metrics().FixedPatches; got != fixed {
		t.Fatalf("resumed fixed patches = %d, want %d", got, fixed)
	}
}

func TestWriteMetrics(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	rtCfg := serverRuntimeConfig{DataDir: t.TempDir(), DisableDB: true}
	cfg := multiworld.Config{DefaultWorldID: "a", Worlds: []multiworld.WorldSpec{{ID: "a"}, {ID: "b", SeedOffset: 1}}}
	tune := testTuning()
	cat := testItems(t)

	worlds := map[string]*worldRuntime{}
	runtimes := map[string]*multiworld.Runtime{}
	for _, spec := range cfg.Worlds {
		rt, err := buildWorldRuntime(rtCfg, spec, tune, cat, logger)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		defer rt.Close()
		worlds[spec.ID] = rt
		runtimes[spec.ID] = &multiworld.Runtime{Spec: spec, World: rt.world}
	}
	mgr, err := multiworld.NewManager(cfg, runtimes)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer mgr.Close()

	var buf bytes.Buffer
	writeMetrics(&buf, mgr, worlds)
	out := buf.String()
	for _, want := range []string{
		`gibbsworld_world_time{world="a"} 0`,
		`gibbsworld_world_time{world="b"} 0`,
		`gibbsworld_world_patches{world="a",state="fixed"} 0`,
		"# TYPE gibbsworld_sampler_moves_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "gibbsworld_index_queue_depth") {
		t.Fatalf("index metrics written with the index disabled")
	}
}
