package indexdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gibbsworld.ai/internal/persistence/snapshot"
	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqRegen}

	s.RecordPatch(PatchRow{PX: 1})
	s.RecordRegen(RegenRow{Time: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropPatchTotal != 1 || st.DropRegenTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drop stats: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WriteAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.RecordPatch(PatchRow{PX: 0, PY: 0, Fixed: true, Items: 5, Digest: "aa"})
	s.RecordPatch(PatchRow{PX: 3, PY: 0, Fixed: false, Items: 1, Digest: "bb"})
	s.RecordRegen(RegenRow{Time: 1, Patches: 1, Births: 2})
	s.RecordRegen(RegenRow{Time: 2, Patches: 1, Deaths: 1})
	s.RecordSnapshot("/w/snapshots/2.snap.zst", snapshot.SnapshotV1{
		Header:    snapshot.Header{Time: 2, Items: 5},
		Seed:      9,
		PatchSize: 8,
		Patches:   []snapshot.PatchV1{{}},
	})
	cat := &catalogs.ItemCatalog{Types: []catalogs.ItemType{{Name: "banana"}}, Digest: "cafe"}
	if err := s.UpsertCatalogs(cat, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("open ro: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	snaps, err := Snapshots(ctx, db, 10)
	if err != nil || len(snaps) != 1 || snaps[0].Items != 5 || snaps[0].Patches != 1 {
		t.Fatalf("snapshots: %+v %v", snaps, err)
	}
	passes, err := RegenPasses(ctx, db, 2, 10)
	if err != nil || len(passes) != 1 || passes[0].Deaths != 1 {
		t.Fatalf("regen passes: %+v %v", passes, err)
	}
	patches, err := Patches(ctx, db, 0, 0, 1, 1)
	if err != nil || len(patches) != 1 || !patches[0].Fixed || patches[0].Digest != "aa" {
		t.Fatalf("patches: %+v %v", patches, err)
	}
	if d, err := CatalogDigest(ctx, db, "items"); err != nil || d != "cafe" {
		t.Fatalf("catalog digest: %q %v", d, err)
	}
	if d, err := CatalogDigest(ctx, db, "missing"); err != nil || d != "" {
		t.Fatalf("missing catalog: %q %v", d, err)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestNilIndexIsNoop(t *testing.T) {
	var s *SQLiteIndex
	s.RecordPatch(PatchRow{})
	s.RecordSnapshot("x", snapshot.SnapshotV1{})
	if err := s.UpsertCatalogs(nil, tuning.Tuning{}); err != nil {
		t.Fatalf("nil upsert: %v", err)
	}
	if st := s.Stats(); st != (Stats{}) {
		t.Fatalf("nil stats: %+v", st)
	}
}
