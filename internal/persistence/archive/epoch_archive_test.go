package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gibbsworld.ai/internal/persistence/snapshot"
)

func writeDummy(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestArchiveEpochSnapshot_CopiesEpochEnd(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")
	src := filepath.Join(worldDir, "snapshots", SnapshotName(200))
	writeDummy(t, src, "dummy")

	snap := snapshot.SnapshotV1{
		Header:    snapshot.Header{Version: 1, WorldID: "w1", Time: 200, Items: 3},
		Seed:      42,
		PatchSize: 8,
	}
	epoch, archivedPath, ok, err := ArchiveEpochSnapshot(worldDir, src, snap, 100)
	if err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	if epoch != 2 {
		t.Fatalf("epoch=%d want 2", epoch)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil || string(got) != "dummy" {
		t.Fatalf("archived content: %q %v", got, err)
	}
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	if err != nil {
		t.Fatalf("meta.json: %v", err)
	}
	var meta EpochArchiveMeta
	if err := json.Unmarshal(raw, &meta); err != nil || meta.Seed != 42 || meta.Items != 3 {
		t.Fatalf("meta: %+v %v", meta, err)
	}
}

func TestArchiveEpochSnapshot_SkipsMidEpoch(t *testing.T) {
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Time: 150}}
	if _, _, ok, err := ArchiveEpochSnapshot(t.TempDir(), "x", snap, 100); ok || err != nil {
		t.Fatalf("expected skip, got ok=%v err=%v", ok, err)
	}
	if _, _, ok, _ := ArchiveEpochSnapshot(t.TempDir(), "x", snap, 0); ok {
		t.Fatalf("epochLen 0 must disable archiving")
	}
}

func TestPruneSnapshots_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for _, tm := range []uint64{5, 100, 20, 3000} {
		writeDummy(t, filepath.Join(dir, SnapshotName(tm)), "x")
	}
	removed, err := PruneSnapshots(dir, 2)
	if err != nil || removed != 2 {
		t.Fatalf("prune: removed=%d err=%v", removed, err)
	}
	left, _ := filepath.Glob(filepath.Join(dir, "*.snap.zst"))
	if len(left) != 2 || filepath.Base(left[0]) != SnapshotName(100) || filepath.Base(left[1]) != SnapshotName(3000) {
		t.Fatalf("left: %v", left)
	}
}
