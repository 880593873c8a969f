package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gibbsworld.ai/internal/persistence/snapshot"
)

func testSnapshot() snapshot.SnapshotV1 {
	return snapshot.SnapshotV1{
		PatchSize: 4,
		ItemTypes: []snapshot.ItemTypeV1{{Name: "banana"}, {Name: "wall"}},
		Patches: []snapshot.PatchV1{
			{PX: 0, PY: 0, Fixed: true, Items: []snapshot.ItemV1{
				{Type: 0, X: 1, Y: 1, CreationTime: 3},
				{Type: 1, X: 2, Y: 3},
			}},
			{PX: -1, PY: 0, Items: []snapshot.ItemV1{{Type: 1, X: -4, Y: 0}}},
		},
	}
}

func TestItemsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteItems(&buf, testSnapshot()); err != nil {
		t.Fatalf("WriteItems: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "x,y,px,py,type,name,creation_time") {
		t.Fatalf("unexpected header: %q", buf.String())
	}
	got, err := ReadItems(&buf)
	if err != nil {
		t.Fatalf("ReadItems: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0].Name != "banana" || got[0].CreationTime != 3 || got[2].PX != -1 || got[2].Name != "wall" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestPatchesStats(t *testing.T) {
	recs := Patches(testSnapshot())
	if len(recs) != 2 {
		t.Fatalf("expected 2 patches, got %d", len(recs))
	}
	if recs[0].Items != 2 || recs[0].Density != 2.0/16 || recs[0].Counts != "1;1" || !recs[0].Fixed {
		t.Fatalf("patch 0: %+v", recs[0])
	}
	if recs[1].Counts != "0;1" {
		t.Fatalf("patch 1 counts: %q", recs[1].Counts)
	}
}

func TestWriteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	if err := WriteDir(dir, testSnapshot()); err != nil {
		t.Fatalf("WriteDir: %v", err)
	}
	for _, name := range []string{"items.csv", "patches.csv"} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if lines := strings.Count(string(b), "\n"); lines < 3 {
			t.Fatalf("%s: %d lines", name, lines)
		}
	}
}
