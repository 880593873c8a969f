package main

import (
	"testing"

	"gibbsworld.ai/internal/persistence/snapshot"
)

func TestParseRect(t *testing.T) {
	min, max, err := parseRect("3,-1:-2, 4")
	if err != nil {
		t.Fatalf("parseRect: %v", err)
	}
	if min != [2]int64{-2, -1} || max != [2]int64{3, 4} {
		t.Fatalf("unexpected rect %v %v", min, max)
	}
	for _, bad := range []string{"", "1,2", "1,2:3", "a,b:1,2", "1,2,3:4,5"} {
		if _, _, err := parseRect(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestResetPatches(t *testing.T) {
	snap := snapshot.SnapshotV1{
		Header:    snapshot.Header{Items: 3},
		ItemTypes: []snapshot.ItemTypeV1{{Name: "banana"}},
		Patches: []snapshot.PatchV1{
			{PX: 0, PY: 0, Fixed: true, Items: []snapshot.ItemV1{{X: 1, Y: 1}, {X: 2, Y: 2}}},
			{PX: 2, PY: 0, Fixed: true, Items: []snapshot.ItemV1{{X: 40, Y: 1}}},
		},
	}
	reset, removed := resetPatches(&snap, [2]int64{-1, -1}, [2]int64{1, 1})
	if reset != 1 || removed != 2 {
		t.Fatalf("reset=%d removed=%d", reset, removed)
	}
	if snap.Patches[0].Fixed || len(snap.Patches[0].Items) != 0 {
		t.Fatalf("patch in rectangle not cleared: %+v", snap.Patches[0])
	}
	if !snap.Patches[1].Fixed || len(snap.Patches[1].Items) != 1 {
		t.Fatalf("patch outside rectangle changed: %+v", snap.Patches[1])
	}
	if snap.Header.Items != 1 {
		t.Fatalf("header items not updated: %d", snap.Header.Items)
	}

	sum := summarize(snap)
	if sum.Patches != 2 || sum.FixedPatches != 1 || sum.Items != 1 || sum.Counts["banana"] != 1 {
		t.Fatalf("summary: %+v", sum)
	}
}
