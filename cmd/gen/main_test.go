package main

import (
	"testing"

	"gibbsworld.ai/internal/sim/world/terrain/store"
)

func TestRectKeys(t *testing.T) {
	keys, err := rectKeys("1,0:0,1")
	if err != nil {
		t.Fatalf("rectKeys: %v", err)
	}
	want := []store.PatchKey{{PX: 0, PY: 0}, {PX: 1, PY: 0}, {PX: 0, PY: 1}, {PX: 1, PY: 1}}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d: got %v want %v", i, keys[i], want[i])
		}
	}
	for _, bad := range []string{"0,0", "x,0:1,1", "0,0:1000,1000", "-9223372036854775808,0:9223372036854775807,0"} {
		if _, err := rectKeys(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
