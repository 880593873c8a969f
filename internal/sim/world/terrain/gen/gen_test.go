package gen

import "testing"

func TestPatchRand_Deterministic(t *testing.T) {
	a := PatchRand(7, -3, 4, 2, 1)
	b := PatchRand(7, -3, 4, 2, 1)
	for i := 0; i < 16; i++ {
		if a.Uint64() != b.Uint64() {
			t.Fatalf("streams diverged at %d", i)
		}
	}
}

func TestPatchRand_DistinctStreams(t *testing.T) {
	base := PatchRand(7, 0, 0, 0, 0).Uint64()
	others := []uint64{
		PatchRand(8, 0, 0, 0, 0).Uint64(),
		PatchRand(7, 1, 0, 0, 0).Uint64(),
		PatchRand(7, 0, 1, 0, 0).Uint64(),
		PatchRand(7, 0, 0, 1, 0).Uint64(),
		PatchRand(7, 0, 0, 0, 1).Uint64(),
	}
	for i, v := range others {
		if v == base {
			t.Fatalf("stream %d collides with base", i)
		}
	}
	if TimeRand(7, 1).Uint64() == TimeRand(7, 2).Uint64() {
		t.Fatalf("time streams collide")
	}
}
