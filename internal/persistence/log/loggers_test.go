package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func readJSONL(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []map[string]any
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestGenLogger_WritesKinds(t *testing.T) {
	dir := t.TempDir()
	l := NewGenLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.WriteGen(GenEvent{Requested: 4, Births: 12}); err != nil {
		t.Fatalf("WriteGen: %v", err)
	}
	if err := l.WriteRegen(RegenEvent{Time: 3, Patches: 4}); err != nil {
		t.Fatalf("WriteRegen: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	lines := readJSONL(t, filepath.Join(dir, "events", "events-2026-03-01-10.jsonl.zst"))
	if len(lines) != 2 || lines[0]["kind"] != "generate" || lines[1]["kind"] != "regenerate" {
		t.Fatalf("unexpected lines: %v", lines)
	}
	if lines[0]["births"].(float64) != 12 {
		t.Fatalf("births: %v", lines[0]["births"])
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }
	if err := w.Write(map[string]int{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"a": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, name := range []string{"x-2026-03-01-10.jsonl.zst", "x-2026-03-01-11.jsonl.zst"} {
		if got := readJSONL(t, filepath.Join(dir, name)); len(got) != 1 {
			t.Fatalf("%s: %d lines", name, len(got))
		}
	}
}
