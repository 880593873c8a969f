// Package export writes snapshot contents as CSV tables for offline
// analysis.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"gibbsworld.ai/internal/persistence/snapshot"
)

// ItemRecord is one row of items.csv.
type ItemRecord struct {
	X            int64  `csv:"x"`
	Y            int64  `csv:"y"`
	PX           int64  `csv:"px"`
	PY           int64  `csv:"py"`
	Type         int    `csv:"type"`
	Name         string `csv:"name"`
	CreationTime uint64 `csv:"creation_time"`
}

// PatchRecord is one row of patches.csv.
type PatchRecord struct {
	PX      int64   `csv:"px"`
	PY      int64   `csv:"py"`
	Fixed   bool    `csv:"fixed"`
	Items   int     `csv:"items"`
	Density float64 `csv:"density"`
	// Counts is the per-type count, joined by ';' in catalog order.
	Counts string `csv:"counts"`
}

func Items(snap snapshot.SnapshotV1) []ItemRecord {
	var out []ItemRecord
	for _, p := range snap.Patches {
		for _, it := range p.Items {
			name := ""
			if it.Type >= 0 && it.Type < len(snap.ItemTypes) {
				name = snap.ItemTypes[it.Type].Name
			}
			out = append(out, ItemRecord{
				X:            it.X,
				Y:            it.Y,
				PX:           p.PX,
				PY:           p.PY,
				Type:         it.Type,
				Name:         name,
				CreationTime: it.CreationTime,
			})
		}
	}
	return out
}

func Patches(snap snapshot.SnapshotV1) []PatchRecord {
	cells := float64(snap.PatchSize * snap.PatchSize)
	out := make([]PatchRecord, 0, len(snap.Patches))
	for _, p := range snap.Patches {
		counts := make([]int, len(snap.ItemTypes))
		for _, it := range p.Items {
			if it.Type >= 0 && it.Type < len(counts) {
				counts[it.Type]++
			}
		}
		r := PatchRecord{PX: p.PX, PY: p.PY, Fixed: p.Fixed, Items: len(p.Items)}
		if cells > 0 {
			r.Density = float64(len(p.Items)) / cells
		}
		for i, c := range counts {
			if i > 0 {
				r.Counts += ";"
			}
			r.Counts += fmt.Sprint(c)
		}
		out = append(out, r)
	}
	return out
}

func WriteItems(w io.Writer, snap snapshot.SnapshotV1) error {
	records := Items(snap)
	if records == nil {
		records = []ItemRecord{}
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("writing items: %w", err)
	}
	return nil
}

func WritePatches(w io.Writer, snap snapshot.SnapshotV1) error {
	if err := gocsv.Marshal(Patches(snap), w); err != nil {
		return fmt.Errorf("writing patches: %w", err)
	}
	return nil
}

// ReadItems parses an items.csv written by WriteItems.
func ReadItems(r io.Reader) ([]ItemRecord, error) {
	var out []ItemRecord
	if err := gocsv.Unmarshal(r, &out); err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	return out, nil
}

// WriteDir writes items.csv and patches.csv into dir.
func WriteDir(dir string, snap snapshot.SnapshotV1) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	write := func(name string, fn func(io.Writer, snapshot.SnapshotV1) error) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		if err := fn(f, snap); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	if err := write("items.csv", WriteItems); err != nil {
		return err
	}
	return write("patches.csv", WritePatches)
}
