package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"gibbsworld.ai/internal/sim/energy"
)

const Version = 1

var ErrVersion = errors.New("unsupported snapshot version")

// Header is written as a JSON line ahead of the gob body so tools can
// inspect a snapshot without decoding it.
type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Time    uint64 `json:"time"`
	Patches int    `json:"patches"`
	Items   int    `json:"items"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed           int64  `json:"seed"`
	PatchSize      int    `json:"patch_size"`
	Strategy       string `json:"strategy"`
	MCMCIterations int    `json:"mcmc_iterations"`
	BoundaryR      int64  `json:"boundary_r,omitempty"`
	CatalogDigest  string `json:"catalog_digest"`

	ItemTypes []ItemTypeV1 `json:"item_types"`
	Patches   []PatchV1    `json:"patches"`
}

// ItemTypeV1 carries the energy functions in their binary tag+args form.
type ItemTypeV1 struct {
	Name            string               `json:"name"`
	Scent           []float64            `json:"scent"`
	Color           []float64            `json:"color"`
	RequiredCounts  []int                `json:"required_item_counts,omitempty"`
	RequiredCosts   []int                `json:"required_item_costs,omitempty"`
	BlocksMovement  bool                 `json:"blocks_movement,omitempty"`
	VisualOcclusion float64              `json:"visual_occlusion,omitempty"`
	Lifetime        uint64               `json:"lifetime,omitempty"`
	Intensity       energy.Intensity     `json:"-"`
	Interactions    []energy.Interaction `json:"-"`
	Regeneration    energy.Regeneration  `json:"-"`
}

type PatchV1 struct {
	PX    int64    `json:"px"`
	PY    int64    `json:"py"`
	Fixed bool     `json:"fixed"`
	Items []ItemV1 `json:"items"`
}

type ItemV1 struct {
	Type         int    `json:"type"`
	X            int64  `json:"x"`
	Y            int64  `json:"y"`
	CreationTime uint64 `json:"creation_time,omitempty"`
	DeletionTime uint64 `json:"deletion_time,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()
	if err := Encode(f, snap); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Encode writes snap as zstd(header JSON line + gob body).
func Encode(w io.Writer, snap SnapshotV1) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotV1{}, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (SnapshotV1, error) {
	var snap SnapshotV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrVersion, snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
