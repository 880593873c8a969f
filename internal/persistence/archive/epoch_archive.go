package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gibbsworld.ai/internal/persistence/snapshot"
)

type EpochArchiveMeta struct {
	Epoch         uint64 `json:"epoch"`
	Time          uint64 `json:"time"`
	Seed          int64  `json:"seed"`
	PatchSize     int    `json:"patch_size"`
	CatalogDigest string `json:"catalog_digest"`
	Snapshot      string `json:"snapshot"`
	Patches       int    `json:"patches"`
	Items         int    `json:"items"`
	CreatedAt     string `json:"created_at"`
}

// ArchiveEpochSnapshot copies the snapshot into worldDir/archives/epoch_<NNN>/
// when its simulated time closes an epoch of epochLen steps. Regular
// snapshots rotate; archived ones are kept.
func ArchiveEpochSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1, epochLen uint64) (epoch uint64, archivedPath string, archived bool, err error) {
	if epochLen == 0 || snap.Header.Time == 0 || snap.Header.Time%epochLen != 0 {
		return 0, "", false, nil
	}
	epoch = snap.Header.Time / epochLen

	dir := filepath.Join(worldDir, "archives", fmt.Sprintf("epoch_%03d", epoch))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := EpochArchiveMeta{
		Epoch:         epoch,
		Time:          snap.Header.Time,
		Seed:          snap.Seed,
		PatchSize:     snap.PatchSize,
		CatalogDigest: snap.CatalogDigest,
		Snapshot:      filepath.Base(dst),
		Patches:       len(snap.Patches),
		Items:         snap.Header.Items,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return 0, "", false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return 0, "", false, err
	}
	return epoch, dst, true, nil
}

// PruneSnapshots removes all but the newest keep files matching
// *.snap.zst in dir. File names are the zero-padded simulated time, so
// lexical order is age order.
func PruneSnapshots(dir string, keep int) (removed int, err error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.snap.zst"))
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	for i := 0; i < len(matches)-keep; i++ {
		if err := os.Remove(matches[i]); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// SnapshotName is the file name for a snapshot taken at simulated time t.
func SnapshotName(t uint64) string { return fmt.Sprintf("%012d.snap.zst", t) }

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
