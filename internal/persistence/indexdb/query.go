package indexdb

import (
	"context"
	"database/sql"
)

// OpenReadOnly opens an index for queries without starting a writer.
func OpenReadOnly(path string) (*sql.DB, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return sql.Open("sqlite", "file:"+path+"?mode=ro")
}

func Snapshots(ctx context.Context, db *sql.DB, limit int) ([]SnapshotRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT time,path,seed,patch_size,patches,items FROM snapshots ORDER BY time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.Time, &r.Path, &r.Seed, &r.PatchSize, &r.Patches, &r.Items); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func RegenPasses(ctx context.Context, db *sql.DB, since uint64, limit int) ([]RegenRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT time,patches,births,deaths,changes,expired FROM regen_passes WHERE time >= ? ORDER BY time LIMIT ?`, int64(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RegenRow
	for rows.Next() {
		var r RegenRow
		if err := rows.Scan(&r.Time, &r.Patches, &r.Births, &r.Deaths, &r.Changes, &r.Expired); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Patches lists indexed patches inside the inclusive patch rectangle.
func Patches(ctx context.Context, db *sql.DB, minPX, minPY, maxPX, maxPY int64) ([]PatchRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT px,py,fixed,items,digest,sim_time FROM patches
		WHERE px BETWEEN ? AND ? AND py BETWEEN ? AND ? ORDER BY px, py`, minPX, maxPX, minPY, maxPY)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PatchRow
	for rows.Next() {
		var r PatchRow
		if err := rows.Scan(&r.PX, &r.PY, &r.Fixed, &r.Items, &r.Digest, &r.SimTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CatalogDigest returns the stored digest for a catalog row, or "" if absent.
func CatalogDigest(ctx context.Context, db *sql.DB, name string) (string, error) {
	var d string
	err := db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}
