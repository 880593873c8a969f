package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gibbsworld.ai/internal/persistence/snapshot"
	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/tuning"
)

var ErrEmptyPath = errors.New("empty db path")

// SQLiteIndex is a secondary, queryable index of generation activity.
// Writes are queued to a single writer goroutine and dropped when the queue
// is full; snapshots and event logs stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropPatch    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropRegen    atomic.Uint64
}

type reqKind int

const (
	reqPatch reqKind = iota + 1
	reqSnapshot
	reqRegen
)

type req struct {
	kind reqKind

	patch    PatchRow
	snapshot SnapshotRow
	regen    RegenRow
}

type PatchRow struct {
	PX      int64  `json:"px"`
	PY      int64  `json:"py"`
	Fixed   bool   `json:"fixed"`
	Items   int    `json:"items"`
	Digest  string `json:"digest"`
	SimTime uint64 `json:"sim_time"`
}

type SnapshotRow struct {
	Time      uint64 `json:"time"`
	Path      string `json:"path"`
	Seed      int64  `json:"seed"`
	PatchSize int    `json:"patch_size"`
	Patches   int    `json:"patches"`
	Items     int    `json:"items"`
}

type RegenRow struct {
	Time    uint64 `json:"time"`
	Patches int    `json:"patches"`
	Births  uint64 `json:"births"`
	Deaths  uint64 `json:"deaths"`
	Changes uint64 `json:"gibbs_changes"`
	Expired uint64 `json:"expired"`
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropPatchTotal    uint64 `json:"drop_patch_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropRegenTotal    uint64 `json:"drop_regen_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, ch: make(chan req, 65536)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS patches (
			px INTEGER NOT NULL,
			py INTEGER NOT NULL,
			fixed INTEGER NOT NULL,
			items INTEGER NOT NULL,
			digest TEXT NOT NULL,
			sim_time INTEGER NOT NULL,
			PRIMARY KEY (px, py)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			time INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			patch_size INTEGER NOT NULL,
			patches INTEGER NOT NULL,
			items INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS regen_passes (
			time INTEGER PRIMARY KEY,
			patches INTEGER NOT NULL,
			births INTEGER NOT NULL,
			deaths INTEGER NOT NULL,
			changes INTEGER NOT NULL,
			expired INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropPatchTotal:    s.dropPatch.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropRegenTotal:    s.dropRegen.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordPatch(r PatchRow) {
	if s != nil {
		s.enqueue(req{kind: reqPatch, patch: r}, &s.dropPatch)
	}
}

func (s *SQLiteIndex) RecordRegen(r RegenRow) {
	if s != nil {
		s.enqueue(req{kind: reqRegen, regen: r}, &s.dropRegen)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: SnapshotRow{
		Time:      snap.Header.Time,
		Path:      path,
		Seed:      snap.Seed,
		PatchSize: snap.PatchSize,
		Patches:   len(snap.Patches),
		Items:     snap.Header.Items,
	}}, &s.dropSnapshot)
}

// UpsertCatalogs stores the item catalog and the applied tuning as
// canonical JSON, keyed by name.
func (s *SQLiteIndex) UpsertCatalogs(cat *catalogs.ItemCatalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if cat != nil {
		names := make([]string, len(cat.Types))
		for i, t := range cat.Types {
			names[i] = t.Name
		}
		b, err := json.Marshal(names)
		if err != nil {
			return err
		}
		rows = append(rows, kv{name: "items", digest: cat.Digest, json: b})
	}
	{
		b, err := json.Marshal(tune)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return fmt.Errorf("catalog %s: %w", r.name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertPatch, _ := s.db.Prepare(`INSERT OR REPLACE INTO patches(px,py,fixed,items,digest,sim_time) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(time,path,seed,patch_size,patches,items) VALUES(?,?,?,?,?,?)`)
	insertRegen, _ := s.db.Prepare(`INSERT OR REPLACE INTO regen_passes(time,patches,births,deaths,changes,expired) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertPatch, insertSnapshot, insertRegen} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			_ = tx.Rollback()
			tx = nil
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqPatch:
			p := r.patch
			exec(insertPatch, p.PX, p.PY, p.Fixed, p.Items, p.Digest, int64(p.SimTime))
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Time), sn.Path, sn.Seed, sn.PatchSize, sn.Patches, sn.Items)
		case reqRegen:
			rg := r.regen
			exec(insertRegen, int64(rg.Time), rg.Patches, int64(rg.Births), int64(rg.Deaths), int64(rg.Changes), int64(rg.Expired))
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
	commit()
}
