package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"gibbsworld.ai/internal/persistence/indexdb"
	persistlog "gibbsworld.ai/internal/persistence/log"
	"gibbsworld.ai/internal/persistence/snapshot"
	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/field"
	"gibbsworld.ai/internal/sim/world/terrain/store"
)

var (
	ErrStopped      = errors.New("world stopped")
	ErrViewTooLarge = errors.New("view rectangle too large")
	ErrBadView      = errors.New("view rectangle inverted")
)

type WorldConfig struct {
	ID             string
	Seed           int64
	PatchSize      int
	MCMCIterations int
	Strategy       field.Strategy
	Workers        int
	BoundaryR      int64

	// RegenInterval is the wall-clock period of one regeneration pass; 0
	// disables regeneration in Run.
	RegenInterval time.Duration
	// SnapshotEveryPasses sends a snapshot to the sink every that many
	// regeneration passes; 0 disables periodic snapshots.
	SnapshotEveryPasses uint64
	MaxViewPatches      int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.MCMCIterations <= 0 {
		c.MCMCIterations = 1
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxViewPatches <= 0 {
		c.MaxViewPatches = 64
	}
}

// ViewRequest asks for the patches in the inclusive patch rectangle
// [Min, Max], generating any that are not fixed yet. Generation stops when
// either Ctx or the Run context is cancelled.
type ViewRequest struct {
	Ctx      context.Context
	Min, Max store.PatchKey
	Resp     chan ViewResponse
}

type ViewResponse struct {
	Time    uint64
	Patches []PatchView
	Err     error
}

// PatchView is one patch as cell values indexed x + y*n: 0 for empty, item
// type + 1 otherwise.
type PatchView struct {
	PX, PY int64
	Fixed  bool
	Grid   []uint16
}

type snapshotReq struct {
	resp chan snapshot.SnapshotV1
}

// GenLogger receives structured generation events (may be nil).
type GenLogger interface {
	WriteGen(persistlog.GenEvent) error
	WriteRegen(persistlog.RegenEvent) error
}

// Index receives rows for the query index (may be nil).
type Index interface {
	RecordPatch(indexdb.PatchRow)
	RecordRegen(indexdb.RegenRow)
}

// World owns a patch store and serializes all access to it. Everything that
// touches the store runs on the Run goroutine; other goroutines talk to it
// through View, RequestSnapshot and Stop.
type World struct {
	cfg     WorldConfig
	catalog *catalogs.ItemCatalog
	store   *store.PatchStore
	logger  *log.Logger

	time atomic.Uint64

	views    chan ViewRequest
	snapshot chan snapshotReq
	stop     chan struct{}
	stopOnce atomic.Bool

	genLogger    GenLogger
	index        Index
	snapshotSink chan<- snapshot.SnapshotV1

	totals  field.Stats
	metrics atomic.Value
}

func New(cfg WorldConfig, cat *catalogs.ItemCatalog) (*World, error) {
	if cat == nil || cat.Len() == 0 {
		return nil, catalogs.ErrEmptyCatalog
	}
	cfg.applyDefaults()
	s, err := store.NewPatchStore(genOf(cfg), cat.Types)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	w := newWorld(cfg, cat, s)
	w.publishMetrics(0)
	return w, nil
}

func genOf(cfg WorldConfig) store.WorldGen {
	return store.WorldGen{
		Seed:           cfg.Seed,
		PatchSize:      cfg.PatchSize,
		BoundaryR:      cfg.BoundaryR,
		MCMCIterations: cfg.MCMCIterations,
		Strategy:       cfg.Strategy,
		Workers:        cfg.Workers,
	}
}

func newWorld(cfg WorldConfig, cat *catalogs.ItemCatalog, s *store.PatchStore) *World {
	return &World{
		cfg:      cfg,
		catalog:  cat,
		store:    s,
		logger:   log.New(io.Discard, "", 0),
		views:    make(chan ViewRequest, 64),
		snapshot: make(chan snapshotReq, 4),
		stop:     make(chan struct{}),
	}
}

func (w *World) SetLogger(l *log.Logger) {
	if l != nil {
		w.logger = l
		w.store.SetLogger(l)
	}
}

func (w *World) SetGenLogger(l GenLogger)                      { w.genLogger = l }
func (w *World) SetIndex(idx Index)                            { w.index = idx }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) ID() string                     { return w.cfg.ID }
func (w *World) Config() WorldConfig            { return w.cfg }
func (w *World) Catalog() *catalogs.ItemCatalog { return w.catalog }
func (w *World) CurrentTime() uint64            { return w.time.Load() }

// Close releases the energy tables. Call it after Run has returned.
func (w *World) Close() { w.store.Close() }

func (w *World) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if w.cfg.RegenInterval > 0 {
		ticker := time.NewTicker(w.cfg.RegenInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.views:
			req.Resp <- w.handleView(ctx, req)
		case req := <-w.snapshot:
			req.resp <- w.ExportSnapshot()
		case <-tick:
			w.StepRegen()
		}
	}
}

func (w *World) Stop() {
	if w.stopOnce.CompareAndSwap(false, true) {
		close(w.stop)
	}
}

// View submits req to the world loop and waits for the answer.
func (w *World) View(ctx context.Context, min, max store.PatchKey) (ViewResponse, error) {
	resp := make(chan ViewResponse, 1)
	select {
	case w.views <- ViewRequest{Ctx: ctx, Min: min, Max: max, Resp: resp}:
	case <-w.stop:
		return ViewResponse{}, ErrStopped
	case <-ctx.Done():
		return ViewResponse{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, r.Err
	case <-ctx.Done():
		return ViewResponse{}, ctx.Err()
	}
}

// RequestSnapshot asks the world loop for a snapshot of its current state.
func (w *World) RequestSnapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	resp := make(chan snapshot.SnapshotV1, 1)
	select {
	case w.snapshot <- snapshotReq{resp: resp}:
	case <-w.stop:
		return snapshot.SnapshotV1{}, ErrStopped
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
	select {
	case s := <-resp:
		return s, nil
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

func trySend(ch chan<- snapshot.SnapshotV1, s snapshot.SnapshotV1) bool {
	select {
	case ch <- s:
		return true
	default:
		return false
	}
}
