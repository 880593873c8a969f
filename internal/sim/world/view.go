package world

import (
	"context"
	"fmt"
	"time"

	"gibbsworld.ai/internal/persistence/indexdb"
	persistlog "gibbsworld.ai/internal/persistence/log"
	"gibbsworld.ai/internal/sim/world/terrain/store"
)

// ViewKeys lists the in-bounds patch keys of the inclusive rectangle
// [min, max] in row-major order.
func (w *World) ViewKeys(min, max store.PatchKey) ([]store.PatchKey, error) {
	if max.PX < min.PX || max.PY < min.PY {
		return nil, ErrBadView
	}
	// Compare before multiplying so huge rectangles cannot overflow.
	limit := int64(w.cfg.MaxViewPatches)
	dx, dy := max.PX-min.PX+1, max.PY-min.PY+1
	if dx <= 0 || dy <= 0 || dx > limit || dy > limit || dx*dy > limit {
		return nil, fmt.Errorf("%w: %dx%d patches, limit %d", ErrViewTooLarge, dx, dy, limit)
	}
	keys := make([]store.PatchKey, 0, dx*dy)
	for py := min.PY; py <= max.PY; py++ {
		for px := min.PX; px <= max.PX; px++ {
			k := store.PatchKey{PX: px, PY: py}
			if w.store.InBounds(k) {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func (w *World) handleView(ctx context.Context, req ViewRequest) ViewResponse {
	keys, err := w.ViewKeys(req.Min, req.Max)
	if err != nil {
		return ViewResponse{Time: w.CurrentTime(), Err: err}
	}
	genCtx, cancel := requestContext(ctx, req.Ctx)
	defer cancel()
	if err := w.Generate(genCtx, keys); err != nil {
		return ViewResponse{Time: w.CurrentTime(), Err: err}
	}
	out := ViewResponse{Time: w.CurrentTime(), Patches: make([]PatchView, 0, len(keys))}
	for _, k := range keys {
		grid, ok := w.store.Grid(k)
		if !ok {
			continue
		}
		out.Patches = append(out.Patches, PatchView{
			PX:    k.PX,
			PY:    k.PY,
			Fixed: w.store.Patches[k].Fixed,
			Grid:  grid,
		})
	}
	return out
}

// requestContext derives a context from reqCtx that is also cancelled when
// runCtx is. A nil reqCtx falls back to runCtx.
func requestContext(runCtx, reqCtx context.Context) (context.Context, context.CancelFunc) {
	if reqCtx == nil {
		return context.WithCancel(runCtx)
	}
	ctx, cancel := context.WithCancel(reqCtx)
	stop := context.AfterFunc(runCtx, cancel)
	if runCtx.Err() != nil {
		// AfterFunc fires asynchronously; make an already-done runCtx visible now.
		cancel()
	}
	return ctx, func() {
		stop()
		cancel()
	}
}

// Generate fixes every patch in keys. It must only be called from the Run
// goroutine, or before Run starts.
func (w *World) Generate(ctx context.Context, keys []store.PatchKey) error {
	start := time.Now()
	pending := 0
	for _, k := range keys {
		if p, ok := w.store.Patches[k]; !ok || !p.Fixed {
			pending++
		}
	}
	stats, err := w.store.GenerateRegion(ctx, keys, w.CurrentTime())
	w.totals.Add(stats)

	if w.genLogger != nil {
		ev := persistlog.GenEvent{
			Time:       w.CurrentTime(),
			Requested:  len(keys),
			Sampled:    pending,
			Births:     stats.Births,
			Deaths:     stats.Deaths,
			Changes:    stats.GibbsChanges,
			DurationMs: float64(time.Since(start).Microseconds()) / 1000,
		}
		if err != nil {
			ev.Error = err.Error()
		}
		_ = w.genLogger.WriteGen(ev)
	}
	if err != nil {
		return err
	}
	if w.index != nil {
		for _, k := range keys {
			w.recordPatch(k)
		}
	}
	w.publishMetrics(time.Since(start))
	return nil
}

func (w *World) recordPatch(k store.PatchKey) {
	p, ok := w.store.Patches[k]
	if !ok {
		return
	}
	d := store.PatchDigest(p)
	w.index.RecordPatch(indexdb.PatchRow{
		PX:      k.PX,
		PY:      k.PY,
		Fixed:   p.Fixed,
		Items:   len(p.Items),
		Digest:  fmt.Sprintf("%x", d[:]),
		SimTime: w.CurrentTime(),
	})
}
