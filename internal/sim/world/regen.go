package world

import (
	"time"

	"gibbsworld.ai/internal/persistence/indexdb"
	persistlog "gibbsworld.ai/internal/persistence/log"
	"gibbsworld.ai/internal/sim/world/terrain/gen"
)

// StepRegen advances simulated time by one and runs a regeneration pass over
// every fixed patch. Each pass draws from its own stream derived from the
// seed and the new time, so replays from a snapshot reproduce it. It must
// only be called from the Run goroutine, or before Run starts.
func (w *World) StepRegen() {
	start := time.Now()
	t := w.time.Add(1)
	stats, err := w.store.Regenerate(gen.TimeRand(w.cfg.Seed, t), t)
	if err != nil {
		w.logger.Printf("regenerate t=%d: %v", t, err)
		return
	}
	w.totals.Add(stats)

	fixed := 0
	for _, p := range w.store.Patches {
		if p.Fixed {
			fixed++
		}
	}
	if w.genLogger != nil {
		_ = w.genLogger.WriteRegen(persistlog.RegenEvent{
			Time:    t,
			Patches: fixed,
			Births:  stats.Births,
			Deaths:  stats.Deaths,
			Changes: stats.GibbsChanges,
			Expired: stats.Expired,
		})
	}
	if w.index != nil {
		w.index.RecordRegen(indexdb.RegenRow{
			Time:    t,
			Patches: fixed,
			Births:  stats.Births,
			Deaths:  stats.Deaths,
			Changes: stats.GibbsChanges,
			Expired: stats.Expired,
		})
	}
	if every := w.cfg.SnapshotEveryPasses; every > 0 && t%every == 0 && w.snapshotSink != nil {
		if !trySend(w.snapshotSink, w.ExportSnapshot()) {
			w.logger.Printf("snapshot sink full; skipped t=%d", t)
		}
	}
	w.publishMetrics(time.Since(start))
}
