package world

import "time"

// WorldMetrics is a read-only view of runtime signals. It is written by the
// world loop and read from HTTP handlers.
type WorldMetrics struct {
	Time          uint64 `json:"time"`
	LoadedPatches int    `json:"loaded_patches"`
	FixedPatches  int    `json:"fixed_patches"`
	Items         int    `json:"items"`

	QueueDepths QueueDepths `json:"queue_depths"`
	StepMS      float64     `json:"step_ms"`

	Births       uint64 `json:"births_total"`
	Deaths       uint64 `json:"deaths_total"`
	GibbsChanges uint64 `json:"gibbs_changes_total"`
	Expired      uint64 `json:"expired_total"`
	Tables       int    `json:"interaction_tables"`
}

type QueueDepths struct {
	Views     int `json:"views"`
	Snapshots int `json:"snapshots"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}

func (w *World) publishMetrics(step time.Duration) {
	m := WorldMetrics{
		Time:          w.CurrentTime(),
		LoadedPatches: len(w.store.Patches),
		QueueDepths:   QueueDepths{Views: len(w.views), Snapshots: len(w.snapshot)},
		StepMS:        float64(step.Microseconds()) / 1000,
		Births:        w.totals.Births,
		Deaths:        w.totals.Deaths,
		GibbsChanges:  w.totals.GibbsChanges,
		Expired:       w.totals.Expired,
		Tables:        w.store.Tables(),
	}
	for _, p := range w.store.Patches {
		if p.Fixed {
			m.FixedPatches++
		}
		m.Items += len(p.Items)
	}
	w.metrics.Store(m)
}
