package main

import (
	"fmt"
	"io"

	"gibbsworld.ai/internal/sim/multiworld"
)

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(w io.Writer, mgr *multiworld.Manager, worlds map[string]*worldRuntime) {
	ms := mgr.Metrics()
	ids := mgr.WorldIDs()

	gauge := func(name, help string) {
		fmt.Fprintf(w, "# HELP gibbsworld_%s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE gibbsworld_%s gauge\n", name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(w, "# HELP gibbsworld_%s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE gibbsworld_%s counter\n", name)
	}

	gauge("world_time", "Current simulated time.")
	for _, id := range ids {
		fmt.Fprintf(w, "gibbsworld_world_time{world=%q} %d\n", id, ms[id].Time)
	}
	gauge("world_patches", "Loaded patches by state.")
	for _, id := range ids {
		m := ms[id]
		fmt.Fprintf(w, "gibbsworld_world_patches{world=%q,state=%q} %d\n", id, "fixed", m.FixedPatches)
		fmt.Fprintf(w, "gibbsworld_world_patches{world=%q,state=%q} %d\n", id, "margin", m.LoadedPatches-m.FixedPatches)
	}
	gauge("world_items", "Items in loaded patches.")
	for _, id := range ids {
		fmt.Fprintf(w, "gibbsworld_world_items{world=%q} %d\n", id, ms[id].Items)
	}
	gauge("world_interaction_tables", "Pairwise interaction tables held by the energy cache.")
	for _, id := range ids {
		fmt.Fprintf(w, "gibbsworld_world_interaction_tables{world=%q} %d\n", id, ms[id].Tables)
	}
	gauge("world_queue_depth", "World loop request backlog.")
	for _, id := range ids {
		m := ms[id]
		fmt.Fprintf(w, "gibbsworld_world_queue_depth{world=%q,queue=%q} %d\n", id, "views", m.QueueDepths.Views)
		fmt.Fprintf(w, "gibbsworld_world_queue_depth{world=%q,queue=%q} %d\n", id, "snapshots", m.QueueDepths.Snapshots)
	}
	gauge("world_step_ms", "Duration of the last generation or regeneration step in milliseconds.")
	for _, id := range ids {
		fmt.Fprintf(w, "gibbsworld_world_step_ms{world=%q} %.3f\n", id, ms[id].StepMS)
	}
	counter("sampler_moves_total", "Accepted sampler moves by kind.")
	for _, id := range ids {
		m := ms[id]
		fmt.Fprintf(w, "gibbsworld_sampler_moves_total{world=%q,kind=%q} %d\n", id, "birth", m.Births)
		fmt.Fprintf(w, "gibbsworld_sampler_moves_total{world=%q,kind=%q} %d\n", id, "death", m.Deaths)
		fmt.Fprintf(w, "gibbsworld_sampler_moves_total{world=%q,kind=%q} %d\n", id, "gibbs_change", m.GibbsChanges)
		fmt.Fprintf(w, "gibbsworld_sampler_moves_total{world=%q,kind=%q} %d\n", id, "expired", m.Expired)
	}

	var indexed []string
	for _, id := range ids {
		if rt := worlds[id]; rt != nil && rt.idx != nil {
			indexed = append(indexed, id)
		}
	}
	if len(indexed) == 0 {
		return
	}
	gauge("index_queue_depth", "Index writer queue depth.")
	for _, id := range indexed {
		fmt.Fprintf(w, "gibbsworld_index_queue_depth{world=%q} %d\n", id, worlds[id].idx.Stats().QueueDepth)
	}
	counter("index_dropped_total", "Index rows dropped because the writer queue was full.")
	for _, id := range indexed {
		s := worlds[id].idx.Stats()
		fmt.Fprintf(w, "gibbsworld_index_dropped_total{world=%q,kind=%q} %d\n", id, "patch", s.DropPatchTotal)
		fmt.Fprintf(w, "gibbsworld_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshot", s.DropSnapshotTotal)
		fmt.Fprintf(w, "gibbsworld_index_dropped_total{world=%q,kind=%q} %d\n", id, "regen", s.DropRegenTotal)
	}
}
