package multiworld

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gibbsworld.ai/internal/protocol"
	"gibbsworld.ai/internal/sim/world"
)

var ErrUnknownWorld = errors.New("unknown world")

type Runtime struct {
	Spec  WorldSpec
	World *world.World
}

// Manager routes sessions to the hosted worlds and owns their Run loops.
type Manager struct {
	mu sync.RWMutex

	runtimes  map[string]*Runtime
	manifest  []protocol.WorldRef
	defaultID string

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewManager(cfg Config, runtimes map[string]*Runtime) (*Manager, error) {
	if len(runtimes) == 0 {
		return nil, fmt.Errorf("empty runtimes")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfgs := make([]world.WorldConfig, 0, len(cfg.Worlds))
	for _, spec := range cfg.Worlds {
		rt := runtimes[spec.ID]
		if rt == nil || rt.World == nil {
			return nil, fmt.Errorf("missing runtime for world %s", spec.ID)
		}
		cfgs = append(cfgs, rt.World.Config())
	}
	return &Manager{
		runtimes:  runtimes,
		manifest:  Manifest(cfgs),
		defaultID: cfg.DefaultWorldID,
	}, nil
}

func (m *Manager) WorldIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Runtime(id string) *Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runtimes[id]
}

func (m *Manager) Manifest() []protocol.WorldRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]protocol.WorldRef(nil), m.manifest...)
}

// Pick returns the world for a HELLO world_preference. An empty preference
// selects the default world; an unknown one is an error.
func (m *Manager) Pick(pref string) (*world.World, error) {
	if pref == "" {
		pref = m.defaultID
	}
	rt := m.Runtime(pref)
	if rt == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorld, pref)
	}
	return rt.World, nil
}

func (m *Manager) Default() *world.World {
	return m.Runtime(m.defaultID).World
}

// Start runs every world loop until ctx is cancelled or Close is called.
func (m *Manager) Start(ctx context.Context, onExit func(id string, err error)) {
	for _, id := range m.WorldIDs() {
		rt := m.Runtime(id)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			err := rt.World.Run(ctx)
			if onExit != nil {
				onExit(id, err)
			}
		}()
	}
}

// Metrics returns the latest metrics of every world, keyed by id.
func (m *Manager) Metrics() map[string]world.WorldMetrics {
	out := map[string]world.WorldMetrics{}
	for _, id := range m.WorldIDs() {
		out[id] = m.Runtime(id).World.Metrics()
	}
	return out
}

// Close stops every world loop, waits for them, and releases their tables.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		for _, id := range m.WorldIDs() {
			m.Runtime(id).World.Stop()
		}
		m.wg.Wait()
		for _, id := range m.WorldIDs() {
			m.Runtime(id).World.Close()
		}
	})
}
