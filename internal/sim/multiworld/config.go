package multiworld

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"gibbsworld.ai/internal/protocol"
	"gibbsworld.ai/internal/sim/field"
	"gibbsworld.ai/internal/sim/tuning"
	"gibbsworld.ai/internal/sim/world"
)

// Config lists the worlds one server hosts. All worlds share the item
// catalog; they differ in seed, extent and sampling settings.
type Config struct {
	DefaultWorldID string      `yaml:"default_world_id"`
	Worlds         []WorldSpec `yaml:"worlds"`
}

type WorldSpec struct {
	ID         string `yaml:"id"`
	SeedOffset int64  `yaml:"seed_offset"`
	// BoundaryR limits patch coordinates to [-R, R]; 0 keeps the tuning
	// value.
	BoundaryR int64 `yaml:"boundary_r"`

	// Optional overrides of the tuning values.
	Strategy       string `yaml:"strategy,omitempty"`
	MCMCIterations int    `yaml:"mcmc_iterations,omitempty"`
	PatchSize      int    `yaml:"patch_size,omitempty"`
	RegenDisabled  bool   `yaml:"regen_disabled,omitempty"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultWorldID: "world_1",
		Worlds:         []WorldSpec{{ID: "world_1"}},
	}
}

func (c *Config) Normalize() {
	for i := range c.Worlds {
		c.Worlds[i].ID = strings.TrimSpace(c.Worlds[i].ID)
		c.Worlds[i].Strategy = strings.ToLower(strings.TrimSpace(c.Worlds[i].Strategy))
	}
	if strings.TrimSpace(c.DefaultWorldID) == "" && len(c.Worlds) > 0 {
		c.DefaultWorldID = c.Worlds[0].ID
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Worlds) == 0 {
		return fmt.Errorf("worlds must not be empty")
	}
	seen := map[string]bool{}
	for _, w := range c.Worlds {
		if w.ID == "" {
			return fmt.Errorf("world id must not be empty")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate world id: %s", w.ID)
		}
		seen[w.ID] = true
		if w.BoundaryR < 0 {
			return fmt.Errorf("world %s boundary_r must be >= 0", w.ID)
		}
		if w.MCMCIterations < 0 {
			return fmt.Errorf("world %s mcmc_iterations must be >= 0", w.ID)
		}
		if w.PatchSize < 0 || w.PatchSize > field.MaxPatchSize {
			return fmt.Errorf("world %s patch_size must be in [0, %d]", w.ID, field.MaxPatchSize)
		}
		if w.Strategy != "" {
			if _, err := field.ParseStrategy(w.Strategy); err != nil {
				return fmt.Errorf("world %s: %w", w.ID, err)
			}
		}
	}
	if !seen[c.DefaultWorldID] {
		return fmt.Errorf("default_world_id %q not found in worlds", c.DefaultWorldID)
	}
	return nil
}

// WorldConfig merges a world's overrides onto the shared tuning.
func (s WorldSpec) WorldConfig(t tuning.Tuning) (world.WorldConfig, error) {
	strategy := t.Strategy
	if s.Strategy != "" {
		strategy = s.Strategy
	}
	st, err := field.ParseStrategy(strategy)
	if err != nil {
		return world.WorldConfig{}, fmt.Errorf("world %s: %w", s.ID, err)
	}
	cfg := world.WorldConfig{
		ID:                  s.ID,
		Seed:                t.Seed + s.SeedOffset,
		PatchSize:           t.PatchSize,
		MCMCIterations:      t.MCMCIterations,
		Strategy:            st,
		Workers:             t.Workers,
		BoundaryR:           t.WorldBoundaryR,
		SnapshotEveryPasses: uint64(t.SnapshotEveryPasses),
		MaxViewPatches:      t.MaxViewPatches,
	}
	if !s.RegenDisabled {
		cfg.RegenInterval = t.RegenInterval()
	}
	if s.BoundaryR > 0 {
		cfg.BoundaryR = s.BoundaryR
	}
	if s.PatchSize > 0 {
		cfg.PatchSize = s.PatchSize
	}
	if s.MCMCIterations > 0 {
		cfg.MCMCIterations = s.MCMCIterations
	}
	return cfg, nil
}

func (c Config) WorldSpecByID(id string) (WorldSpec, bool) {
	for _, w := range c.Worlds {
		if w.ID == id {
			return w, true
		}
	}
	return WorldSpec{}, false
}

func (c Config) WorldIDs() []string {
	out := make([]string, 0, len(c.Worlds))
	for _, w := range c.Worlds {
		out = append(out, w.ID)
	}
	sort.Strings(out)
	return out
}

// Manifest describes the worlds for WELCOME using the resolved configs.
func Manifest(cfgs []world.WorldConfig) []protocol.WorldRef {
	out := make([]protocol.WorldRef, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, protocol.WorldRef{
			WorldID:   c.ID,
			PatchSize: c.PatchSize,
			BoundaryR: c.BoundaryR,
			Strategy:  c.Strategy.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorldID < out[j].WorldID })
	return out
}
