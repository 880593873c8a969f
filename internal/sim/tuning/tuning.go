package tuning

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"gibbsworld.ai/internal/sim/field"
)

var ErrInvalid = errors.New("invalid tuning")

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Seed           int64  `yaml:"seed"`
	PatchSize      int    `yaml:"patch_size"`
	MCMCIterations int    `yaml:"mcmc_iterations"`
	Strategy       string `yaml:"strategy"`
	Workers        int    `yaml:"workers"`
	WorldBoundaryR int64  `yaml:"world_boundary_r"`

	// RegenIntervalMs is the wall-clock period of one regeneration pass; 0
	// disables regeneration.
	RegenIntervalMs int `yaml:"regen_interval_ms"`
	// SnapshotEveryPasses writes a snapshot after that many regeneration
	// passes; 0 disables periodic snapshots.
	SnapshotEveryPasses int `yaml:"snapshot_every_passes"`
	// KeepSnapshots is how many rotating snapshots stay on disk.
	KeepSnapshots int `yaml:"keep_snapshots"`
	// EpochLength archives the snapshot taken at every multiple of that
	// simulated time; 0 disables archiving.
	EpochLength uint64 `yaml:"epoch_length"`

	// MaxViewPatches caps the rectangle one VIEW request may cover.
	MaxViewPatches int  `yaml:"max_view_patches"`
	Debug          bool `yaml:"debug"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "1.0",
		Seed:                1,
		PatchSize:           32,
		MCMCIterations:      4000,
		Strategy:            field.StrategyGibbs.String(),
		Workers:             runtime.GOMAXPROCS(0),
		RegenIntervalMs:     1000,
		SnapshotEveryPasses: 600,
		KeepSnapshots:       5,
		EpochLength:         86400,
		MaxViewPatches:      64,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values that have a sensible default.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.Strategy == "" {
		t.Strategy = d.Strategy
	}
	if t.Workers <= 0 {
		t.Workers = d.Workers
	}
	if t.MaxViewPatches <= 0 {
		t.MaxViewPatches = d.MaxViewPatches
	}
	if t.KeepSnapshots <= 0 {
		t.KeepSnapshots = d.KeepSnapshots
	}
}

func (t Tuning) Validate() error {
	if t.PatchSize <= 0 || t.PatchSize > field.MaxPatchSize {
		return fmt.Errorf("%w: patch_size %d not in [1, %d]", ErrInvalid, t.PatchSize, field.MaxPatchSize)
	}
	if t.MCMCIterations <= 0 {
		return fmt.Errorf("%w: mcmc_iterations must be positive", ErrInvalid)
	}
	if _, err := field.ParseStrategy(t.Strategy); err != nil {
		return fmt.Errorf("%w: strategy %q", ErrInvalid, t.Strategy)
	}
	if t.WorldBoundaryR < 0 || t.RegenIntervalMs < 0 || t.SnapshotEveryPasses < 0 {
		return fmt.Errorf("%w: negative boundary or interval", ErrInvalid)
	}
	return nil
}

// SamplingStrategy returns the parsed strategy. Validate must have passed.
func (t Tuning) SamplingStrategy() field.Strategy {
	s, _ := field.ParseStrategy(t.Strategy)
	return s
}

func (t Tuning) RegenInterval() time.Duration {
	return time.Duration(t.RegenIntervalMs) * time.Millisecond
}
