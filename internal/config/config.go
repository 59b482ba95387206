// Package config defines the host-facing configuration surface for a
// Repository, generalizing the teacher's WorldConfig/DefaultWorldConfig
// (internal/core/ecs/types.go) from a fixed game-tuning struct into the
// sizing and tooling knobs this core actually needs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"corecs/internal/errs"
)

// RuntimeConfig bounds a Repository's capacity and the ambient tooling
// wrapped around it (recorder output location, pooled snapshot sizing,
// build mode). Mirrors WorldConfig's role: one struct constructed once at
// host startup. repo.New, provider construction and the recorder do not
// take it; a host passes its fields on (MaxEntities into repo.Config,
// PooledSnapshotSize as NewPooledSnapshot's pool size, and so on).
type RuntimeConfig struct {
	MaxEntities int `yaml:"max_entities"`

	// PooledSnapshotSize is the number of warm replicas a
	// provider.PooledSnapshot keeps ready (spec §4.8).
	PooledSnapshotSize int `yaml:"pooled_snapshot_size"`

	// TickBudget is advisory: hosts may use it to warn when a frame's
	// Simulation phase overruns, but nothing in this module enforces it.
	TickBudget time.Duration `yaml:"tick_budget"`

	// RecorderDirectory names a directory for recording files; cmd/recorder
	// and recorder.Writer take explicit paths and do not read it.
	RecorderDirectory string `yaml:"recorder_directory"`

	// RecorderCompression enables zstd compression of recorded chunk
	// payloads (spec §6.1 "compressed representation, reproducibly
	// chosen"). Off by default since it trades CPU for disk.
	RecorderCompression bool `yaml:"recorder_compression"`

	EnableMetrics bool `yaml:"enable_metrics"`

	// LogLevel is parsed into a zerolog.Level by the host; kept as a
	// string here so the YAML file stays human-editable ("debug", "info",
	// "warn", "error"), mirroring WorldConfig.LogLevel's intent with
	// zerolog's vocabulary instead of an int scale.
	LogLevel string `yaml:"log_level"`

	// Diagnostic selects errs.Diagnostic when true, errs.Release
	// otherwise (spec §7), the direct analogue of WorldConfig's
	// EnableDebugMode.
	Diagnostic bool `yaml:"diagnostic"`
}

// DefaultRuntimeConfig returns the configuration a standalone host or test
// should start from, analogous to DefaultWorldConfig.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		MaxEntities:         10_000,
		PooledSnapshotSize:  4,
		TickBudget:          16 * time.Millisecond,
		RecorderDirectory:   "./recordings",
		RecorderCompression: false,
		EnableMetrics:       true,
		LogLevel:            "info",
		Diagnostic:          true,
	}
}

// BuildMode translates the YAML-friendly Diagnostic flag into errs.BuildMode.
func (c RuntimeConfig) BuildMode() errs.BuildMode {
	if c.Diagnostic {
		return errs.Diagnostic
	}
	return errs.Release
}

// Validate checks the invariants repo.New and the providers rely on.
func (c RuntimeConfig) Validate() error {
	if c.MaxEntities <= 0 {
		return errs.New(errs.SchemaMismatch, "max_entities must be positive")
	}
	if c.PooledSnapshotSize < 0 {
		return errs.New(errs.SchemaMismatch, "pooled_snapshot_size cannot be negative")
	}
	return nil
}

// Load reads and parses a RuntimeConfig from a YAML file, applying
// DefaultRuntimeConfig first so a file only needs to override what it
// cares about.
func Load(path string) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}
