// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package config loads swarm coordination settings and resolves the
paths of all coordination state files.

Settings come from three layers, lowest precedence first: built-in
defaults, the optional {projectRoot}/.swarm/settings.yaml document, and
SWARM_* environment variables (SWARM_COORDINATION_ENABLED,
SWARM_COORDINATION_LOCK_TTL, SWARM_MEMORY_QUEUE_THRESHOLD,
SWARM_CLOUD_PROVIDER, ...). The environment layer exists so a CI job or
a single terminal can flip coordination off without editing a file the
whole team shares.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults applied when settings.yaml and the environment are silent.
const (
	// DefaultLockTTL bounds how long a crashed instance can hold a file.
	DefaultLockTTL = 5 * time.Minute

	// DefaultStaleAfter is the read-time staleness window for heartbeats.
	DefaultStaleAfter = 10 * time.Minute

	// DefaultQueueThreshold is the sync backlog depth beyond which the
	// memory fabric reports degraded.
	DefaultQueueThreshold = 50
)

// Cloud provider selection values.
const (
	ProviderAuto     = "auto"
	ProviderMem0     = "mem0"
	ProviderWeaviate = "weaviate"
	ProviderNone     = "none"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Settings is the full coordination configuration for one project.
type Settings struct {
	Coordination CoordinationSettings `mapstructure:"coordination" yaml:"coordination"`
	Memory       MemorySettings       `mapstructure:"memory" yaml:"memory"`
	Cloud        CloudSettings        `mapstructure:"cloud" yaml:"cloud"`
}

// CoordinationSettings controls the lock and heartbeat layer.
type CoordinationSettings struct {
	// Enabled gates every lock operation. Disabled coordination means
	// every acquire allows and every release is a no-op.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// LockTTL is the default lifetime of an acquired lock.
	LockTTL time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl" validate:"gt=0"`

	// StaleAfter is how long after its last heartbeat an instance is
	// reported stale. Interpretation only; never affects lock decisions.
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after" validate:"gt=0"`
}

// MemorySettings controls the memory fabric.
type MemorySettings struct {
	// QueueThreshold is the sync backlog depth beyond which tier health
	// degrades.
	QueueThreshold int `mapstructure:"queue_threshold" yaml:"queue_threshold" validate:"gte=1"`
}

// CloudSettings controls tier-2 provider selection.
type CloudSettings struct {
	// Provider picks the tier-2 backend: auto, mem0, weaviate, or none.
	// auto prefers mem0 when its credential is present, then weaviate.
	Provider string `mapstructure:"provider" yaml:"provider" validate:"omitempty,oneof=auto mem0 weaviate none"`
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() Settings {
	return Settings{
		Coordination: CoordinationSettings{
			Enabled:    true,
			LockTTL:    DefaultLockTTL,
			StaleAfter: DefaultStaleAfter,
		},
		Memory: MemorySettings{
			QueueThreshold: DefaultQueueThreshold,
		},
		Cloud: CloudSettings{
			Provider: ProviderAuto,
		},
	}
}

// EnsureDefaults fills zero-valued tunables with their defaults.
func (s *Settings) EnsureDefaults() {
	if s.Coordination.LockTTL <= 0 {
		s.Coordination.LockTTL = DefaultLockTTL
	}
	if s.Coordination.StaleAfter <= 0 {
		s.Coordination.StaleAfter = DefaultStaleAfter
	}
	if s.Memory.QueueThreshold <= 0 {
		s.Memory.QueueThreshold = DefaultQueueThreshold
	}
	if s.Cloud.Provider == "" {
		s.Cloud.Provider = ProviderAuto
	}
}

// Validate checks the settings against their constraints.
func (s *Settings) Validate() error {
	return validate.Struct(s)
}

// Load reads the effective settings for a project.
//
// # Description
//
// Starts from DefaultSettings, merges {projectRoot}/.swarm/settings.yaml
// when it exists, then applies SWARM_* environment overrides. A missing
// settings file is the common case and not an error. A file that exists
// but cannot be parsed is an error; callers on coordination paths
// degrade to defaults rather than propagate it.
//
// # Inputs
//
//   - projectRoot: Project directory containing .swarm/.
//
// # Outputs
//
//   - Settings: Effective settings (defaults on error).
//   - error: Non-nil when an existing settings file is unreadable or invalid.
func Load(projectRoot string) (Settings, error) {
	defaults := DefaultSettings()

	v := viper.New()
	v.SetConfigFile(NewPaths(projectRoot).SettingsFile())
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SWARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Registering every key as a default is what lets AutomaticEnv
	// overrides reach Unmarshal.
	v.SetDefault("coordination.enabled", defaults.Coordination.Enabled)
	v.SetDefault("coordination.lock_ttl", defaults.Coordination.LockTTL)
	v.SetDefault("coordination.stale_after", defaults.Coordination.StaleAfter)
	v.SetDefault("memory.queue_threshold", defaults.Memory.QueueThreshold)
	v.SetDefault("cloud.provider", defaults.Cloud.Provider)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !os.IsNotExist(err) && !errors.As(err, &notFound) {
			return defaults, fmt.Errorf("config: read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return defaults, fmt.Errorf("config: parse settings: %w", err)
	}
	s.EnsureDefaults()
	if err := s.Validate(); err != nil {
		return defaults, fmt.Errorf("config: invalid settings: %w", err)
	}
	return s, nil
}

// Enabled reports whether coordination is active for a project.
//
// Unreadable settings degrade to the default (enabled): a broken
// settings file should never silently disable lock safety.
func Enabled(projectRoot string) bool {
	s, err := Load(projectRoot)
	if err != nil {
		return DefaultSettings().Coordination.Enabled
	}
	return s.Coordination.Enabled
}

const settingsHeader = `# Swarm coordination settings.
# Every value can be overridden per process with SWARM_* environment
# variables, e.g. SWARM_COORDINATION_ENABLED=false.
`

// WriteDefaultSettings creates settings.yaml with the built-in defaults.
//
// # Description
//
// Used by "swarm init" to give a project a discoverable, commented
// settings document. An existing file is never overwritten; the path is
// returned either way so the caller can report it.
//
// # Inputs
//
//   - projectRoot: Project directory; .swarm/ is created if needed.
//
// # Outputs
//
//   - string: Path of the settings file.
//   - error: Non-nil if the directory or file cannot be created.
func WriteDefaultSettings(projectRoot string) (string, error) {
	p := NewPaths(projectRoot)
	path := p.SettingsFile()

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return path, fmt.Errorf("config: stat settings: %w", err)
	}

	s := DefaultSettings()
	// Durations are written in their human form ("5m0s"); the loader's
	// duration hook reads them back.
	doc := map[string]any{
		"coordination": map[string]any{
			"enabled":     s.Coordination.Enabled,
			"lock_ttl":    s.Coordination.LockTTL.String(),
			"stale_after": s.Coordination.StaleAfter.String(),
		},
		"memory": map[string]any{
			"queue_threshold": s.Memory.QueueThreshold,
		},
		"cloud": map[string]any{
			"provider": s.Cloud.Provider,
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return path, fmt.Errorf("config: marshal settings: %w", err)
	}

	if err := os.MkdirAll(p.SwarmDir(), 0750); err != nil {
		return path, fmt.Errorf("config: create swarm dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(settingsHeader), data...), 0640); err != nil {
		return path, fmt.Errorf("config: write settings: %w", err)
	}
	return path, nil
}
