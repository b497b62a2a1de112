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
Package heartbeat records instance liveness as an append-only journal.

Each beat is one JSONL line in .swarm/heartbeats.jsonl; nothing is ever
updated in place, so concurrent writers only contend on O_APPEND, which
the kernel serializes for short lines. Staleness is a read-time
interpretation, never a stored state: a reader decides how old is too
old, and an explicit Prune compacts the journal when it grows shaggy.
*/
package heartbeat

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/failopen"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/identity"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/journal"
)

// Heartbeat is one liveness record as it appears on disk.
type Heartbeat struct {
	InstanceID string    `json:"instance_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// InstanceStatus is the read-side view: the newest heartbeat per
// instance plus the staleness interpretation at snapshot time.
type InstanceStatus struct {
	InstanceID string    `json:"instance_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Stale      bool      `json:"stale"`
}

// Config configures a Tracker. Zero values defer to the project's
// settings file and its defaults.
type Config struct {
	// ProjectRoot is the working-copy root that owns .swarm/.
	ProjectRoot string

	// StaleAfter overrides the configured staleness window when > 0.
	StaleAfter time.Duration
}

// Tracker publishes and reads heartbeats for one project.
//
// # Thread Safety
//
// Safe for concurrent use; Beat appends are atomic at the line level
// and reads never hold state between calls.
type Tracker struct {
	paths      config.Paths
	staleAfter time.Duration

	now func() time.Time
}

// NewTracker creates a Tracker for the given project.
func NewTracker(cfg Config) *Tracker {
	settings, _ := config.Load(cfg.ProjectRoot)

	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = settings.Coordination.StaleAfter
	}

	return &Tracker{
		paths:      config.NewPaths(cfg.ProjectRoot),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// StaleAfter returns the staleness window this tracker applies on reads.
func (t *Tracker) StaleAfter() time.Duration {
	return t.staleAfter
}

// Beat records that id is alive right now.
//
// # Description
//
// Best-effort by contract: a heartbeat that cannot be written is logged
// and dropped, because liveness bookkeeping must never interrupt the
// work it is reporting on. The returned bool says whether the append
// landed, for callers that narrate their side effects.
func (t *Tracker) Beat(id identity.Identity) bool {
	return failopen.Do("heartbeat.beat", func() error {
		return journal.AppendJSONL(t.paths.HeartbeatsFile(), Heartbeat{
			InstanceID: id.ID,
			LastSeenAt: t.now(),
		})
	})
}

// Snapshot reduces the journal to the newest heartbeat per instance,
// most recent first, with staleness judged against the tracker's window.
//
// A missing or partially corrupt journal degrades to whatever valid
// lines remain; records with no instance id are ignored.
func (t *Tracker) Snapshot() []InstanceStatus {
	newest := failopen.Value("heartbeat.snapshot", map[string]time.Time{}, func() (map[string]time.Time, error) {
		m := make(map[string]time.Time)
		_, err := journal.ScanJSONL(t.paths.HeartbeatsFile(), func(hb Heartbeat) {
			if hb.InstanceID == "" {
				return
			}
			if hb.LastSeenAt.After(m[hb.InstanceID]) {
				m[hb.InstanceID] = hb.LastSeenAt
			}
		})
		return m, err
	})

	now := t.now()
	statuses := make([]InstanceStatus, 0, len(newest))
	for id, seen := range newest {
		statuses = append(statuses, InstanceStatus{
			InstanceID: id,
			LastSeenAt: seen,
			Stale:      now.Sub(seen) > t.staleAfter,
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].LastSeenAt.Equal(statuses[j].LastSeenAt) {
			return statuses[i].InstanceID < statuses[j].InstanceID
		}
		return statuses[i].LastSeenAt.After(statuses[j].LastSeenAt)
	})
	return statuses
}

// Prune compacts the journal down to one newest line per live instance,
// dropping stale instances entirely.
//
// # Description
//
// Explicit maintenance, not a background job: the journal is append-only
// in normal operation and only shrinks when someone asks. Returns how
// many lines were dropped.
//
// # Outputs
//
//   - int: Lines removed (duplicates plus stale instances).
//   - error: Non-nil when the journal cannot be read or rewritten.
func (t *Tracker) Prune() (int, error) {
	path := t.paths.HeartbeatsFile()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, nil
	}

	newest := make(map[string]Heartbeat)
	stats, err := journal.ScanJSONL(path, func(hb Heartbeat) {
		if hb.InstanceID == "" {
			return
		}
		if hb.LastSeenAt.After(newest[hb.InstanceID].LastSeenAt) {
			newest[hb.InstanceID] = hb
		}
	})
	if err != nil {
		return 0, fmt.Errorf("heartbeat: scan journal: %w", err)
	}

	now := t.now()
	kept := make([]Heartbeat, 0, len(newest))
	for _, hb := range newest {
		if now.Sub(hb.LastSeenAt) > t.staleAfter {
			continue
		}
		kept = append(kept, hb)
	}
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].LastSeenAt.Before(kept[j].LastSeenAt)
	})

	if err := journal.WriteJSONL(path, kept); err != nil {
		return 0, fmt.Errorf("heartbeat: rewrite journal: %w", err)
	}

	// Corrupt lines count as removed: compaction drops them with the rest.
	return stats.Lines - len(kept), nil
}
