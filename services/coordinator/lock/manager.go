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
Package lock grants exclusive write claims on project files to one
assistant instance at a time.

Claims live in a single shared JSON table under .swarm/ so that any
instance (and any human with cat) can see who holds what. Everything
here is advisory and fails open: a missing, corrupt, or unwritable
table never blocks an edit, it only costs the coordination that the
table would have provided. Expired claims are pruned on the next write
rather than by a background reaper.
*/
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/failopen"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/identity"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/journal"
)

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// lockDecisionTotal counts acquire outcomes.
	lockDecisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_lock_decisions_total",
		Help: "Total lock acquire decisions by outcome",
	}, []string{"outcome"})

	// lockReleaseTotal counts release outcomes.
	lockReleaseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_lock_releases_total",
		Help: "Total lock releases by result",
	}, []string{"result"})

	// lockTableLive tracks live locks after the most recent table write.
	lockTableLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_lock_table_live",
		Help: "Live locks in the table after the most recent write",
	})
)

const (
	outcomeGranted       = "granted"
	outcomeReacquired    = "reacquired"
	outcomeDenied        = "denied"
	outcomeFailOpen      = "fail_open"
	outcomeUncoordinated = "uncoordinated"

	resultReleased = "released"
	resultNotHeld  = "not_held"
)

// guardAcquireTimeout bounds how long any table operation waits for the
// sidecar guard before proceeding unguarded.
const guardAcquireTimeout = 2 * time.Second

// Config configures a Manager. Zero values mean "use the project's
// settings file, falling back to built-in defaults".
type Config struct {
	// ProjectRoot is the working-copy root that owns .swarm/.
	ProjectRoot string

	// TTL overrides the configured lock lifetime when > 0.
	TTL time.Duration

	// Guard overrides the default flock guard. Tests substitute
	// NoopGuard to exercise unguarded behavior.
	Guard TableGuard
}

// Manager mediates exclusive file claims between instances sharing one
// working copy.
//
// # Description
//
// Acquire, Release, and List operate on the shared table at
// .swarm/locks.json with a read-modify-write cycle serialized by a
// flock guard. If the guard cannot be taken in time the cycle proceeds
// unguarded: a lost update is preferable to a blocked edit. All
// filesystem failures degrade to permissive answers.
//
// # Thread Safety
//
// Safe for concurrent use. Cross-process safety is best-effort via the
// guard; see Table for the residual race.
type Manager struct {
	paths   config.Paths
	ttl     time.Duration
	enabled bool
	guard   TableGuard

	now func() time.Time
}

// NewManager creates a Manager for the given project.
//
// Settings are read once here; long-lived callers pick up settings
// changes on restart, and hook invocations construct a fresh Manager
// per event anyway.
func NewManager(cfg Config) *Manager {
	settings, err := config.Load(cfg.ProjectRoot)
	if err != nil {
		slog.Debug("lock.new_manager: settings unavailable, using defaults",
			"error", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = settings.Coordination.LockTTL
	}

	paths := config.NewPaths(cfg.ProjectRoot)
	guard := cfg.Guard
	if guard == nil {
		guard = NewFlockGuard(paths.GuardFile())
	}

	return &Manager{
		paths:   paths,
		ttl:     ttl,
		enabled: settings.Coordination.Enabled,
		guard:   guard,
		now:     time.Now,
	}
}

// Enabled reports whether coordination is active for this project.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// TTL returns the lock lifetime this manager grants.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Acquire claims exclusive write access to filePath for id.
//
// # Description
//
// Ungated paths are allowed without touching the table: coordination
// disabled, paths inside .swarm/ itself, and paths outside the project
// root. Otherwise the table is loaded, expired claims are pruned, and
// the path is checked for a live conflicting claim. A claim held by id
// itself is re-granted with a refreshed expiry; a claim held by anyone
// else denies with the conflicting lock attached. Grants and prunes
// persist in one write.
//
// # Inputs
//
//   - ctx: Bounds the guard wait.
//   - filePath: File being claimed, absolute or project-relative.
//   - id: The claiming instance.
//   - reason: Free-text explanation stored on the lock.
//
// # Outputs
//
//   - Decision: Granted/denied with reason; denials carry Conflict.
func (m *Manager) Acquire(ctx context.Context, filePath string, id identity.Identity, reason string) Decision {
	if !m.enabled {
		lockDecisionTotal.WithLabelValues(outcomeUncoordinated).Inc()
		return Decision{Granted: true, Reason: ReasonDisabled}
	}
	if m.paths.Inside(filePath) {
		lockDecisionTotal.WithLabelValues(outcomeUncoordinated).Inc()
		return Decision{Granted: true, Reason: ReasonMetadata}
	}
	rel := m.paths.Rel(filePath)
	if rel == "" {
		lockDecisionTotal.WithLabelValues(outcomeUncoordinated).Inc()
		return Decision{Granted: true, Reason: ReasonOutside}
	}

	release := m.acquireGuard(ctx)
	defer release()

	table := m.loadTable()
	now := m.now()
	if pruned := table.Prune(now); pruned > 0 {
		slog.Debug("lock.acquire: pruned expired locks", "count", pruned)
	}

	for i := range table.Locks {
		lk := &table.Locks[i]
		if lk.FilePath != rel {
			continue
		}
		if lk.InstanceID == id.ID {
			// Re-acquire by the holder refreshes the lease.
			lk.ExpiresAt = now.Add(m.ttl)
			if reason != "" {
				lk.Reason = reason
			}
			m.persist(table)
			lockDecisionTotal.WithLabelValues(outcomeReacquired).Inc()
			return Decision{Granted: true, Reason: ReasonReacquired}
		}

		conflict := *lk
		lockDecisionTotal.WithLabelValues(outcomeDenied).Inc()
		slog.Info("lock.acquire: denied",
			"path", rel,
			"requester", id.ID,
			"holder", conflict.InstanceID,
			"expires_at", conflict.ExpiresAt.Format(time.RFC3339))
		return Decision{
			Granted:  false,
			Conflict: &conflict,
			Reason:   fmt.Sprintf("held by %s", conflict.InstanceID),
		}
	}

	table.Locks = append(table.Locks, FileLock{
		LockID:     uuid.NewString(),
		FilePath:   rel,
		LockType:   LockTypeExclusiveWrite,
		InstanceID: id.ID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
		Reason:     reason,
	})

	if !m.persist(table) {
		lockDecisionTotal.WithLabelValues(outcomeFailOpen).Inc()
		return Decision{Granted: true, Reason: ReasonFailOpen}
	}

	lockDecisionTotal.WithLabelValues(outcomeGranted).Inc()
	slog.Debug("lock.acquire: granted",
		"path", rel,
		"instance", id.ID,
		"ttl", m.ttl.String())
	return Decision{Granted: true, Reason: ReasonGranted}
}

// Release drops id's claim on filePath.
//
// # Description
//
// Removes the (path, instance) entry if present and persists the
// shrunken table. When nothing matches, the table is not rewritten and
// false is returned; releasing someone else's lock is not possible.
// Expired entries held by id are removed like live ones, so a holder
// that outlived its lease still cleans up after itself.
//
// # Outputs
//
//   - bool: True iff an entry was removed and the table was persisted.
func (m *Manager) Release(ctx context.Context, filePath string, id identity.Identity) bool {
	if !m.enabled || m.paths.Inside(filePath) {
		return false
	}
	rel := m.paths.Rel(filePath)
	if rel == "" {
		return false
	}

	release := m.acquireGuard(ctx)
	defer release()

	table := m.loadTable()
	var kept []FileLock
	removed := false
	for _, lk := range table.Locks {
		if lk.FilePath == rel && lk.InstanceID == id.ID {
			removed = true
			continue
		}
		kept = append(kept, lk)
	}
	if !removed {
		lockReleaseTotal.WithLabelValues(resultNotHeld).Inc()
		return false
	}

	table.Locks = kept
	if !m.persist(table) {
		return false
	}

	lockReleaseTotal.WithLabelValues(resultReleased).Inc()
	slog.Debug("lock.release: released", "path", rel, "instance", id.ID)
	return true
}

// ReleaseAll drops every claim held by id and returns how many were
// removed. Used on session end so a departing instance leaves nothing
// behind.
func (m *Manager) ReleaseAll(ctx context.Context, id identity.Identity) int {
	if !m.enabled {
		return 0
	}

	release := m.acquireGuard(ctx)
	defer release()

	table := m.loadTable()
	var kept []FileLock
	removed := 0
	for _, lk := range table.Locks {
		if lk.InstanceID == id.ID {
			removed++
			continue
		}
		kept = append(kept, lk)
	}
	if removed == 0 {
		return 0
	}

	table.Locks = kept
	if !m.persist(table) {
		return 0
	}

	slog.Debug("lock.release_all: released", "instance", id.ID, "count", removed)
	return removed
}

// List returns the live locks, sorted by path. Read-only: expired
// entries are filtered from the answer but stay on disk until the next
// write prunes them.
func (m *Manager) List(ctx context.Context) []FileLock {
	table := m.loadTable()
	table.Prune(m.now())

	sort.Slice(table.Locks, func(i, j int) bool {
		return table.Locks[i].FilePath < table.Locks[j].FilePath
	})
	return table.Locks
}

// ==============================================================================
// Internal helpers
// ==============================================================================

// acquireGuard takes the table guard with a bounded wait. On failure it
// logs and returns a no-op release: an unguarded cycle risks the
// documented lost-update race but never blocks the caller.
func (m *Manager) acquireGuard(ctx context.Context) func() {
	gctx, cancel := context.WithTimeout(ctx, guardAcquireTimeout)
	defer cancel()

	release, err := m.guard.Acquire(gctx)
	if err != nil {
		slog.Warn("lock.guard: proceeding unguarded", "error", err)
		return func() {}
	}
	return release
}

// loadTable reads the lock table, treating a missing or unreadable
// document as empty.
func (m *Manager) loadTable() Table {
	return failopen.Value("lock.load_table", Table{}, func() (Table, error) {
		table, err := journal.ReadDocument[Table](m.paths.LocksFile())
		if errors.Is(err, journal.ErrNotExist) {
			return Table{}, nil
		}
		return table, err
	})
}

// persist writes the table back, reporting success. The live-lock gauge
// tracks successful writes only.
func (m *Manager) persist(table Table) bool {
	if table.Locks == nil {
		// Keep the document shape stable for external readers.
		table.Locks = []FileLock{}
	}
	ok := failopen.Do("lock.persist_table", func() error {
		return journal.WriteDocument(m.paths.LocksFile(), table)
	})
	if ok {
		lockTableLive.Set(float64(len(table.Locks)))
	}
	return ok
}
