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
Package fabric is the tiered project memory: an append-only local graph
log (tier 1) plus an optional cloud backend (tier 2) fed through a sync
queue.

Tier 1 is the source of truth. Appending a record writes the graph line
first and only then enqueues a tier-2 handoff; a failed enqueue costs
cloud durability, never the record itself. The graph is never rewritten:
a record is considered synced when its queue entry is gone, not by
mutating graph lines. Tier 2 is strictly optional — with no credential
configured the fabric runs local-only and health reporting says so
without alarming anyone.
*/
package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/failopen"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/journal"
)

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// memoryRecordsTotal counts records appended to the graph by kind.
	memoryRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_memory_records_total",
		Help: "Total memory records appended to the local graph by kind",
	}, []string{"kind"})

	// syncQueueDepth tracks pending tier-2 handoffs after the most
	// recent queue operation.
	syncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_sync_queue_depth",
		Help: "Pending sync queue entries after the most recent queue operation",
	})

	// syncSettledTotal counts queue entries settled by the drainer.
	syncSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_sync_settled_total",
		Help: "Total sync queue entries settled by result",
	}, []string{"result"})
)

const (
	settleSynced = "synced"
	settleFailed = "failed"
)

// Config configures a Fabric. Zero values mean "use the project's
// settings file, falling back to built-in defaults".
type Config struct {
	// ProjectRoot is the working-copy root that owns .swarm/.
	ProjectRoot string

	// QueueThreshold overrides the configured degradation threshold
	// when > 0.
	QueueThreshold int

	// Cloud is the tier-2 backend. Nil means NoCloud (local-only).
	Cloud CloudTier
}

// Fabric owns one project's memory state under .swarm/memory/.
//
// # Description
//
// Append writes tier 1 and enqueues tier 2; PendingEntries and Settle
// are the drainer's half of the queue; Recent and Scan serve recall and
// index rebuilds; CheckHealth (health.go) reports on all of it.
//
// # Thread Safety
//
// Safe for concurrent use. Appends rely on O_APPEND atomicity; the
// compacting queue rewrite in Settle is atomic via rename. Concurrent
// Settle calls from separate processes can resurrect a dropped entry
// (last rewrite wins), which costs a duplicate push, never a lost
// record.
type Fabric struct {
	paths     config.Paths
	threshold int
	cloud     CloudTier

	now func() time.Time
}

// NewFabric creates a Fabric for the given project.
func NewFabric(cfg Config) *Fabric {
	settings, err := config.Load(cfg.ProjectRoot)
	if err != nil {
		slog.Debug("fabric.new: settings unavailable, using defaults",
			"error", err)
	}

	threshold := cfg.QueueThreshold
	if threshold <= 0 {
		threshold = settings.Memory.QueueThreshold
	}

	cloud := cfg.Cloud
	if cloud == nil {
		cloud = NoCloud{}
	}

	return &Fabric{
		paths:     config.NewPaths(cfg.ProjectRoot),
		threshold: threshold,
		cloud:     cloud,
		now:       time.Now,
	}
}

// Cloud returns the configured tier-2 backend.
func (f *Fabric) Cloud() CloudTier { return f.cloud }

// QueueThreshold returns the effective degradation threshold.
func (f *Fabric) QueueThreshold() int { return f.threshold }

// Append stores one record in the memory fabric.
//
// # Description
//
// Fills in ID, Timestamp, and PendingSync, validates, writes the graph
// line, then enqueues a tier-2 handoff. The graph write is the one
// operation in the coordination layer that does NOT fail open: a record
// the caller asked to remember either lands in tier 1 or the caller
// hears about it. The enqueue is best-effort; losing it means the
// record stays local until re-submitted.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - rec: Record to store. Kind and Content are required; ID and
//     Timestamp are assigned here when zero.
//
// # Outputs
//
//   - Record: The stored record with all fields populated.
//   - error: Validation failure or a tier-1 write failure.
func (f *Fabric) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = f.now().UTC()
	}
	rec.PendingSync = true

	if err := rec.Validate(); err != nil {
		return Record{}, fmt.Errorf("fabric: invalid record: %w", err)
	}

	if err := journal.AppendJSONL(f.paths.GraphFile(), rec); err != nil {
		return Record{}, fmt.Errorf("fabric: append graph: %w", err)
	}
	memoryRecordsTotal.WithLabelValues(string(rec.Kind)).Inc()

	entry := QueueEntry{
		RecordID:   rec.ID,
		Kind:       rec.Kind,
		Content:    rec.Content,
		EnqueuedAt: rec.Timestamp,
	}
	failopen.Do("fabric.enqueue", func() error {
		return journal.AppendJSONL(f.paths.QueueFile(), entry)
	})
	syncQueueDepth.Set(float64(f.QueueDepth()))

	return rec, nil
}

// Recent returns the newest records, newest first.
//
// # Description
//
// Scans the whole graph and keeps the tail. The graph is a per-project
// log measured in thousands of lines, so a full pass is cheaper than
// maintaining a reverse index for it. Corrupt lines are skipped.
//
// # Inputs
//
//   - limit: Maximum records to return. <= 0 means all.
//
// # Outputs
//
//   - []Record: Newest-first slice, empty when the graph is missing.
func (f *Fabric) Recent(limit int) []Record {
	all := failopen.Value("fabric.recent", []Record(nil), func() ([]Record, error) {
		var records []Record
		_, err := journal.ScanJSONL(f.paths.GraphFile(), func(rec Record) {
			records = append(records, rec)
		})
		return records, err
	})

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	// Reverse in place: log order is oldest-first, callers want newest-first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all
}

// Scan streams every valid graph record to fn in log order.
//
// Used by the index rebuild, which needs the corrupt-line counts the
// convenience readers hide.
func (f *Fabric) Scan(fn func(Record)) (journal.ScanStats, error) {
	return journal.ScanJSONL(f.paths.GraphFile(), fn)
}

// QueueDepth returns the number of valid pending queue entries.
//
// Corrupt queue lines do not count toward depth: depth feeds the
// degradation threshold, and a mangled line is not a pending push.
func (f *Fabric) QueueDepth() int {
	return failopen.Value("fabric.queue_depth", 0, func() (int, error) {
		depth := 0
		_, err := journal.ScanJSONL(f.paths.QueueFile(), func(QueueEntry) {
			depth++
		})
		return depth, err
	})
}

// PendingEntries returns up to limit queue entries in enqueue order.
//
// # Inputs
//
//   - limit: Maximum entries to return. <= 0 means all.
//
// # Outputs
//
//   - []QueueEntry: Oldest-first slice, empty when the queue is missing.
func (f *Fabric) PendingEntries(limit int) []QueueEntry {
	entries := failopen.Value("fabric.pending_entries", []QueueEntry(nil), func() ([]QueueEntry, error) {
		var pending []QueueEntry
		_, err := journal.ScanJSONL(f.paths.QueueFile(), func(e QueueEntry) {
			pending = append(pending, e)
		})
		return pending, err
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Settle applies one drain batch's outcome to the queue.
//
// # Description
//
// Rewrites the queue once: entries whose record IDs appear in synced
// are dropped, entries in failed get their attempt count bumped, and
// everything else is carried unchanged. Dropping an entry is the only
// way a record is ever marked synced; the graph itself is not touched.
//
// # Inputs
//
//   - synced: Record IDs confirmed durable in tier 2.
//   - failed: Record IDs whose push failed this round.
//
// # Outputs
//
//   - int: Number of entries dropped.
//   - error: Non-nil if the queue cannot be read or rewritten. The
//     queue is left as it was; a retry pushes the same records again.
func (f *Fabric) Settle(synced, failed []string) (int, error) {
	syncedSet := make(map[string]bool, len(synced))
	for _, id := range synced {
		syncedSet[id] = true
	}
	failedSet := make(map[string]bool, len(failed))
	for _, id := range failed {
		failedSet[id] = true
	}

	var kept []QueueEntry
	dropped := 0
	_, err := journal.ScanJSONL(f.paths.QueueFile(), func(e QueueEntry) {
		if syncedSet[e.RecordID] {
			dropped++
			return
		}
		if failedSet[e.RecordID] {
			e.Attempts++
		}
		kept = append(kept, e)
	})
	if err != nil {
		return 0, fmt.Errorf("fabric: read queue: %w", err)
	}
	if dropped == 0 && len(failed) == 0 {
		return 0, nil
	}

	if kept == nil {
		kept = []QueueEntry{}
	}
	if err := journal.WriteJSONL(f.paths.QueueFile(), kept); err != nil {
		return 0, fmt.Errorf("fabric: rewrite queue: %w", err)
	}

	syncSettledTotal.WithLabelValues(settleSynced).Add(float64(dropped))
	syncSettledTotal.WithLabelValues(settleFailed).Add(float64(len(failed)))
	syncQueueDepth.Set(float64(len(kept)))
	slog.Debug("fabric.settle: queue compacted",
		"dropped", dropped,
		"failed", len(failed),
		"remaining", len(kept))
	return dropped, nil
}
