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
Package syncer drains the tier-2 sync queue into a cloud backend.

Draining is always explicit (the sync CLI command, the coordinator's
sync endpoint, or a caller's own schedule); the append path never
triggers it, so tier 2 can be slow or down without tier 1 noticing.
A drain is one batch: push every pending entry through a bounded worker
pool, then settle the queue in a single compaction that removes the
confirmed entries and bumps the attempt count on the rest.
*/
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
)

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// syncDrainsTotal counts drain invocations.
	syncDrainsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_sync_drains_total",
		Help: "Total sync queue drain invocations",
	})

	// syncPushSeconds observes per-record cloud push latency.
	syncPushSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_sync_push_seconds",
		Help:    "Cloud push latency per record",
		Buckets: prometheus.DefBuckets,
	})
)

// defaultWorkers bounds concurrent pushes per drain.
const defaultWorkers = 4

// Config configures a Drainer.
type Config struct {
	// Fabric owns the queue being drained. Required.
	Fabric *fabric.Fabric

	// Cloud overrides the fabric's configured backend when non-nil.
	Cloud fabric.CloudTier

	// Workers bounds concurrent pushes. Defaults to 4.
	Workers int

	// Batch caps entries per drain. <= 0 drains everything pending.
	Batch int
}

// Report is the accounting for one drain.
type Report struct {
	Provider   string `json:"provider"`
	Attempted  int    `json:"attempted"`
	Synced     int    `json:"synced"`
	Failed     int    `json:"failed"`
	Compacted  int    `json:"compacted"`
	DurationMS int64  `json:"duration_ms"`
}

// Drainer pushes pending queue entries to the cloud tier.
//
// # Thread Safety
//
// Safe for concurrent use, though overlapping drains against the same
// queue waste pushes; callers normally serialize them.
type Drainer struct {
	fabric  *fabric.Fabric
	cloud   fabric.CloudTier
	workers int
	batch   int

	now func() time.Time
}

// NewDrainer creates a Drainer over the fabric's queue.
func NewDrainer(cfg Config) *Drainer {
	cloud := cfg.Cloud
	if cloud == nil {
		cloud = cfg.Fabric.Cloud()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Drainer{
		fabric:  cfg.Fabric,
		cloud:   cloud,
		workers: workers,
		batch:   cfg.Batch,
		now:     time.Now,
	}
}

// Drain pushes one batch of pending entries and settles the queue.
//
// # Description
//
// Loads pending entries oldest-first, hydrates each back to its full
// graph record where possible (queue entries carry enough to push on
// their own if the graph line is gone), and fans the pushes out over
// the worker pool. Individual push failures are collected, not
// propagated: those entries stay queued with their attempt count
// bumped, and the next drain retries them.
//
// # Inputs
//
//   - ctx: Cancels in-flight pushes; entries cut short stay queued.
//
// # Outputs
//
//   - Report: Per-drain accounting, valid even on error.
//   - error: fabric.ErrCloudUnconfigured without a backend, or a
//     queue compaction failure.
func (d *Drainer) Drain(ctx context.Context) (Report, error) {
	syncDrainsTotal.Inc()
	start := d.now()

	report := Report{Provider: d.cloud.Name()}
	if !d.cloud.Configured() {
		return report, fabric.ErrCloudUnconfigured
	}

	entries := d.fabric.PendingEntries(d.batch)
	report.Attempted = len(entries)
	if len(entries) == 0 {
		report.DurationMS = time.Since(start).Milliseconds()
		return report, nil
	}

	records := d.hydrate(entries)
	results := make([]error, len(entries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := range entries {
		g.Go(func() error {
			timer := prometheus.NewTimer(syncPushSeconds)
			results[i] = d.cloud.Push(gCtx, records[i])
			timer.ObserveDuration()
			return nil
		})
	}
	_ = g.Wait()

	var synced, failed []string
	for i, err := range results {
		if err != nil {
			slog.Warn("syncer.drain: push failed",
				"provider", d.cloud.Name(),
				"record_id", entries[i].RecordID,
				"attempts", entries[i].Attempts+1,
				"error", err)
			failed = append(failed, entries[i].RecordID)
			continue
		}
		synced = append(synced, entries[i].RecordID)
	}
	report.Synced = len(synced)
	report.Failed = len(failed)

	compacted, err := d.fabric.Settle(synced, failed)
	report.Compacted = compacted
	report.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		return report, err
	}

	slog.Info("syncer.drain: batch complete",
		"provider", d.cloud.Name(),
		"synced", report.Synced,
		"failed", report.Failed,
		"duration_ms", report.DurationMS)
	return report, nil
}

// hydrate maps queue entries back to full graph records, falling back
// to the entry's own copy when the graph line is unreadable.
func (d *Drainer) hydrate(entries []fabric.QueueEntry) []fabric.Record {
	byID := make(map[string]fabric.Record)
	if _, err := d.fabric.Scan(func(rec fabric.Record) {
		byID[rec.ID] = rec
	}); err != nil {
		slog.Debug("syncer.hydrate: graph unreadable, pushing queue copies",
			"error", err)
	}

	out := make([]fabric.Record, len(entries))
	for i, e := range entries {
		if rec, ok := byID[e.RecordID]; ok {
			out[i] = rec
			continue
		}
		out[i] = fabric.Record{
			ID:        e.RecordID,
			Kind:      e.Kind,
			Content:   e.Content,
			Timestamp: e.EnqueuedAt,
		}
	}
	return out
}
