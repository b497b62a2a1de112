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
Package coordinator bundles the swarm coordination components behind
one service facade and exposes them over HTTP.

The facade exists for two callers: the swarm CLI, which constructs a
Service per invocation and works the components directly, and the
coordinator server, which keeps one Service alive and serves the
/v1/swarm endpoints from it. Both see identical semantics because the
Service owns nothing itself; every operation lands in the same .swarm/
files the hook path writes.
*/
package coordinator

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/extract"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric/mem0"
	weaviatetier "github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric/weaviate"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/heartbeat"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/hook"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/identity"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/index"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/lock"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/syncer"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/telemetry"
)

const tracerName = "coordinator.service"

// Config configures a Service.
type Config struct {
	// ProjectRoot is the project directory containing .swarm/. Required.
	ProjectRoot string

	// Settings overrides the loaded settings when non-nil. Tests use
	// this to skip the config layer.
	Settings *config.Settings

	// Cloud overrides provider selection when non-nil.
	Cloud fabric.CloudTier
}

// Service is the coordination facade for one project.
//
// # Thread Safety
//
// Safe for concurrent use; every component it bundles carries its own
// guarantee.
type Service struct {
	projectRoot string
	settings    config.Settings

	resolver *identity.Resolver
	locks    *lock.Manager
	beats    *heartbeat.Tracker
	fabric   *fabric.Fabric
	drainer  *syncer.Drainer
	runner   *hook.Runner
}

// SelectCloud picks the tier-2 backend for the configured provider.
//
// # Description
//
// Maps the cloud.provider setting to a concrete backend. "auto"
// prefers mem0 when its credential resolves, then weaviate when its
// URL does, then local-only. An explicitly named provider is returned
// even when unconfigured so health output can say "mem0, no
// credential" instead of silently downgrading.
//
// # Inputs
//
//   - s: Effective settings; only Cloud.Provider is consulted.
//   - projectRoot: Used to derive the provider-side namespace.
//
// # Outputs
//
//   - fabric.CloudTier: Never nil; NoCloud when nothing is usable.
func SelectCloud(s config.Settings, projectRoot string) fabric.CloudTier {
	project := filepath.Base(filepath.Clean(projectRoot))

	switch s.Cloud.Provider {
	case config.ProviderNone:
		return fabric.NoCloud{}
	case config.ProviderMem0:
		return mem0.NewClient(mem0.Config{Project: project})
	case config.ProviderWeaviate:
		return weaviatetier.NewTier(weaviatetier.Config{Project: project})
	}

	if m := mem0.NewClient(mem0.Config{Project: project}); m.Configured() {
		return m
	}
	if w := weaviatetier.NewTier(weaviatetier.Config{Project: project}); w.Configured() {
		return w
	}
	return fabric.NoCloud{}
}

// NewService wires a Service for one project.
//
// # Description
//
// Loads settings (defaults on error, logged and carried on), selects
// the cloud backend, and constructs the full component set. Nothing
// here touches the network or creates files; the first operation that
// needs .swarm/ creates it.
//
// # Inputs
//
//   - cfg: ProjectRoot is required; the rest are optional overrides.
//
// # Outputs
//
//   - *Service: Ready for use.
func NewService(cfg Config) *Service {
	var settings config.Settings
	if cfg.Settings != nil {
		settings = *cfg.Settings
		settings.EnsureDefaults()
	} else {
		var err error
		settings, err = config.Load(cfg.ProjectRoot)
		if err != nil {
			slog.Warn("coordinator: settings unavailable, using defaults",
				"project_root", cfg.ProjectRoot, "error", err)
		}
	}

	cloud := cfg.Cloud
	if cloud == nil {
		cloud = SelectCloud(settings, cfg.ProjectRoot)
	}

	fab := fabric.NewFabric(fabric.Config{
		ProjectRoot:    cfg.ProjectRoot,
		QueueThreshold: settings.Memory.QueueThreshold,
		Cloud:          cloud,
	})
	resolver := identity.NewResolver(cfg.ProjectRoot)
	locks := lock.NewManager(lock.Config{
		ProjectRoot: cfg.ProjectRoot,
		TTL:         settings.Coordination.LockTTL,
	})
	beats := heartbeat.NewTracker(heartbeat.Config{
		ProjectRoot: cfg.ProjectRoot,
		StaleAfter:  settings.Coordination.StaleAfter,
	})

	return &Service{
		projectRoot: cfg.ProjectRoot,
		settings:    settings,
		resolver:    resolver,
		locks:       locks,
		beats:       beats,
		fabric:      fab,
		drainer:     syncer.NewDrainer(syncer.Config{Fabric: fab}),
		runner: hook.NewRunner(hook.Config{
			Resolver: resolver,
			Locks:    locks,
			Beats:    beats,
			Fabric:   fab,
		}),
	}
}

// ProjectRoot returns the project directory the service coordinates.
func (s *Service) ProjectRoot() string { return s.projectRoot }

// Settings returns the effective settings.
func (s *Service) Settings() config.Settings { return s.settings }

// Resolver returns the identity resolver.
func (s *Service) Resolver() *identity.Resolver { return s.resolver }

// Locks returns the lock manager.
func (s *Service) Locks() *lock.Manager { return s.locks }

// Beats returns the heartbeat tracker.
func (s *Service) Beats() *heartbeat.Tracker { return s.beats }

// Fabric returns the memory fabric.
func (s *Service) Fabric() *fabric.Fabric { return s.fabric }

// Drainer returns the sync queue drainer.
func (s *Service) Drainer() *syncer.Drainer { return s.drainer }

// Runner returns the hook runner.
func (s *Service) Runner() *hook.Runner { return s.runner }

// Remember appends one memory record.
//
// # Description
//
// Fills defaults the wire request leaves open: a missing kind becomes
// observation, a missing category comes from the keyword classifier.
// Validation and ID assignment happen in the fabric.
//
// # Inputs
//
//   - ctx: Context for tracing.
//   - req: Content is required; everything else optional.
//
// # Outputs
//
//   - CreateRecordResponse: The stored record plus queue depth.
//   - error: fabric.ErrEmptyContent, fabric.ErrInvalidKind, or a
//     tier-1 write failure.
func (s *Service) Remember(ctx context.Context, req CreateRecordRequest) (CreateRecordResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.Remember")
	defer span.End()

	kind := fabric.Kind(req.Kind)
	if req.Kind == "" {
		kind = fabric.KindObservation
	}
	category := req.Category
	if category == "" {
		category = extract.Classify(req.Content)
	}

	rec, err := s.fabric.Append(ctx, fabric.Record{
		Kind:     kind,
		Category: category,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return CreateRecordResponse{}, err
	}
	return CreateRecordResponse{Record: rec, QueueDepth: s.fabric.QueueDepth()}, nil
}

// Extract mines text for memory candidates, optionally storing them.
//
// Stored candidates land as pattern/decision records attributed to
// this service; storing continues past individual append failures so
// one bad candidate cannot hide the rest.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) ExtractResponse {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.Extract")
	defer span.End()

	candidates := extract.Extract(req.Text)
	resp := ExtractResponse{Candidates: candidates}
	if !req.Store {
		return resp
	}

	for _, cand := range candidates {
		kind := fabric.KindDecision
		if cand.Category == extract.FallbackCategory {
			kind = fabric.KindPattern
		}
		if _, err := s.fabric.Append(ctx, fabric.Record{
			Kind:     kind,
			Category: cand.Category,
			Content:  cand.Content,
		}); err != nil {
			telemetry.RecordError(span, err)
			slog.Warn("coordinator.extract: append failed", "error", err)
			continue
		}
		resp.Stored++
	}
	return resp
}

// Recall answers a memory query.
//
// # Description
//
// Serves from the badger index when it can be opened, rebuilding it
// first when empty. When the index is unavailable (most commonly the
// directory is locked by another process) the query falls back to a
// linear scan of the graph log with the same every-term-matches
// semantics. The index is derived state; recall must keep answering
// without it.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - query: Free-text terms; all must match.
//   - limit: Maximum records, newest first. <= 0 means 10.
//
// # Outputs
//
//   - RecallResponse: Matches plus which path served them.
func (s *Service) Recall(ctx context.Context, query string, limit int) RecallResponse {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.Recall")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	resp := RecallResponse{Query: query, Source: "index"}

	ix, err := index.Open(index.Config{ProjectRoot: s.projectRoot})
	if err == nil {
		defer ix.Close()
		if n, cErr := ix.Count(); cErr == nil && n == 0 {
			if _, rErr := ix.Rebuild(ctx, s.fabric); rErr != nil {
				telemetry.RecordError(span, rErr)
				slog.Warn("coordinator.recall: index rebuild failed", "error", rErr)
			}
		}
		records, sErr := ix.Search(ctx, query, limit)
		if sErr == nil {
			resp.Records = records
			resp.Count = len(records)
			return resp
		}
		telemetry.RecordError(span, sErr)
		slog.Warn("coordinator.recall: index search failed, scanning", "error", sErr)
	} else {
		slog.Debug("coordinator.recall: index unavailable, scanning", "error", err)
	}

	resp.Source = "scan"
	resp.Records = s.scanSearch(query, limit)
	resp.Count = len(resp.Records)
	return resp
}

// scanSearch is the index-free recall path: newest-first over the
// graph log, keeping records whose content or category contains every
// query term.
func (s *Service) scanSearch(query string, limit int) []fabric.Record {
	terms := strings.Fields(strings.ToLower(query))
	var out []fabric.Record
	for _, rec := range s.fabric.Recent(0) {
		haystack := strings.ToLower(rec.Content + " " + rec.Category)
		matched := true
		for _, term := range terms {
			if !strings.Contains(haystack, term) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, rec)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Sync drains one batch of the tier-2 queue.
func (s *Service) Sync(ctx context.Context) (syncer.Report, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.Sync")
	defer span.End()

	report, err := s.drainer.Drain(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return report, err
}

// Status composes the full diagnostics view.
//
// # Description
//
// One read pass over every coordination surface: identity, lock table,
// heartbeats, queue depth, and the fabric health snapshot. Everything
// here is read-only and fails open, so status always answers.
func (s *Service) Status(ctx context.Context) StatusResponse {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Service.Status")
	defer span.End()

	id := s.resolver.Resolve(ctx, "")
	statuses := s.beats.Snapshot()
	stale := 0
	for _, st := range statuses {
		if st.Stale {
			stale++
		}
	}

	return StatusResponse{
		ProjectRoot:     s.projectRoot,
		Enabled:         s.settings.Coordination.Enabled,
		Instance:        id,
		Locks:           len(s.locks.List(ctx)),
		ActiveInstances: len(statuses) - stale,
		StaleInstances:  stale,
		QueueDepth:      s.fabric.QueueDepth(),
		CloudProvider:   s.fabric.Cloud().Name(),
		Memory:          s.fabric.CheckHealth(),
		Version:         ServiceVersion,
	}
}

// Heartbeats composes the per-instance liveness view.
func (s *Service) Heartbeats() HeartbeatsResponse {
	statuses := s.beats.Snapshot()
	return HeartbeatsResponse{
		Instances:         statuses,
		Count:             len(statuses),
		StaleAfterSeconds: int(s.beats.StaleAfter() / time.Second),
	}
}
