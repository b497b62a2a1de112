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
Package hook turns host-runtime tool events into coordination actions.

Pre-tool events gate file mutations behind the lock table; post-tool
events record liveness and mine successful output for the memory
fabric. The one hard rule is inherited from the lock layer: no failure
of this plumbing may block the user's actual work, so every internal
error resolves to an allow.
*/
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/extract"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/heartbeat"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/identity"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/lock"
)

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// hookEventsTotal counts processed events by phase.
	hookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_hook_events_total",
		Help: "Total hook events processed by phase",
	}, []string{"phase"})
)

const (
	phasePre  = "pre"
	phasePost = "post"
)

// Config wires a Runner. Every field is required; the Runner owns no
// component lifecycles and shares them with whatever else the process
// runs.
type Config struct {
	Resolver *identity.Resolver
	Locks    *lock.Manager
	Beats    *heartbeat.Tracker
	Fabric   *fabric.Fabric
}

// Runner executes the pre- and post-tool flows for one project.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives in the wired components,
// which carry their own guarantees.
type Runner struct {
	resolver *identity.Resolver
	locks    *lock.Manager
	beats    *heartbeat.Tracker
	fabric   *fabric.Fabric
}

// NewRunner creates a Runner over the given components.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		resolver: cfg.Resolver,
		locks:    cfg.Locks,
		beats:    cfg.Beats,
		fabric:   cfg.Fabric,
	}
}

// PreTool decides whether a tool use may proceed.
//
// # Description
//
// Resolves the instance identity (honoring the event's hint), records
// a heartbeat, and for mutating tools attempts to claim the target
// path. Non-mutating tools pass through untouched. The only deny is a
// live lock held by a different instance; the denial carries that lock
// so the host can tell the user who holds the file and until when.
//
// # Inputs
//
//   - ctx: Bounds the lock guard wait.
//   - ev: The host event; a zero event is a harmless allow.
//
// # Outputs
//
//   - Decision: allow or deny with reason, never an error.
func (r *Runner) PreTool(ctx context.Context, ev Event) Decision {
	hookEventsTotal.WithLabelValues(phasePre).Inc()

	id := r.resolver.Resolve(ctx, ev.InstanceHint)
	r.beats.Beat(id)

	if !ev.Mutating() {
		return Decision{Decision: DecisionAllow, Reason: ReasonNotMutating}
	}

	dec := r.locks.Acquire(ctx, ev.FilePath, id, lockReason(ev))
	if dec.Granted {
		return Decision{Decision: DecisionAllow, Reason: dec.Reason}
	}

	slog.Info("hook.pre: tool use denied",
		"tool", ev.ToolName,
		"path", ev.FilePath,
		"reason", dec.Reason)
	return Decision{Decision: DecisionDeny, Reason: dec.Reason, Conflict: dec.Conflict}
}

// PostTool records the aftermath of a tool use.
//
// # Description
//
// Always heartbeats. When the host flagged the run successful and
// shipped output, the output is mined for decision candidates and each
// one is appended to the memory fabric. Append failures drop that
// candidate and keep going; mining is strictly best-effort.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - ev: The host event.
//
// # Outputs
//
//   - Summary: What was recorded, never an error.
func (r *Runner) PostTool(ctx context.Context, ev Event) Summary {
	hookEventsTotal.WithLabelValues(phasePost).Inc()

	id := r.resolver.Resolve(ctx, ev.InstanceHint)
	sum := Summary{HeartbeatRecorded: r.beats.Beat(id)}

	if ev.Success == nil || !*ev.Success {
		return sum
	}
	if strings.TrimSpace(ev.AgentOutput) == "" {
		return sum
	}

	candidates := extract.Extract(ev.AgentOutput)
	sum.CandidatesFound = len(candidates)

	for _, c := range candidates {
		rec := fabric.Record{
			Kind:     kindFor(c.Category),
			Category: c.Category,
			Content:  c.Content,
			Metadata: eventMetadata(ev, id),
		}
		if _, err := r.fabric.Append(ctx, rec); err != nil {
			slog.Warn("hook.post: dropping candidate", "error", err)
			continue
		}
		sum.RecordsAppended++
	}

	if sum.RecordsAppended > 0 {
		slog.Debug("hook.post: mined agent output",
			"instance", id.ID,
			"candidates", sum.CandidatesFound,
			"appended", sum.RecordsAppended)
	}
	return sum
}

// kindFor maps the classifier's category to a record kind: anything
// the classifier recognized is a decision, the fallback is a pattern.
func kindFor(category string) fabric.Kind {
	if category == extract.FallbackCategory {
		return fabric.KindPattern
	}
	return fabric.KindDecision
}

// lockReason is the free-text provenance stored on a claimed lock.
func lockReason(ev Event) string {
	if ev.SessionID == "" {
		return ev.ToolName
	}
	return fmt.Sprintf("%s session %s", ev.ToolName, ev.SessionID)
}

// eventMetadata is the provenance attached to each mined record.
func eventMetadata(ev Event, id identity.Identity) map[string]string {
	md := map[string]string{"instance_id": id.ID}
	if ev.SessionID != "" {
		md["session_id"] = ev.SessionID
	}
	if ev.ToolName != "" {
		md["tool"] = ev.ToolName
	}
	return md
}
