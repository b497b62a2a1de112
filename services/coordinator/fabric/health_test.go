// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabric

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
)

// stubCloud is a canned tier-2 backend for health and drain tests.
type stubCloud struct {
	name       string
	configured bool
	pushErr    error
}

func (s stubCloud) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s stubCloud) Configured() bool { return s.configured }

func (s stubCloud) Push(ctx context.Context, rec Record) error { return s.pushErr }

// ===== GRAPH TIER TESTS =====

func TestCheckHealth_HealthyLocalOnly(t *testing.T) {
	root := t.TempDir()
	f := newTestFabric(t, root)
	writeGraph(t, root, []string{
		recordLine(t, Record{ID: "a", Kind: KindDecision, Content: "first remembered decision"}),
		recordLine(t, Record{ID: "b", Kind: KindPattern, Content: "first remembered pattern"}),
	})

	snap := f.CheckHealth()

	if snap.Tiers.Graph.Status != StatusHealthy {
		t.Errorf("graph status = %s, want healthy", snap.Tiers.Graph.Status)
	}
	if snap.Tiers.Graph.LineCount != 2 || snap.Tiers.Graph.CorruptLines != 0 {
		t.Errorf("graph counts = %d/%d, want 2/0",
			snap.Tiers.Graph.LineCount, snap.Tiers.Graph.CorruptLines)
	}
	if !snap.Tiers.Graph.Exists {
		t.Error("graph file exists but Exists = false")
	}
	if snap.Overall != StatusHealthy {
		t.Errorf("overall = %s, want healthy", snap.Overall)
	}
	if snap.CheckedAt.IsZero() {
		t.Error("CheckedAt not set")
	}
}

func TestCheckHealth_DegradedOnCorruptionAndBacklog(t *testing.T) {
	root := t.TempDir()
	f := newTestFabric(t, root)

	// Ten valid lines, two corrupt ones, and a backlog of sixty against
	// the default threshold of fifty.
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, recordLine(t, Record{
			ID:      "rec",
			Kind:    KindObservation,
			Content: "a perfectly decodable graph line",
		}))
	}
	lines = append(lines, `{"id": "torn-`, "never json")
	writeGraph(t, root, lines)
	writeQueue(t, root, queueLines(t, 60))

	snap := f.CheckHealth()

	graph := snap.Tiers.Graph
	if graph.Status != StatusDegraded {
		t.Fatalf("graph status = %s, want degraded", graph.Status)
	}
	if graph.LineCount != 12 {
		t.Errorf("LineCount = %d, want 12 (valid and corrupt lines both count)", graph.LineCount)
	}
	if graph.CorruptLines != 2 {
		t.Errorf("CorruptLines = %d, want 2", graph.CorruptLines)
	}
	if !strings.Contains(graph.Message, "2 corrupt graph lines") {
		t.Errorf("message %q should report the corruption", graph.Message)
	}
	if !strings.Contains(graph.Message, "sync backlog 60 exceeds threshold 50") {
		t.Errorf("message %q should report the backlog", graph.Message)
	}
	if snap.Overall != StatusDegraded {
		t.Errorf("overall = %s, want degraded", snap.Overall)
	}
}

func TestCheckHealth_MissingMemoryDirUnavailable(t *testing.T) {
	f := newTestFabric(t, t.TempDir())

	snap := f.CheckHealth()

	if snap.Tiers.Graph.Status != StatusUnavailable {
		t.Errorf("graph status = %s, want unavailable", snap.Tiers.Graph.Status)
	}
	if !strings.Contains(snap.Tiers.Graph.Message, "memory directory missing") {
		t.Errorf("graph message = %q", snap.Tiers.Graph.Message)
	}
	if snap.Tiers.Fabric.Status != StatusUnavailable {
		t.Errorf("fabric status = %s, want unavailable when tier 1 is down",
			snap.Tiers.Fabric.Status)
	}
	if snap.Overall != StatusUnavailable {
		t.Errorf("overall = %s, want unavailable", snap.Overall)
	}
}

func TestCheckHealth_EmptyMemoryDirIsHealthy(t *testing.T) {
	root := t.TempDir()
	f := newTestFabric(t, root)
	if err := os.MkdirAll(config.NewPaths(root).MemoryDir(), 0o750); err != nil {
		t.Fatalf("mkdir memory dir: %v", err)
	}

	snap := f.CheckHealth()

	if snap.Tiers.Graph.Status != StatusHealthy {
		t.Errorf("graph status = %s, want healthy (no records yet is fine)",
			snap.Tiers.Graph.Status)
	}
	if snap.Tiers.Graph.Exists {
		t.Error("Exists = true with no graph file")
	}
	if snap.Tiers.Graph.LineCount != 0 {
		t.Errorf("LineCount = %d, want 0", snap.Tiers.Graph.LineCount)
	}
}

func TestCheckHealth_QueueAtThresholdNotDegraded(t *testing.T) {
	root := t.TempDir()
	f := NewFabric(Config{ProjectRoot: root, QueueThreshold: 3})
	writeGraph(t, root, []string{
		recordLine(t, Record{ID: "a", Kind: KindDecision, Content: "threshold is strictly greater-than"}),
	})
	writeQueue(t, root, queueLines(t, 3))

	if snap := f.CheckHealth(); snap.Tiers.Graph.Status != StatusHealthy {
		t.Errorf("depth == threshold should stay healthy, got %s", snap.Tiers.Graph.Status)
	}

	writeQueue(t, root, queueLines(t, 4))
	if snap := f.CheckHealth(); snap.Tiers.Graph.Status != StatusDegraded {
		t.Errorf("depth > threshold should degrade, got %s", snap.Tiers.Graph.Status)
	}
}

// ===== CLOUD TIER TESTS =====

func TestCheckHealth_UnconfiguredCloudExcludedFromOverall(t *testing.T) {
	root := t.TempDir()
	f := newTestFabric(t, root)
	writeGraph(t, root, []string{
		recordLine(t, Record{ID: "a", Kind: KindDecision, Content: "local-only projects are healthy"}),
	})

	snap := f.CheckHealth()

	cloud := snap.Tiers.Cloud
	if cloud.Status != StatusUnavailable {
		t.Errorf("cloud status = %s, want unavailable without a credential", cloud.Status)
	}
	if !strings.Contains(cloud.Message, "optional") {
		t.Errorf("cloud message %q should say tier 2 is optional", cloud.Message)
	}
	if snap.Tiers.Fabric.Status != StatusHealthy {
		t.Errorf("fabric status = %s, want healthy in local-only mode",
			snap.Tiers.Fabric.Status)
	}
	if snap.Overall != StatusHealthy {
		t.Errorf("overall = %s, want healthy: an unconfigured cloud tier must not drag it down",
			snap.Overall)
	}
}

func TestCheckHealth_ConfiguredCloudHealthy(t *testing.T) {
	root := t.TempDir()
	f := NewFabric(Config{
		ProjectRoot: root,
		Cloud:       stubCloud{name: "mem0", configured: true},
	})
	writeGraph(t, root, []string{
		recordLine(t, Record{ID: "a", Kind: KindDecision, Content: "both tiers in play"}),
	})
	writeQueue(t, root, queueLines(t, 2))

	snap := f.CheckHealth()

	if snap.Tiers.Cloud.Status != StatusHealthy {
		t.Errorf("cloud status = %s, want healthy", snap.Tiers.Cloud.Status)
	}
	if !strings.Contains(snap.Tiers.Cloud.Message, "mem0") {
		t.Errorf("cloud message %q should name the backend", snap.Tiers.Cloud.Message)
	}
	if snap.Tiers.Fabric.Message != "both tiers operational" {
		t.Errorf("fabric message = %q", snap.Tiers.Fabric.Message)
	}
	if snap.Overall != StatusHealthy {
		t.Errorf("overall = %s, want healthy", snap.Overall)
	}
}

func TestCheckHealth_ConfiguredCloudBacklogDegradesOverall(t *testing.T) {
	root := t.TempDir()
	f := NewFabric(Config{
		ProjectRoot:    root,
		QueueThreshold: 5,
		Cloud:          stubCloud{name: "weaviate", configured: true},
	})
	writeGraph(t, root, []string{
		recordLine(t, Record{ID: "a", Kind: KindDecision, Content: "backlog hits both tiers"}),
	})
	writeQueue(t, root, queueLines(t, 9))

	snap := f.CheckHealth()

	if snap.Tiers.Graph.Status != StatusDegraded {
		t.Errorf("graph status = %s, want degraded", snap.Tiers.Graph.Status)
	}
	if snap.Tiers.Cloud.Status != StatusDegraded {
		t.Errorf("cloud status = %s, want degraded", snap.Tiers.Cloud.Status)
	}
	if !strings.Contains(snap.Tiers.Cloud.Message, "weaviate") {
		t.Errorf("cloud message %q should name the backend", snap.Tiers.Cloud.Message)
	}
	if snap.Tiers.Fabric.Status != StatusHealthy {
		t.Errorf("fabric status = %s, want healthy (no tier is unavailable)",
			snap.Tiers.Fabric.Status)
	}
	if snap.Overall != StatusDegraded {
		t.Errorf("overall = %s, want degraded", snap.Overall)
	}
}

func TestCheckHealth_CloudRowDescribesQueueFile(t *testing.T) {
	root := t.TempDir()
	f := newTestFabric(t, root)
	writeGraph(t, root, []string{
		recordLine(t, Record{ID: "a", Kind: KindDecision, Content: "queue stats live on the cloud row"}),
	})
	lines := queueLines(t, 2)
	lines = append(lines, "not a queue entry")
	writeQueue(t, root, lines)

	snap := f.CheckHealth()

	cloud := snap.Tiers.Cloud
	if !cloud.Exists {
		t.Error("queue file exists but Exists = false")
	}
	if cloud.LineCount != 3 || cloud.CorruptLines != 1 {
		t.Errorf("cloud counts = %d/%d, want 3/1", cloud.LineCount, cloud.CorruptLines)
	}
}

// ===== COMPOSITE TESTS =====

func TestCheckHealth_FixedClock(t *testing.T) {
	root := t.TempDir()
	f := newTestFabric(t, root)
	at := time.Date(2026, 4, 1, 12, 30, 0, 0, time.UTC)
	f.now = func() time.Time { return at }

	if snap := f.CheckHealth(); !snap.CheckedAt.Equal(at) {
		t.Errorf("CheckedAt = %v, want %v", snap.CheckedAt, at)
	}
}

func TestWorse(t *testing.T) {
	tests := []struct {
		a, b, want Status
	}{
		{StatusHealthy, StatusHealthy, StatusHealthy},
		{StatusHealthy, StatusDegraded, StatusDegraded},
		{StatusDegraded, StatusHealthy, StatusDegraded},
		{StatusDegraded, StatusUnavailable, StatusUnavailable},
		{StatusUnavailable, StatusHealthy, StatusUnavailable},
		{StatusUnavailable, StatusDegraded, StatusUnavailable},
	}
	for _, tt := range tests {
		if got := Worse(tt.a, tt.b); got != tt.want {
			t.Errorf("Worse(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}
