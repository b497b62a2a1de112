// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
)

// ===== HELPERS =====

// fakeCloud records pushes and can fail selected record ids.
type fakeCloud struct {
	configured bool
	failIDs    map[string]bool
	pushDelay  time.Duration

	mu          sync.Mutex
	pushed      []fabric.Record
	inFlight    int
	maxInFlight int
}

func (f *fakeCloud) Name() string     { return "fake" }
func (f *fakeCloud) Configured() bool { return f.configured }

func (f *fakeCloud) Push(_ context.Context, rec fabric.Record) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.pushDelay > 0 {
		time.Sleep(f.pushDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.failIDs[rec.ID] {
		return errors.New("backend rejected record")
	}
	f.pushed = append(f.pushed, rec)
	return nil
}

func (f *fakeCloud) snapshot() ([]fabric.Record, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fabric.Record(nil), f.pushed...), f.maxInFlight
}

// seedFabric appends n records and returns them as stored.
func seedFabric(t *testing.T, fab *fabric.Fabric, n int) []fabric.Record {
	t.Helper()
	out := make([]fabric.Record, n)
	for i := range out {
		rec, err := fab.Append(context.Background(), fabric.Record{
			Kind:     fabric.KindDecision,
			Category: "database",
			Content:  fmt.Sprintf("queued decision number %02d", i),
		})
		if err != nil {
			t.Fatalf("seed append %d: %v", i, err)
		}
		out[i] = rec
	}
	return out
}

// ===== DRAIN =====

func TestDrain_PushesAndSettlesQueue(t *testing.T) {
	fab := fabric.NewFabric(fabric.Config{ProjectRoot: t.TempDir()})
	recs := seedFabric(t, fab, 3)

	cloud := &fakeCloud{configured: true}
	d := NewDrainer(Config{Fabric: fab, Cloud: cloud})

	rep, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if rep.Provider != "fake" || rep.Attempted != 3 || rep.Synced != 3 || rep.Failed != 0 {
		t.Errorf("report = %+v", rep)
	}
	if depth := fab.QueueDepth(); depth != 0 {
		t.Errorf("queue depth after drain = %d, want 0", depth)
	}

	pushed, _ := cloud.snapshot()
	if len(pushed) != 3 {
		t.Fatalf("pushed %d records, want 3", len(pushed))
	}
	seeded := make(map[string]bool, len(recs))
	for _, rec := range recs {
		seeded[rec.ID] = true
	}
	// Pushes carry the full graph record, not the thinner queue copy.
	for _, rec := range pushed {
		if !seeded[rec.ID] {
			t.Errorf("pushed unknown record %s", rec.ID)
		}
		if rec.Category != "database" {
			t.Errorf("pushed record %s lost its category: %+v", rec.ID, rec)
		}
	}
}

func TestDrain_PartialFailureKeepsEntriesQueued(t *testing.T) {
	fab := fabric.NewFabric(fabric.Config{ProjectRoot: t.TempDir()})
	recs := seedFabric(t, fab, 3)

	cloud := &fakeCloud{configured: true, failIDs: map[string]bool{recs[1].ID: true}}
	d := NewDrainer(Config{Fabric: fab, Cloud: cloud})

	rep, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if rep.Synced != 2 || rep.Failed != 1 {
		t.Errorf("report = %+v, want 2 synced / 1 failed", rep)
	}

	pending := fab.PendingEntries(0)
	if len(pending) != 1 || pending[0].RecordID != recs[1].ID {
		t.Fatalf("pending after drain = %+v, want only %s", pending, recs[1].ID)
	}
	if pending[0].Attempts != 1 {
		t.Errorf("failed entry attempts = %d, want 1", pending[0].Attempts)
	}

	// Clearing the fault lets the next drain finish the job.
	cloud.failIDs = nil
	rep, err = d.Drain(context.Background())
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if rep.Synced != 1 || fab.QueueDepth() != 0 {
		t.Errorf("second drain report = %+v, depth = %d", rep, fab.QueueDepth())
	}
}

func TestDrain_UnconfiguredBackend(t *testing.T) {
	fab := fabric.NewFabric(fabric.Config{ProjectRoot: t.TempDir()})
	seedFabric(t, fab, 2)

	d := NewDrainer(Config{Fabric: fab})
	_, err := d.Drain(context.Background())
	if !errors.Is(err, fabric.ErrCloudUnconfigured) {
		t.Fatalf("Drain error = %v, want ErrCloudUnconfigured", err)
	}
	if depth := fab.QueueDepth(); depth != 2 {
		t.Errorf("queue touched without a backend: depth %d", depth)
	}
}

func TestDrain_EmptyQueue(t *testing.T) {
	fab := fabric.NewFabric(fabric.Config{ProjectRoot: t.TempDir()})
	cloud := &fakeCloud{configured: true}

	rep, err := NewDrainer(Config{Fabric: fab, Cloud: cloud}).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if rep.Attempted != 0 || rep.Synced != 0 {
		t.Errorf("report = %+v, want empty", rep)
	}
	if pushed, _ := cloud.snapshot(); len(pushed) != 0 {
		t.Errorf("pushed %d records from an empty queue", len(pushed))
	}
}

func TestDrain_WorkerLimit(t *testing.T) {
	fab := fabric.NewFabric(fabric.Config{ProjectRoot: t.TempDir()})
	seedFabric(t, fab, 8)

	cloud := &fakeCloud{configured: true, pushDelay: 20 * time.Millisecond}
	d := NewDrainer(Config{Fabric: fab, Cloud: cloud, Workers: 2})

	rep, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if rep.Synced != 8 {
		t.Errorf("synced = %d, want 8", rep.Synced)
	}

	_, maxInFlight := cloud.snapshot()
	if maxInFlight > 2 {
		t.Errorf("max in-flight pushes = %d, want <= 2", maxInFlight)
	}
}

func TestDrain_BatchLimit(t *testing.T) {
	fab := fabric.NewFabric(fabric.Config{ProjectRoot: t.TempDir()})
	recs := seedFabric(t, fab, 5)

	cloud := &fakeCloud{configured: true}
	d := NewDrainer(Config{Fabric: fab, Cloud: cloud, Batch: 2})

	rep, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if rep.Attempted != 2 || rep.Synced != 2 {
		t.Errorf("report = %+v, want batch of 2", rep)
	}
	if depth := fab.QueueDepth(); depth != 3 {
		t.Errorf("queue depth = %d, want 3", depth)
	}

	// Oldest first: the survivors are the newest three.
	pending := fab.PendingEntries(0)
	if len(pending) != 3 || pending[0].RecordID != recs[2].ID {
		t.Errorf("pending = %+v, want records 2..4", pending)
	}
}

func TestDrain_QueueCopyFallbackWhenGraphGone(t *testing.T) {
	root := t.TempDir()
	fab := fabric.NewFabric(fabric.Config{ProjectRoot: root})
	recs := seedFabric(t, fab, 2)

	if err := os.Remove(filepath.Join(root, ".swarm", "memory", "graph.jsonl")); err != nil {
		t.Fatalf("remove graph: %v", err)
	}

	cloud := &fakeCloud{configured: true}
	rep, err := NewDrainer(Config{Fabric: fab, Cloud: cloud}).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if rep.Synced != 2 {
		t.Errorf("synced = %d, want 2", rep.Synced)
	}

	pushed, _ := cloud.snapshot()
	if len(pushed) != 2 {
		t.Fatalf("pushed %d, want 2", len(pushed))
	}
	// The queue copy has no category but keeps id, kind, and content.
	for i, rec := range pushed {
		if rec.Category != "" {
			t.Errorf("push %d invented a category: %+v", i, rec)
		}
		if rec.ID != recs[0].ID && rec.ID != recs[1].ID {
			t.Errorf("push %d has unknown id %s", i, rec.ID)
		}
		if rec.Content == "" || rec.Kind != fabric.KindDecision {
			t.Errorf("queue copy incomplete: %+v", rec)
		}
	}
}

func TestNewDrainer_UsesFabricBackend(t *testing.T) {
	cloud := &fakeCloud{configured: true}
	fab := fabric.NewFabric(fabric.Config{ProjectRoot: t.TempDir(), Cloud: cloud})
	seedFabric(t, fab, 1)

	rep, err := NewDrainer(Config{Fabric: fab}).Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if rep.Provider != "fake" || rep.Synced != 1 {
		t.Errorf("report = %+v, want fabric's own backend used", rep)
	}
}
