// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Integration tests for the coordination layer as a whole: several
// service instances sharing one .swarm/ directory, the way separate
// assistant processes would. Everything here is hermetic (temp dirs,
// no network), so the tests run without any external stack.

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/export"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/hook"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/watch"
)

// newInstance builds one coordination service on root, as one assistant
// process would. Each instance gets its own resolver so explicit hints
// stay per-instance.
func newInstance(root string) *coordinator.Service {
	return coordinator.NewService(coordinator.Config{
		ProjectRoot: root,
		Cloud:       fabric.NoCloud{},
	})
}

func TestTwoInstancesContendForOneFile(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	_, err := config.WriteDefaultSettings(root)
	require.NoError(t, err)

	alice := newInstance(root)
	bob := newInstance(root)

	// Alice claims the file through her pre-tool hook.
	dec := alice.Runner().PreTool(ctx, hook.Event{
		ToolName:     "Edit",
		FilePath:     "services/api/handler.go",
		InstanceHint: "alice",
	})
	require.True(t, dec.Allowed(), "first claim should be granted: %+v", dec)

	// Bob hits the live lock on the same file.
	dec = bob.Runner().PreTool(ctx, hook.Event{
		ToolName:     "Edit",
		FilePath:     "services/api/handler.go",
		InstanceHint: "bob",
	})
	require.False(t, dec.Allowed(), "second instance should be denied")
	require.NotNil(t, dec.Conflict)
	assert.Equal(t, "alice", dec.Conflict.InstanceID)

	// A different file is free.
	dec = bob.Runner().PreTool(ctx, hook.Event{
		ToolName:     "Edit",
		FilePath:     "services/api/routes.go",
		InstanceHint: "bob",
	})
	assert.True(t, dec.Allowed(), "unrelated file should be free: %+v", dec)

	// Both instances heartbeated on the way through.
	statuses := alice.Beats().Snapshot()
	assert.Len(t, statuses, 2)

	// Alice walks away; her lock goes with her.
	aliceID := alice.Resolver().Resolve(ctx, "alice")
	released := alice.Locks().ReleaseAll(ctx, aliceID)
	assert.Equal(t, 1, released)

	dec = bob.Runner().PreTool(ctx, hook.Event{
		ToolName:     "Edit",
		FilePath:     "services/api/handler.go",
		InstanceHint: "bob",
	})
	assert.True(t, dec.Allowed(), "released file should be claimable: %+v", dec)
}

func TestMemoryPipelineEndToEnd(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	svc := newInstance(root)

	// A successful tool run whose output contains a decision.
	ok := true
	sum := svc.Runner().PostTool(ctx, hook.Event{
		ToolName:    "Bash",
		AgentOutput: "Decided to use Badger for the recall index because it embeds cleanly",
		Success:     &ok,
	})
	assert.True(t, sum.HeartbeatRecorded)
	require.Equal(t, 1, sum.RecordsAppended)

	// An explicit remember lands next to the mined record.
	resp, err := svc.Remember(ctx, coordinator.CreateRecordRequest{
		Content: "Chose gRPC for the export transport instead of using REST polling",
	})
	require.NoError(t, err)
	assert.Equal(t, fabric.KindObservation, resp.Record.Kind)
	assert.Equal(t, 2, resp.QueueDepth)

	// Recall finds the mined decision.
	recall := svc.Recall(ctx, "badger index", 10)
	require.Equal(t, 1, recall.Count)
	assert.Contains(t, recall.Records[0].Content, "Badger")

	// The graph tier is healthy; no cloud is configured, which must not
	// fail the composite.
	snap := svc.Fabric().CheckHealth()
	assert.Equal(t, fabric.StatusHealthy, snap.Tiers.Graph.Status)
	assert.NotEqual(t, fabric.StatusUnavailable, snap.Overall)

	// Sync without a cloud tier reports exactly that and keeps the queue.
	_, err = svc.Sync(ctx)
	require.ErrorIs(t, err, fabric.ErrCloudUnconfigured)
	assert.Equal(t, 2, svc.Fabric().QueueDepth())

	// Export stages a local snapshot of everything remembered so far.
	exporter, err := export.NewExporter(export.Config{
		ProjectRoot: root,
		Fabric:      svc.Fabric(),
		Project:     "integration",
	})
	require.NoError(t, err)

	res, err := exporter.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordCount)
	assert.False(t, res.Uploaded)

	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestWatcherSeesLockTableChanges(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := newInstance(root)

	watcher, err := watch.NewWatcher(watch.Config{ProjectRoot: root})
	require.NoError(t, err)
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	// Give fsnotify a beat to register before mutating the table.
	time.Sleep(100 * time.Millisecond)

	id := svc.Resolver().Resolve(ctx, "watcher-test")
	dec := svc.Locks().Acquire(ctx, "docs/readme.md", id, "editing docs")
	require.True(t, dec.Granted)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("no lock-table event observed within 5s")
		case batch, ok := <-watcher.Events():
			require.True(t, ok, "event channel closed early")
			for _, ev := range batch {
				if ev.Kind == watch.KindLocks {
					return
				}
			}
		}
	}
}
