// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
)

// ===== HELPERS =====

func startWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	root := t.TempDir()
	w, err := NewWatcher(Config{ProjectRoot: root, Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, root
}

// awaitKinds reads batches until every wanted kind has been seen.
func awaitKinds(t *testing.T, w *Watcher, want ...Kind) map[Kind]int {
	t.Helper()
	got := make(map[Kind]int)
	deadline := time.After(3 * time.Second)
	for {
		missing := false
		for _, k := range want {
			if got[k] == 0 {
				missing = true
			}
		}
		if !missing {
			return got
		}
		select {
		case batch, ok := <-w.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting, saw %v", got)
			}
			for _, ev := range batch {
				got[ev.Kind]++
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v, saw %v", want, got)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ===== CONSTRUCTION =====

func TestNewWatcher_RequiresRoot(t *testing.T) {
	if _, err := NewWatcher(Config{}); err == nil {
		t.Fatal("expected error without project root")
	}
}

func TestNewWatcher_Defaults(t *testing.T) {
	w, err := NewWatcher(Config{ProjectRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.debounce != 150*time.Millisecond {
		t.Errorf("debounce = %v, want 150ms", w.debounce)
	}
	if cap(w.raw) != 64 {
		t.Errorf("raw buffer = %d, want 64", cap(w.raw))
	}
}

// ===== CLASSIFICATION =====

func TestClassify(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(Config{ProjectRoot: root})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()
	p := config.NewPaths(root)

	tests := []struct {
		path string
		kind Kind
		ok   bool
	}{
		{p.LocksFile(), KindLocks, true},
		{p.HeartbeatsFile(), KindHeartbeats, true},
		{p.SettingsFile(), KindSettings, true},
		{p.GraphFile(), KindGraph, true},
		{p.QueueFile(), KindQueue, true},
		{p.GuardFile(), "", false},
		{filepath.Join(p.SwarmDir(), "locks.json.tmp42"), "", false},
		{filepath.Join(p.MemoryDir(), "graph.jsonl.tmp1"), "", false},
		{filepath.Join(p.SwarmDir(), "notes.txt"), "", false},
	}
	for _, tt := range tests {
		kind, ok := w.classify(tt.path)
		if ok != tt.ok || kind != tt.kind {
			t.Errorf("classify(%q) = (%q, %v), want (%q, %v)",
				tt.path, kind, ok, tt.kind, tt.ok)
		}
	}
}

func TestOpString(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want string
	}{
		{fsnotify.Create, "create"},
		{fsnotify.Write, "write"},
		{fsnotify.Remove, "remove"},
		{fsnotify.Rename, "rename"},
		{fsnotify.Chmod, "chmod"},
		{fsnotify.Create | fsnotify.Write, "create"},
		{fsnotify.Op(0), "unknown"},
	}
	for _, tt := range tests {
		if got := opString(tt.op); got != tt.want {
			t.Errorf("opString(%v) = %q, want %q", tt.op, got, tt.want)
		}
	}
}

// ===== WATCHING =====

func TestWatcher_SurfacesLockTableWrites(t *testing.T) {
	w, root := startWatcher(t)
	writeFile(t, config.NewPaths(root).LocksFile(), `{"locks":[]}`)

	got := awaitKinds(t, w, KindLocks)
	if got[KindLocks] == 0 {
		t.Fatalf("no lock events, saw %v", got)
	}
}

func TestWatcher_GraphAndQueueChanges(t *testing.T) {
	w, root := startWatcher(t)
	p := config.NewPaths(root)
	writeFile(t, p.GraphFile(), `{"id":"r1"}`+"\n")
	writeFile(t, p.QueueFile(), `{"record_id":"r1"}`+"\n")

	awaitKinds(t, w, KindGraph, KindQueue)
}

func TestWatcher_BatchesNeverRepeatAKind(t *testing.T) {
	w, root := startWatcher(t)
	p := config.NewPaths(root)
	for i := 0; i < 3; i++ {
		writeFile(t, p.LocksFile(), `{"locks":[]}`)
		time.Sleep(5 * time.Millisecond)
	}
	writeFile(t, p.HeartbeatsFile(), `{"instance_id":"a"}`+"\n")

	sawLocks := false
	deadline := time.After(2 * time.Second)
	for !sawLocks {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				t.Fatal("events channel closed early")
			}
			perKind := make(map[Kind]int)
			for _, ev := range batch {
				perKind[ev.Kind]++
				if perKind[ev.Kind] > 1 {
					t.Fatalf("batch repeats kind %q: %v", ev.Kind, batch)
				}
			}
			if perKind[KindLocks] > 0 {
				sawLocks = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for a lock batch")
		}
	}
}

func TestWatcher_IgnoresGuardAndTempFiles(t *testing.T) {
	w, root := startWatcher(t)
	p := config.NewPaths(root)
	writeFile(t, p.GuardFile(), "")
	writeFile(t, filepath.Join(p.SwarmDir(), "locks.json.tmp99"), "{}")

	select {
	case batch := <-w.Events():
		t.Fatalf("unexpected batch for ignored files: %v", batch)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_StopClosesEvents(t *testing.T) {
	w, _ := startWatcher(t)
	w.Stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-w.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed after Stop")
		}
	}
}

func TestWatcher_StartIsIdempotent(t *testing.T) {
	w, root := startWatcher(t)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	writeFile(t, config.NewPaths(root).LocksFile(), `{"locks":[]}`)
	awaitKinds(t, w, KindLocks)
}
