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
Package watch surfaces live changes to a project's coordination files.

A Watcher follows .swarm/ and .swarm/memory/ with fsnotify and turns
raw filesystem noise into batches of typed events: the lock table
changed, a heartbeat landed, the graph grew. Batches are debounced so
an atomic rewrite (temp file, rename, chmod) arrives as one event, not
three, and deduplicated per kind within a batch.

Only the known coordination files are reported. Temp files, the lock
guard, and the Badger index churn are filtered out, which is what makes
"swarm locks --watch" quiet enough to leave open in a terminal.
*/
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
)

// Kind names which coordination surface changed.
type Kind string

const (
	KindLocks      Kind = "locks"
	KindHeartbeats Kind = "heartbeats"
	KindSettings   Kind = "settings"
	KindGraph      Kind = "graph"
	KindQueue      Kind = "queue"
)

// Event is one observed coordination change.
type Event struct {
	// Kind is the coordination surface that changed.
	Kind Kind `json:"kind"`

	// Path is the file that changed.
	Path string `json:"path"`

	// Op is the filesystem operation ("create", "write", ...). Atomic
	// rewrites usually surface as "create" because of the rename.
	Op string `json:"op"`

	// Time is when the change was observed.
	Time time.Time `json:"time"`
}

// Config configures a Watcher.
type Config struct {
	// ProjectRoot locates .swarm/. Required.
	ProjectRoot string

	// Debounce is how long to wait for more changes before emitting a
	// batch. Default 150ms.
	Debounce time.Duration

	// Buffer is the raw change buffer size. Default 64.
	Buffer int
}

// Watcher follows coordination files and emits debounced event batches.
//
// # Thread Safety
//
// Safe for concurrent use. Batches are emitted from a single goroutine.
type Watcher struct {
	paths    config.Paths
	fsw      *fsnotify.Watcher
	debounce time.Duration

	raw    chan Event
	events chan []Event

	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// NewWatcher builds a Watcher. Call Start to begin following changes.
func NewWatcher(cfg Config) (*Watcher, error) {
	if cfg.ProjectRoot == "" {
		return nil, fmt.Errorf("watch: project root is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 150 * time.Millisecond
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}

	return &Watcher{
		paths:    config.NewPaths(cfg.ProjectRoot),
		fsw:      fsw,
		debounce: cfg.Debounce,
		raw:      make(chan Event, cfg.Buffer),
		events:   make(chan []Event),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching.
//
// # Description
//
// Ensures .swarm/ and .swarm/memory/ exist, registers both with
// fsnotify, and spawns the event and debounce goroutines. Watching
// stops when ctx is canceled or Stop is called; the Events channel is
// closed on the way out.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.paths.MemoryDir(), 0750); err != nil {
		return fmt.Errorf("watch: create memory dir: %w", err)
	}
	if err := w.fsw.Add(w.paths.SwarmDir()); err != nil {
		return fmt.Errorf("watch: add swarm dir: %w", err)
	}
	if err := w.fsw.Add(w.paths.MemoryDir()); err != nil {
		return fmt.Errorf("watch: add memory dir: %w", err)
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// Events returns the batch channel. It is closed after Stop or context
// cancellation, so callers can range over it.
func (w *Watcher) Events() <-chan []Event {
	return w.events
}

// classify maps a changed path to its coordination surface. Exact
// names only, so temp files and the lock guard fall through.
func (w *Watcher) classify(path string) (Kind, bool) {
	switch path {
	case w.paths.LocksFile():
		return KindLocks, true
	case w.paths.HeartbeatsFile():
		return KindHeartbeats, true
	case w.paths.SettingsFile():
		return KindSettings, true
	case w.paths.GraphFile():
		return KindGraph, true
	case w.paths.QueueFile():
		return KindQueue, true
	}
	return "", false
}

// processEvents converts fsnotify events into typed changes.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			// The memory dir can be recreated out from under us
			// (swarm init after a manual rm). Re-follow it.
			if event.Has(fsnotify.Create) && event.Name == w.paths.MemoryDir() {
				if err := w.fsw.Add(event.Name); err != nil {
					slog.Debug("watch: re-add memory dir", "error", err)
				}
				continue
			}

			kind, ok := w.classify(filepath.Clean(event.Name))
			if !ok {
				continue
			}
			change := Event{
				Kind: kind,
				Path: event.Name,
				Op:   opString(event.Op),
				Time: time.Now(),
			}
			select {
			case w.raw <- change:
			default:
				// Buffer full; the debouncer will catch the next one.
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Debug("watch: fsnotify error", "error", err)
		}
	}
}

// debounceLoop batches raw changes and emits them after a quiet window.
func (w *Watcher) debounceLoop(ctx context.Context) {
	defer close(w.events)

	var batch []Event
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupe(batch)
			select {
			case w.events <- deduped:
			case <-w.done:
			case <-ctx.Done():
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.raw:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps the newest change per kind, preserving first-seen order.
func dedupe(changes []Event) []Event {
	seen := make(map[Kind]int, len(changes))
	out := make([]Event, 0, len(changes))
	for _, change := range changes {
		if idx, ok := seen[change.Kind]; ok {
			out[idx] = change
			continue
		}
		seen[change.Kind] = len(out)
		out = append(out, change)
	}
	return out
}

func opString(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}
