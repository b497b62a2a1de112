// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// flock treats separate descriptors on the same file as independent
// holders even within one process, so two FlockGuard values on the same
// path genuinely contend in these tests.

func TestFlockGuard_AcquireRelease(t *testing.T) {
	guardPath := filepath.Join(t.TempDir(), "locks.json.guard")
	g := NewFlockGuard(guardPath)

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	release()

	// Reacquire after release must succeed immediately.
	release, err = g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	release()
}

func TestFlockGuard_CreatesParentDir(t *testing.T) {
	guardPath := filepath.Join(t.TempDir(), ".swarm", "locks.json.guard")

	release, err := NewFlockGuard(guardPath).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	if _, err := os.Stat(guardPath); err != nil {
		t.Errorf("expected guard file created: %v", err)
	}
}

func TestFlockGuard_ContentionTimesOut(t *testing.T) {
	guardPath := filepath.Join(t.TempDir(), "locks.json.guard")

	holder, err := NewFlockGuard(guardPath).Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer holder()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = NewFlockGuard(guardPath).Acquire(ctx)
	if !errors.Is(err, ErrGuardTimeout) {
		t.Errorf("expected ErrGuardTimeout, got %v", err)
	}
}

func TestFlockGuard_HandoffAfterRelease(t *testing.T) {
	guardPath := filepath.Join(t.TempDir(), "locks.json.guard")

	holder, err := NewFlockGuard(guardPath).Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		release, err := NewFlockGuard(guardPath).Acquire(ctx)
		if err == nil {
			release()
		}
		acquired <- err
	}()

	// Let the waiter start polling, then hand the guard over.
	time.Sleep(50 * time.Millisecond)
	holder()

	select {
	case err := <-acquired:
		if err != nil {
			t.Errorf("expected waiter to acquire after release, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for guard handoff")
	}
}

func TestNoopGuard(t *testing.T) {
	guardPath := filepath.Join(t.TempDir(), "locks.json.guard")

	holder, err := NewFlockGuard(guardPath).Acquire(context.Background())
	if err != nil {
		t.Fatalf("flock Acquire failed: %v", err)
	}
	defer holder()

	// The noop guard ignores the held flock entirely.
	release, err := NoopGuard{}.Acquire(context.Background())
	if err != nil {
		t.Fatalf("NoopGuard.Acquire failed: %v", err)
	}
	release()
}
