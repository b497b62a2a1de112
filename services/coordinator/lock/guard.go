// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrGuardTimeout is returned when the table guard could not be
// acquired before the context expired.
var ErrGuardTimeout = errors.New("lock: table guard acquisition timed out")

// errWouldBlock is the platform-neutral "someone else holds it" signal
// from the flock primitives.
var errWouldBlock = errors.New("lock: guard held elsewhere")

// TableGuard serializes read-modify-write cycles on the lock table
// across processes on the same machine.
//
// # Description
//
// The lock table is a single JSON document; without a guard, two
// processes can read the same snapshot, each append a lock, and one
// append silently vanishes. The guard closes that window for guard-aware
// writers. Writers that ignore the guard file still race, which the
// table documents as last-writer-wins.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type TableGuard interface {
	// Acquire blocks until the guard is held or ctx expires. The
	// returned release function must be called exactly once.
	Acquire(ctx context.Context) (release func(), err error)
}

// FlockGuard implements TableGuard with an advisory flock(2) on a
// sidecar file next to the lock table. On platforms without flock the
// guard degrades to a no-op and the documented race window returns.
type FlockGuard struct {
	path string
}

// NewFlockGuard creates a guard over the given sidecar file, typically
// .swarm/locks.json.guard.
func NewFlockGuard(path string) *FlockGuard {
	return &FlockGuard{path: path}
}

// Acquire takes the guard, polling with exponential backoff while
// another process holds it.
//
// # Inputs
//
//   - ctx: Bounds the wait; callers should pass a short deadline.
//
// # Outputs
//
//   - release: Drops the flock and closes the sidecar file.
//   - error: ErrGuardTimeout when ctx expires first; other errors on
//     filesystem failure.
func (g *FlockGuard) Acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(g.path), 0o750); err != nil {
		return nil, fmt.Errorf("create guard dir: %w", err)
	}

	f, err := os.OpenFile(g.path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open guard file: %w", err)
	}

	release := func() {
		flockRelease(f)
		f.Close()
	}

	// Try non-blocking first.
	err = flockTry(f)
	if err == nil {
		return release, nil
	}
	if !errors.Is(err, errWouldBlock) {
		f.Close()
		return nil, fmt.Errorf("flock guard: %w", err)
	}

	// Poll with exponential backoff: start at 5ms, double, cap at 100ms.
	// Guard holders only do one small read-modify-write, so waits are short.
	const (
		minBackoff = 5 * time.Millisecond
		maxBackoff = 100 * time.Millisecond
	)
	backoff := minBackoff

	for {
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("%w: %w", ErrGuardTimeout, ctx.Err())
		case <-time.After(backoff):
			err = flockTry(f)
			if err == nil {
				return release, nil
			}
			if !errors.Is(err, errWouldBlock) {
				f.Close()
				return nil, fmt.Errorf("flock guard: %w", err)
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// NoopGuard satisfies TableGuard without serializing anything. Used
// when coordination is disabled and in tests that exercise the race
// behavior deliberately.
type NoopGuard struct{}

// Acquire returns immediately with a release that does nothing.
func (NoopGuard) Acquire(ctx context.Context) (func(), error) {
	return func() {}, nil
}
