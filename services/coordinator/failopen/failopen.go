// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package failopen provides error-suppression helpers for coordination
// paths that must never block the caller's work.
//
// Coordination is advisory. A corrupt lock table, a missing metadata
// directory, or a permission error on shared state must degrade to
// the permissive default instead of surfacing as a hard failure in
// the assistant's tool pipeline. Centralizing the pattern keeps the
// degradation uniform and guarantees every suppressed error is logged.
package failopen

import (
	"log/slog"
)

// Value runs fn and returns its result, degrading to fallback on error.
//
// # Description
//
// The workhorse guard for read paths: loading a lock table, resolving
// an identity, scanning a journal. The returned fallback must be the
// permissive interpretation of the operation (empty table, allow, zero
// stats), so a failing read can only ever widen what callers may do.
//
// # Inputs
//
//   - op: Namespaced operation label for the warning log, e.g. "lock.load_table".
//   - fallback: Value returned when fn errors.
//   - fn: The guarded operation.
//
// # Outputs
//
//   - T: fn's result, or fallback if fn returned an error.
//
// Type parameters:
//   - T: Result type of the guarded operation.
func Value[T any](op string, fallback T, fn func() (T, error)) T {
	v, err := fn()
	if err != nil {
		slog.Warn(op+": degrading to fail-open fallback", "error", err)
		return fallback
	}
	return v
}

// Do runs fn and suppresses its error, reporting success.
//
// # Description
//
// The guard for best-effort write paths: heartbeat appends, lock-table
// persistence, queue maintenance. The error is logged and swallowed;
// callers that care whether the write landed check the bool, callers
// that do not simply ignore it.
//
// # Inputs
//
//   - op: Namespaced operation label for the warning log, e.g. "heartbeat.emit".
//   - fn: The guarded operation.
//
// # Outputs
//
//   - bool: true if fn succeeded, false if its error was suppressed.
func Do(op string, fn func() error) bool {
	if err := fn(); err != nil {
		slog.Warn(op+": suppressing error (fail-open)", "error", err)
		return false
	}
	return true
}
