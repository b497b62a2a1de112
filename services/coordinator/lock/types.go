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
	"time"
)

// LockType identifies the kind of claim an instance holds on a file.
type LockType string

// LockTypeExclusiveWrite is the only claim currently supported: one
// instance edits, everyone else keeps their hands off.
const LockTypeExclusiveWrite LockType = "exclusive_write"

// ValidLockTypes enumerates the recognized lock types.
var ValidLockTypes = map[LockType]bool{
	LockTypeExclusiveWrite: true,
}

// FileLock is one entry in the shared lock table.
//
// FilePath is always the canonical repo-relative slash form, so two
// instances referring to the same file through different spellings
// collide on the same entry.
type FileLock struct {
	// LockID uniquely identifies this grant.
	LockID string `json:"lock_id"`

	// FilePath is the repo-relative path being claimed.
	FilePath string `json:"file_path"`

	// LockType is the kind of claim.
	LockType LockType `json:"lock_type"`

	// InstanceID is the holder.
	InstanceID string `json:"instance_id"`

	// AcquiredAt is when the claim was granted.
	AcquiredAt time.Time `json:"acquired_at"`

	// ExpiresAt bounds the claim; a crashed holder blocks nobody for
	// longer than the configured TTL.
	ExpiresAt time.Time `json:"expires_at"`

	// Reason is the holder's free-text explanation, shown on conflicts.
	Reason string `json:"reason,omitempty"`
}

// Live reports whether the lock is still in force at now.
func (l FileLock) Live(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}

// Table is the on-disk lock document at .swarm/locks.json.
//
// The whole document is rewritten on every mutation; writers that do
// not honor the sidecar guard can still interleave, and the last write
// wins. That is an accepted cost of keeping the table a plain JSON
// file other tooling can read.
type Table struct {
	Locks []FileLock `json:"locks"`
}

// Prune drops expired locks in place and returns how many were removed.
func (t *Table) Prune(now time.Time) int {
	kept := t.Locks[:0]
	removed := 0
	for _, lk := range t.Locks {
		if lk.Live(now) {
			kept = append(kept, lk)
		} else {
			removed++
		}
	}
	t.Locks = kept
	return removed
}

// Decision is the outcome of an acquire attempt.
//
// Granted with a populated Conflict never happens; a denial always
// carries the conflicting lock so the caller can tell the user who
// holds the file and until when.
type Decision struct {
	Granted  bool      `json:"granted"`
	Conflict *FileLock `json:"conflict,omitempty"`
	Reason   string    `json:"reason"`
}

// Decision reasons for the non-conflict outcomes. Denials carry a
// generated "held by <instance>" reason instead.
const (
	ReasonDisabled   = "coordination disabled"
	ReasonMetadata   = "coordination metadata path"
	ReasonOutside    = "path outside project"
	ReasonGranted    = "lock acquired"
	ReasonReacquired = "lock already held by requester"
	ReasonFailOpen   = "lock table unavailable, failing open"
)
