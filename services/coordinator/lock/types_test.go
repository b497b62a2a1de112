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
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFileLock_Live(t *testing.T) {
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future expiry is live", now.Add(time.Minute), true},
		{"past expiry is dead", now.Add(-time.Minute), false},
		{"exact expiry is dead", now, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lk := FileLock{ExpiresAt: tt.expiresAt}
			if got := lk.Live(now); got != tt.want {
				t.Errorf("Live() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTable_Prune(t *testing.T) {
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	live := FileLock{FilePath: "a.go", ExpiresAt: now.Add(time.Minute)}
	dead := FileLock{FilePath: "b.go", ExpiresAt: now.Add(-time.Minute)}

	t.Run("removes only expired entries", func(t *testing.T) {
		table := Table{Locks: []FileLock{live, dead, live}}

		removed := table.Prune(now)

		if removed != 1 {
			t.Errorf("expected 1 removed, got %d", removed)
		}
		if len(table.Locks) != 2 {
			t.Fatalf("expected 2 kept, got %d", len(table.Locks))
		}
		for _, lk := range table.Locks {
			if lk.FilePath != "a.go" {
				t.Errorf("expected only live entries kept, found %q", lk.FilePath)
			}
		}
	})

	t.Run("empty table", func(t *testing.T) {
		table := Table{}
		if removed := table.Prune(now); removed != 0 {
			t.Errorf("expected 0 removed, got %d", removed)
		}
	})

	t.Run("all expired", func(t *testing.T) {
		table := Table{Locks: []FileLock{dead, dead}}
		if removed := table.Prune(now); removed != 2 {
			t.Errorf("expected 2 removed, got %d", removed)
		}
		if len(table.Locks) != 0 {
			t.Errorf("expected empty table, got %d entries", len(table.Locks))
		}
	})
}

func TestValidLockTypes(t *testing.T) {
	if !ValidLockTypes[LockTypeExclusiveWrite] {
		t.Error("expected exclusive_write to be valid")
	}
	if ValidLockTypes[LockType("shared_read")] {
		t.Error("expected unknown lock type to be invalid")
	}
}

func TestFileLock_JSONShape(t *testing.T) {
	lk := FileLock{
		LockID:     "lk-1",
		FilePath:   "src/app.go",
		LockType:   LockTypeExclusiveWrite,
		InstanceID: "swarm-main-09-abcd",
		AcquiredAt: time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC),
		ExpiresAt:  time.Date(2025, 11, 3, 12, 5, 0, 0, time.UTC),
		Reason:     "editing handler",
	}

	data, err := json.Marshal(lk)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Snake_case keys are a contract with external table readers.
	for _, key := range []string{
		`"lock_id"`, `"file_path"`, `"lock_type"`, `"instance_id"`,
		`"acquired_at"`, `"expires_at"`, `"reason"`,
	} {
		if !strings.Contains(string(data), key) {
			t.Errorf("expected key %s in %s", key, data)
		}
	}
}

func TestDecision_ConflictOmittedWhenGranted(t *testing.T) {
	data, err := json.Marshal(Decision{Granted: true, Reason: ReasonGranted})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "conflict") {
		t.Errorf("expected conflict omitted from grant, got %s", data)
	}
}
