// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package lock

import (
	"os"
)

// flockTry is a no-op on Windows.
//
// # Description
//
// TODO: Implement using golang.org/x/sys/windows.LockFileEx with
// LOCKFILE_EXCLUSIVE_LOCK|LOCKFILE_FAIL_IMMEDIATELY. Until then the
// guard does not serialize writers here and the lock table's documented
// last-writer-wins race applies on every write.
//
// # Inputs
//
//   - f: Open guard file handle.
//
// # Outputs
//
//   - error: Always nil in the stub implementation.
func flockTry(f *os.File) error {
	return nil
}

// flockRelease is a no-op on Windows.
func flockRelease(f *os.File) {
}
