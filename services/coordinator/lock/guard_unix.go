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
	"errors"
	"os"
	"syscall"
)

// flockTry attempts a non-blocking exclusive flock(2) on f.
//
// # Description
//
// Uses LOCK_EX|LOCK_NB so a held guard surfaces immediately as
// errWouldBlock instead of blocking the caller. flock locks are
// advisory and evaporate when the process exits, so a crashed guard
// holder never wedges the table.
//
// # Inputs
//
//   - f: Open guard file handle.
//
// # Outputs
//
//   - error: nil on success, errWouldBlock if held elsewhere, other
//     errors on system failure.
func flockTry(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return errWouldBlock
	}
	return err
}

// flockRelease drops the flock on f. Safe to call when not held.
func flockRelease(f *os.File) {
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
