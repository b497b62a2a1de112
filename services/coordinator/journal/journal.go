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
Package journal provides the file primitives shared by every piece of
coordination state: append-only JSONL logs and whole-document JSON files.

Coordination state is written by multiple uncoordinated processes, so the
package commits to two narrow disciplines instead of a general store:

  - JSONL logs are append-only. A single O_APPEND write per record keeps
    concurrent appends from interleaving on POSIX filesystems, and readers
    tolerate corrupt lines by counting them rather than halting.
  - Documents are replaced atomically. Writes go to a temp file in the
    same directory followed by rename, so readers never observe a
    half-written lock table or identity card.

Nothing here takes locks. Callers that need read-modify-write exclusion
(the lock table) layer an flock guard on top.
*/
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirPerm  = 0750
	filePerm = 0640

	// maxLineSize bounds a single JSONL record. Records are small (a
	// heartbeat, a memory entry), but imported agent output can be
	// pasted into record content, so leave generous headroom.
	maxLineSize = 1024 * 1024
)

// ErrNotExist is returned by ReadDocument when the document has never
// been written. Callers treat it as "empty state", not as a failure.
var ErrNotExist = errors.New("journal: document does not exist")

// ScanStats summarizes one pass over a JSONL log.
type ScanStats struct {
	// Lines is the number of non-blank lines encountered.
	Lines int `json:"lines"`

	// Corrupt is the number of non-blank lines that failed to decode.
	Corrupt int `json:"corrupt"`
}

// AppendJSONL appends a single record to a JSONL log.
//
// # Description
//
// Marshals v and writes it as one line using a single O_APPEND write.
// The parent directory is created on first use. Append is the only
// mutation ever applied to a log, so concurrent writers from separate
// processes do not need a lock.
//
// # Inputs
//
//   - path: Log file path.
//   - v: Record to marshal. Must not encode to multiple lines.
//
// # Outputs
//
//   - error: Non-nil if marshaling or the write fails.
func AppendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("journal: marshal record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("journal: create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("journal: open log: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("journal: append record: %w", err)
	}
	return nil
}

// ScanJSONL reads a JSONL log line by line, decoding each into T.
//
// # Description
//
// Valid lines are passed to fn; lines that fail to decode are counted
// in Stats.Corrupt and skipped. The scan never halts on bad data: a
// partially flushed final line or an editor-mangled record costs one
// corrupt count, nothing more. Blank lines are ignored entirely.
//
// A missing file is an empty log, not an error.
//
// # Inputs
//
//   - path: Log file path.
//   - fn: Callback for each decoded record. May be nil to only count.
//
// # Outputs
//
//   - ScanStats: Total and corrupt line counts.
//   - error: Non-nil only for I/O failures (open, read), never for
//     decode failures.
//
// Type parameters:
//   - T: Record type each line decodes into.
func ScanJSONL[T any](path string, fn func(T)) (ScanStats, error) {
	var stats ScanStats

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("journal: open log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		stats.Lines++

		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Corrupt++
			continue
		}
		if fn != nil {
			fn(record)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("journal: scan log: %w", err)
	}
	return stats, nil
}

// WriteJSONL atomically replaces a JSONL log with the given records.
//
// # Description
//
// Used for the rare compacting rewrite (dropping synced entries from
// the sync queue). Records are encoded one per line into a temp file
// which is renamed over the target, so concurrent readers see either
// the old log or the new one.
//
// # Inputs
//
//   - path: Log file path.
//   - items: Full desired content of the log.
//
// # Outputs
//
//   - error: Non-nil if encoding or any file operation fails.
//
// Type parameters:
//   - T: Record type.
func WriteJSONL[T any](path string, items []T) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("journal: create log dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("journal: create temp log: %w", err)
	}
	tmpPath := tmp.Name()

	encoder := json.NewEncoder(tmp)
	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("journal: encode record: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("journal: close temp log: %w", err)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("journal: chmod temp log: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("journal: replace log: %w", err)
	}
	return nil
}

// ReadDocument loads a whole-file JSON document.
//
// # Description
//
// Returns ErrNotExist when the document has never been written, so
// callers can distinguish "no state yet" from a real failure. A file
// that exists but does not parse is a real failure; the caller decides
// whether that fails open (lock table) or propagates (settings).
//
// # Inputs
//
//   - path: Document path.
//
// # Outputs
//
//   - T: Decoded document.
//   - error: ErrNotExist, a decode error, or an I/O error.
//
// Type parameters:
//   - T: Document type.
func ReadDocument[T any](path string) (T, error) {
	var doc T

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return doc, fmt.Errorf("journal: read document: %w", err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, fmt.Errorf("journal: parse document %s: empty file", path)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("journal: parse document %s: %w", path, err)
	}
	return doc, nil
}

// WriteDocument atomically replaces a whole-file JSON document.
//
// # Description
//
// Marshals v with indentation (the documents double as human-inspectable
// state during incident review) into a temp file in the target directory,
// then renames it into place. Rename within a directory is atomic on
// POSIX filesystems, so a reader never sees a torn document.
//
// # Inputs
//
//   - path: Document path.
//   - v: Document content.
//
// # Outputs
//
//   - error: Non-nil if marshaling or any file operation fails.
func WriteDocument(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal document: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("journal: create document dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("journal: create temp document: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("journal: write temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("journal: close temp document: %w", err)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("journal: chmod temp document: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("journal: replace document: %w", err)
	}
	return nil
}
