// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"path/filepath"
	"strings"
)

// SwarmDirName is the coordination metadata directory at the project root.
const SwarmDirName = ".swarm"

// Paths resolves every coordination file under a project's metadata
// directory. All state lives beneath {ProjectRoot}/.swarm so that a
// single directory can be inspected, backed up, or deleted to reset
// coordination for a project.
type Paths struct {
	ProjectRoot string
}

// NewPaths returns path helpers rooted at projectRoot.
func NewPaths(projectRoot string) Paths {
	return Paths{ProjectRoot: filepath.Clean(projectRoot)}
}

// SwarmDir is the metadata directory itself.
func (p Paths) SwarmDir() string {
	return filepath.Join(p.ProjectRoot, SwarmDirName)
}

// SettingsFile is the optional user-authored settings document.
func (p Paths) SettingsFile() string {
	return filepath.Join(p.SwarmDir(), "settings.yaml")
}

// InstanceFile caches the resolved instance identity.
func (p Paths) InstanceFile() string {
	return filepath.Join(p.SwarmDir(), "instance.json")
}

// LocksFile is the shared lock table document.
func (p Paths) LocksFile() string {
	return filepath.Join(p.SwarmDir(), "locks.json")
}

// GuardFile is the advisory flock target protecting lock-table rewrites.
func (p Paths) GuardFile() string {
	return filepath.Join(p.SwarmDir(), "locks.json.guard")
}

// HeartbeatsFile is the append-only liveness log.
func (p Paths) HeartbeatsFile() string {
	return filepath.Join(p.SwarmDir(), "heartbeats.jsonl")
}

// MemoryDir holds the tier-1 memory fabric.
func (p Paths) MemoryDir() string {
	return filepath.Join(p.SwarmDir(), "memory")
}

// GraphFile is the append-only tier-1 memory log.
func (p Paths) GraphFile() string {
	return filepath.Join(p.MemoryDir(), "graph.jsonl")
}

// QueueFile is the tier-2 sync backlog.
func (p Paths) QueueFile() string {
	return filepath.Join(p.MemoryDir(), "sync-queue.jsonl")
}

// IndexDir holds the derived recall index.
func (p Paths) IndexDir() string {
	return filepath.Join(p.SwarmDir(), "index")
}

// ExportsDir holds memory snapshot bundles.
func (p Paths) ExportsDir() string {
	return filepath.Join(p.SwarmDir(), "exports")
}

// LogsDir holds per-service log files.
func (p Paths) LogsDir() string {
	return filepath.Join(p.SwarmDir(), "logs")
}

// Rel converts a path to the canonical repo-relative slash form stored
// in coordination state.
//
// # Description
//
// Lock entries key on this form so that the same file referenced as
// "src/app.go", "./src/app.go", or an absolute path all collide. Paths
// that cannot be made repo-relative (outside the project, or empty
// after cleaning) return "", which callers treat as "not coordinated".
func (p Paths) Rel(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(p.ProjectRoot, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(p.ProjectRoot, path)
	if err != nil {
		return ""
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" || rel == ".." || strings.HasPrefix(rel, "../") {
		return ""
	}
	return rel
}

// Inside reports whether path resolves into the metadata directory.
// Coordination never locks its own state files; doing so would deadlock
// the lock table against itself.
func (p Paths) Inside(path string) bool {
	rel := p.Rel(path)
	return rel == SwarmDirName || strings.HasPrefix(rel, SwarmDirName+"/")
}
