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
	"testing"
)

func TestPaths_AllUnderSwarmDir(t *testing.T) {
	p := NewPaths("/work/project")

	files := map[string]string{
		"SwarmDir":       p.SwarmDir(),
		"SettingsFile":   p.SettingsFile(),
		"InstanceFile":   p.InstanceFile(),
		"LocksFile":      p.LocksFile(),
		"GuardFile":      p.GuardFile(),
		"HeartbeatsFile": p.HeartbeatsFile(),
		"MemoryDir":      p.MemoryDir(),
		"GraphFile":      p.GraphFile(),
		"QueueFile":      p.QueueFile(),
		"IndexDir":       p.IndexDir(),
		"ExportsDir":     p.ExportsDir(),
		"LogsDir":        p.LogsDir(),
	}

	prefix := filepath.Join("/work/project", SwarmDirName)
	for name, path := range files {
		if !strings.HasPrefix(path, prefix) {
			t.Errorf("%s = %q, want prefix %q", name, path, prefix)
		}
	}
}

func TestPaths_KnownLocations(t *testing.T) {
	p := NewPaths("/work/project")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"locks", p.LocksFile(), "/work/project/.swarm/locks.json"},
		{"guard", p.GuardFile(), "/work/project/.swarm/locks.json.guard"},
		{"heartbeats", p.HeartbeatsFile(), "/work/project/.swarm/heartbeats.jsonl"},
		{"graph", p.GraphFile(), "/work/project/.swarm/memory/graph.jsonl"},
		{"queue", p.QueueFile(), "/work/project/.swarm/memory/sync-queue.jsonl"},
		{"instance", p.InstanceFile(), "/work/project/.swarm/instance.json"},
		{"settings", p.SettingsFile(), "/work/project/.swarm/settings.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != filepath.FromSlash(tt.want) {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPaths_Rel(t *testing.T) {
	p := NewPaths("/work/project")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already relative", "src/app.go", "src/app.go"},
		{"dot slash", "./src/app.go", "src/app.go"},
		{"absolute inside root", "/work/project/src/app.go", "src/app.go"},
		{"redundant segments", "src/../src/app.go", "src/app.go"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"project root itself", "/work/project", ""},
		{"outside root", "/other/place/file.go", ""},
		{"escapes root", "../sibling/file.go", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Rel(tt.in); got != tt.want {
				t.Errorf("Rel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPaths_Inside(t *testing.T) {
	p := NewPaths("/work/project")

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"locks file", "/work/project/.swarm/locks.json", true},
		{"relative swarm path", ".swarm/memory/graph.jsonl", true},
		{"swarm dir itself", ".swarm", true},
		{"ordinary source file", "src/app.go", false},
		{"lookalike prefix", ".swarm-backup/file", false},
		{"outside project", "/elsewhere/.swarm/locks.json", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Inside(tt.in); got != tt.want {
				t.Errorf("Inside(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
