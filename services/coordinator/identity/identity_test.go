// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
)

// ===== TEST HELPERS =====

// writeCache drops raw content at <root>/.swarm/instance.json.
func writeCache(t *testing.T, root, content string) {
	t.Helper()
	paths := config.NewPaths(root)
	if err := os.MkdirAll(paths.SwarmDir(), 0o750); err != nil {
		t.Fatalf("mkdir swarm dir: %v", err)
	}
	if err := os.WriteFile(paths.InstanceFile(), []byte(content), 0o640); err != nil {
		t.Fatalf("write cache: %v", err)
	}
}

// readCache parses <root>/.swarm/instance.json and returns instance_id.
func readCache(t *testing.T, root string) string {
	t.Helper()
	data, err := os.ReadFile(config.NewPaths(root).InstanceFile())
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse cache: %v", err)
	}
	return doc["instance_id"]
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// ===== SOURCE TESTS =====

func TestValidSources(t *testing.T) {
	for _, src := range []Source{SourceExplicit, SourceCached, SourceGenerated, SourceFallback} {
		if !ValidSources[src] {
			t.Errorf("expected %q to be valid", src)
		}
	}
	if ValidSources[Source("guessed")] {
		t.Error("expected unknown source to be invalid")
	}
}

// ===== RESOLUTION CHAIN TESTS =====

func TestResolve_ExplicitHint(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	id := r.Resolve(context.Background(), "agent-7")

	if id.ID != "agent-7" {
		t.Errorf("expected hint used verbatim, got %q", id.ID)
	}
	if id.Source != SourceExplicit {
		t.Errorf("expected source %q, got %q", SourceExplicit, id.Source)
	}

	// A hint must never be written to the cache file.
	if _, err := os.Stat(config.NewPaths(root).InstanceFile()); !os.IsNotExist(err) {
		t.Error("expected no cache file after hint resolution")
	}
}

func TestResolve_HintWhitespaceTrimmed(t *testing.T) {
	r := NewResolver(t.TempDir())

	id := r.Resolve(context.Background(), "  agent-7\n")

	if id.ID != "agent-7" {
		t.Errorf("expected trimmed hint, got %q", id.ID)
	}
}

func TestResolve_CachedFile(t *testing.T) {
	root := t.TempDir()
	writeCache(t, root, `{"instance_id": "prior-main-09-beef"}`)
	r := NewResolver(root)

	id := r.Resolve(context.Background(), "")

	if id.ID != "prior-main-09-beef" {
		t.Errorf("expected cached id reused verbatim, got %q", id.ID)
	}
	if id.Source != SourceCached {
		t.Errorf("expected source %q, got %q", SourceCached, id.Source)
	}
}

func TestResolve_GeneratesAndPersists(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	id := r.Resolve(context.Background(), "")

	if id.Source != SourceGenerated {
		t.Fatalf("expected source %q, got %q", SourceGenerated, id.Source)
	}
	if id.ID == "" {
		t.Fatal("expected non-empty generated id")
	}
	if got := readCache(t, root); got != id.ID {
		t.Errorf("expected cache file to hold %q, got %q", id.ID, got)
	}

	// A fresh resolver in the same project reuses the persisted id.
	second := NewResolver(root).Resolve(context.Background(), "")
	if second.ID != id.ID {
		t.Errorf("expected second process to reuse %q, got %q", id.ID, second.ID)
	}
	if second.Source != SourceCached {
		t.Errorf("expected second process source %q, got %q", SourceCached, second.Source)
	}
}

func TestResolve_MemoizedFirstWins(t *testing.T) {
	r := NewResolver(t.TempDir())

	first := r.Resolve(context.Background(), "")
	second := r.Resolve(context.Background(), "late-hint")

	if second.ID != first.ID {
		t.Errorf("expected memoized id %q, got %q", first.ID, second.ID)
	}
	if second.Source != first.Source {
		t.Errorf("expected memoized source %q, got %q", first.Source, second.Source)
	}
}

func TestResolve_Concurrent(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	const workers = 50
	ids := make([]Identity, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ids[n] = r.Resolve(context.Background(), "")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ids[i].ID != ids[0].ID {
			t.Fatalf("expected all resolutions to agree, got %q and %q", ids[0].ID, ids[i].ID)
		}
	}
	if got := readCache(t, root); got != ids[0].ID {
		t.Errorf("expected cache file to hold %q, got %q", ids[0].ID, got)
	}
}

func TestCached(t *testing.T) {
	r := NewResolver(t.TempDir())

	if _, ok := r.Cached(); ok {
		t.Error("expected no memoized identity before first Resolve")
	}

	id := r.Resolve(context.Background(), "agent-7")
	got, ok := r.Cached()
	if !ok {
		t.Fatal("expected memoized identity after Resolve")
	}
	if got.ID != id.ID {
		t.Errorf("expected %q, got %q", id.ID, got.ID)
	}
}

// ===== FALLBACK TESTS =====

func TestResolve_FallbackOnCorruptCache(t *testing.T) {
	root := t.TempDir()
	writeCache(t, root, "{not json at all")
	r := NewResolver(root)

	id := r.Resolve(context.Background(), "")

	want := fmt.Sprintf("fallback-%d", os.Getpid())
	if id.ID != want {
		t.Errorf("expected %q, got %q", want, id.ID)
	}
	if id.Source != SourceFallback {
		t.Errorf("expected source %q, got %q", SourceFallback, id.Source)
	}

	// The unreadable cache must be left alone, not clobbered.
	data, err := os.ReadFile(config.NewPaths(root).InstanceFile())
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if string(data) != "{not json at all" {
		t.Errorf("expected corrupt cache untouched, got %q", data)
	}
}

func TestResolve_FallbackOnEmptyCache(t *testing.T) {
	root := t.TempDir()
	writeCache(t, root, "")
	r := NewResolver(root)

	id := r.Resolve(context.Background(), "")

	if id.Source != SourceFallback {
		t.Errorf("expected source %q, got %q", SourceFallback, id.Source)
	}
}

func TestResolve_FallbackOnUnwritableMetadataDir(t *testing.T) {
	root := t.TempDir()
	// A regular file where .swarm should be makes every mkdir fail,
	// regardless of the uid the tests run under.
	if err := os.WriteFile(filepath.Join(root, ".swarm"), []byte("in the way"), 0o640); err != nil {
		t.Fatalf("plant blocker: %v", err)
	}
	r := NewResolver(root)

	id := r.Resolve(context.Background(), "")

	if id.Source != SourceFallback {
		t.Errorf("expected source %q, got %q", SourceFallback, id.Source)
	}
	if !strings.HasPrefix(id.ID, "fallback-") {
		t.Errorf("expected fallback id, got %q", id.ID)
	}
}

// ===== GENERATION TESTS =====

func TestGenerate_UsesBranchDiscriminator(t *testing.T) {
	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	if err := os.MkdirAll(gitDir, 0o750); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/feature/locks\n"), 0o640); err != nil {
		t.Fatalf("write HEAD: %v", err)
	}
	r := NewResolver(root)

	id := r.Resolve(context.Background(), "")

	if !strings.Contains(id.ID, "-feature-locks-") {
		t.Errorf("expected branch in id, got %q", id.ID)
	}
}

func TestGenerate_DetachedHeadFallsBackToHostname(t *testing.T) {
	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	if err := os.MkdirAll(gitDir, 0o750); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("3f786850e387550fdab836ed7e6dc881de23001b\n"), 0o640); err != nil {
		t.Fatalf("write HEAD: %v", err)
	}
	r := NewResolver(root, WithHostname(func() (string, error) {
		return "buildbox.internal.example.com", nil
	}))

	id := r.Resolve(context.Background(), "")

	if !strings.Contains(id.ID, "-buildbox-") {
		t.Errorf("expected hostname fragment in id, got %q", id.ID)
	}
}

func TestGenerate_HostnameFailureUsesLocal(t *testing.T) {
	r := NewResolver(t.TempDir(), WithHostname(func() (string, error) {
		return "", fmt.Errorf("no hostname")
	}))

	id := r.Resolve(context.Background(), "")

	if !strings.Contains(id.ID, "-local-") {
		t.Errorf("expected local discriminator, got %q", id.ID)
	}
}

func TestGenerate_HourBucket(t *testing.T) {
	at := time.Date(2025, 11, 3, 9, 42, 0, 0, time.UTC)
	r := NewResolver(t.TempDir(),
		WithClock(fixedClock(at)),
		WithHostname(func() (string, error) { return "host", nil }),
	)

	id := r.Resolve(context.Background(), "")

	if !strings.Contains(id.ID, "-09-") {
		t.Errorf("expected zero-padded hour bucket in id, got %q", id.ID)
	}
	if !id.ResolvedAt.Equal(at) {
		t.Errorf("expected resolved_at %v, got %v", at, id.ResolvedAt)
	}
}

func TestGenerate_ProjectNameSanitized(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "My Project!")
	if err := os.MkdirAll(root, 0o750); err != nil {
		t.Fatalf("mkdir project: %v", err)
	}
	r := NewResolver(root)

	id := r.Resolve(context.Background(), "")

	if !strings.HasPrefix(id.ID, "my-project-") {
		t.Errorf("expected sanitized project prefix, got %q", id.ID)
	}
}

func TestGenerate_SuffixVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 8; i++ {
		id := NewResolver(t.TempDir()).Resolve(context.Background(), "")
		parts := strings.Split(id.ID, "-")
		suffix := parts[len(parts)-1]
		if len(suffix) != 4 {
			t.Fatalf("expected 4-char suffix, got %q in %q", suffix, id.ID)
		}
		seen[suffix] = true
	}
	if len(seen) < 2 {
		t.Error("expected random suffixes to vary across resolutions")
	}
}

// ===== CLEAR TESTS =====

func TestClear(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	first := r.Resolve(context.Background(), "")
	if first.Source != SourceGenerated {
		t.Fatalf("expected generated identity, got %q", first.Source)
	}

	if err := r.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if _, err := os.Stat(config.NewPaths(root).InstanceFile()); !os.IsNotExist(err) {
		t.Error("expected cache file removed")
	}
	if _, ok := r.Cached(); ok {
		t.Error("expected memoized identity forgotten")
	}

	second := r.Resolve(context.Background(), "")
	if second.Source != SourceGenerated {
		t.Errorf("expected fresh generation after clear, got %q", second.Source)
	}
}

func TestClear_NoCacheFile(t *testing.T) {
	r := NewResolver(t.TempDir())
	if err := r.Clear(); err != nil {
		t.Errorf("expected nil clearing absent cache, got %v", err)
	}
}

// ===== SANITIZATION TESTS =====

func TestSanitizeSegment(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"lowercases", "UPPER", 24, "upper"},
		{"slashes to dashes", "feature/login-ui", 24, "feature-login-ui"},
		{"collapses runs", "a_b__c", 24, "a-b-c"},
		{"strips edges", "--hello--", 24, "hello"},
		{"non ascii", "héllo wörld", 24, "h-llo-w-rld"},
		{"only junk", "!!!", 24, ""},
		{"empty", "", 24, ""},
		{"truncates", "abcdefghij", 5, "abcde"},
		{"truncation trims dash", "abcd-efgh", 5, "abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeSegment(tt.input, tt.max); got != tt.want {
				t.Errorf("sanitizeSegment(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}
