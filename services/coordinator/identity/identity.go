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
Package identity resolves the stable identity of one assistant instance
working inside a project.

Several independent instances may operate on the same working copy at
once; everything the coordination layer writes (locks, heartbeats,
memory records) is attributed to an instance id. Resolution is
deliberately boring: an explicit hint wins, then a per-project cache
file, then a generated id that is persisted for next time. It never
fails — a filesystem that refuses to cooperate yields a process-scoped
fallback id instead of an error, because no caller should ever be
blocked by identity bookkeeping.
*/
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/journal"
)

// Source records which step of the resolution chain produced an identity.
type Source string

const (
	// SourceExplicit is a non-empty hint supplied by the caller.
	SourceExplicit Source = "explicit"

	// SourceCached is an id reused verbatim from .swarm/instance.json.
	SourceCached Source = "cached"

	// SourceGenerated is a freshly synthesized id, persisted for reuse.
	SourceGenerated Source = "generated"

	// SourceFallback is the process-scoped id used when the cache file
	// cannot be read or written.
	SourceFallback Source = "fallback"
)

// ValidSources enumerates the recognized sources.
var ValidSources = map[Source]bool{
	SourceExplicit:  true,
	SourceCached:    true,
	SourceGenerated: true,
	SourceFallback:  true,
}

// Identity names one assistant instance within a project.
//
// Constructed once per process and threaded explicitly through every
// coordination call; nothing in this module hides it in a global.
type Identity struct {
	// ID is the instance identifier, e.g. "billing-api-main-14-a3f2".
	ID string `json:"id"`

	// Source is the resolution-chain step that produced ID.
	Source Source `json:"source"`

	// ResolvedAt is when this process resolved the identity.
	ResolvedAt time.Time `json:"resolved_at"`
}

// instanceCache is the on-disk shape of .swarm/instance.json. Other
// tooling reads this file, so the single snake_case field is a contract.
type instanceCache struct {
	InstanceID string `json:"instance_id"`
}

// Resolver resolves and memoizes the identity for one project.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent first resolutions are collapsed
// into a single filesystem pass via singleflight; later calls return
// the memoized identity without touching disk.
type Resolver struct {
	paths config.Paths

	mu     sync.RWMutex
	cached *Identity

	group singleflight.Group

	// Test seams.
	now      func() time.Time
	hostname func() (string, error)
	pid      func() int
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithHostname substitutes hostname lookup.
func WithHostname(fn func() (string, error)) Option {
	return func(r *Resolver) { r.hostname = fn }
}

// NewResolver creates a Resolver rooted at projectRoot.
func NewResolver(projectRoot string, opts ...Option) *Resolver {
	r := &Resolver{
		paths:    config.NewPaths(projectRoot),
		now:      time.Now,
		hostname: os.Hostname,
		pid:      os.Getpid,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns this process's instance identity.
//
// # Description
//
// Priority chain, first hit wins:
//
//  1. A non-empty hint (used verbatim, never written to the cache file).
//  2. The id cached in .swarm/instance.json.
//  3. A generated id, persisted to the cache file for future processes.
//
// Any failure reading or writing the cache file degrades to
// "fallback-<pid>" rather than returning an error. The first resolution
// is memoized: every later call in this process returns the same
// Identity regardless of arguments.
//
// # Inputs
//
//   - ctx: Present for call-site symmetry; resolution is local file I/O
//     and does not block on it.
//   - hint: Externally supplied id, e.g. from the invoking tool event.
//
// # Outputs
//
//   - Identity: Never zero; ID is always non-empty.
func (r *Resolver) Resolve(ctx context.Context, hint string) Identity {
	r.mu.RLock()
	if r.cached != nil {
		id := *r.cached
		r.mu.RUnlock()
		return id
	}
	r.mu.RUnlock()

	v, _, _ := r.group.Do("resolve", func() (any, error) {
		r.mu.RLock()
		if r.cached != nil {
			id := *r.cached
			r.mu.RUnlock()
			return id, nil
		}
		r.mu.RUnlock()

		id := r.resolve(strings.TrimSpace(hint))

		r.mu.Lock()
		r.cached = &id
		r.mu.Unlock()
		return id, nil
	})
	return v.(Identity)
}

// Cached returns the memoized identity, if any.
func (r *Resolver) Cached() (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached == nil {
		return Identity{}, false
	}
	return *r.cached, true
}

// Clear removes the cache file and forgets the memoized identity, so
// the next Resolve starts the chain from scratch.
func (r *Resolver) Clear() error {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()

	err := os.Remove(r.paths.InstanceFile())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("identity: remove cache: %w", err)
	}
	return nil
}

// resolve walks the chain. All filesystem failures land on the fallback id.
func (r *Resolver) resolve(hint string) Identity {
	now := r.now()

	if hint != "" {
		return Identity{ID: hint, Source: SourceExplicit, ResolvedAt: now}
	}

	cache, err := journal.ReadDocument[instanceCache](r.paths.InstanceFile())
	switch {
	case err == nil && strings.TrimSpace(cache.InstanceID) != "":
		return Identity{ID: cache.InstanceID, Source: SourceCached, ResolvedAt: now}
	case err != nil && !errors.Is(err, journal.ErrNotExist):
		// A cache file we cannot read or parse: do not generate a new id
		// over it, somebody else's state may still be in there.
		return r.fallback(now)
	}

	generated := r.generate(now)
	if err := journal.WriteDocument(r.paths.InstanceFile(), instanceCache{InstanceID: generated}); err != nil {
		return r.fallback(now)
	}
	return Identity{ID: generated, Source: SourceGenerated, ResolvedAt: now}
}

func (r *Resolver) fallback(now time.Time) Identity {
	return Identity{
		ID:         fmt.Sprintf("fallback-%d", r.pid()),
		Source:     SourceFallback,
		ResolvedAt: now,
	}
}

// generate synthesizes "{project}-{discriminator}-{hour}-{suffix}".
//
// The discriminator is the working-copy branch when one can be read,
// else a hostname fragment; the hour bucket makes ids from different
// sessions distinguishable at a glance; the random suffix separates
// instances started within the same hour.
func (r *Resolver) generate(now time.Time) string {
	project := sanitizeSegment(filepath.Base(r.paths.ProjectRoot), 24)
	if project == "" {
		project = "project"
	}

	discriminator := r.branch()
	if discriminator == "" {
		discriminator = r.hostFragment()
	}
	if discriminator == "" {
		discriminator = "local"
	}

	bucket := now.UTC().Format("15")
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:4]

	return fmt.Sprintf("%s-%s-%s-%s", project, discriminator, bucket, suffix)
}

// branch reads the working-copy branch from .git/HEAD. A detached HEAD
// or any read failure yields "" so the caller moves on to the hostname.
func (r *Resolver) branch() string {
	data, err := os.ReadFile(filepath.Join(r.paths.ProjectRoot, ".git", "HEAD"))
	if err != nil {
		return ""
	}
	head := strings.TrimSpace(string(data))
	const refPrefix = "ref: refs/heads/"
	if !strings.HasPrefix(head, refPrefix) {
		return ""
	}
	return sanitizeSegment(strings.TrimPrefix(head, refPrefix), 24)
}

func (r *Resolver) hostFragment() string {
	host, err := r.hostname()
	if err != nil {
		return ""
	}
	host, _, _ = strings.Cut(host, ".")
	return sanitizeSegment(host, 12)
}

// sanitizeSegment lowercases s and reduces it to [a-z0-9-], collapsing
// runs of other characters into single dashes.
func sanitizeSegment(s string, max int) string {
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > max {
		out = strings.TrimRight(out[:max], "-")
	}
	return out
}
