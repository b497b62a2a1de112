// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package weaviate is the self-hosted tier-2 memory backend. It targets
// a Weaviate deployment reachable at WEAVIATE_URL and keeps one
// SwarmMemory class per deployment, with records partitioned by a
// project property.
package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
)

// Config configures a Tier.
type Config struct {
	// URL overrides the WEAVIATE_URL env var, e.g. "http://localhost:8080".
	URL string

	// Project is the repository isolation key stored on every object.
	Project string
}

// Tier pushes memory records to Weaviate. Implements fabric.CloudTier.
//
// # Thread Safety
//
// Safe for concurrent use. Schema creation is serialized and retried
// until it succeeds once.
type Tier struct {
	client  *weaviate.Client
	project string

	mu      sync.Mutex
	ensured bool
}

// NewTier creates a Weaviate tier.
//
// A missing or unparseable URL yields an unconfigured tier rather than
// an error: like the rest of the coordination layer, a misconfigured
// optional backend degrades to local-only operation.
func NewTier(cfg Config) *Tier {
	rawURL := cfg.URL
	if rawURL == "" {
		rawURL = os.Getenv("WEAVIATE_URL")
	}
	project := cfg.Project
	if project == "" {
		project = "swarm"
	}
	t := &Tier{project: project}
	if rawURL == "" {
		return t
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		slog.Warn("weaviate: URL is invalid, running local-only",
			"url", rawURL, "error", err)
		return t
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		slog.Warn("weaviate: client creation failed, running local-only",
			"error", err)
		return t
	}

	t.client = client
	return t
}

// Name implements fabric.CloudTier.
func (t *Tier) Name() string { return "weaviate" }

// Configured implements fabric.CloudTier.
func (t *Tier) Configured() bool { return t.client != nil }

// Push implements fabric.CloudTier.
//
// Creates the SwarmMemory class on first use, then stores the record
// as one object. Content is the only vectorized property.
func (t *Tier) Push(ctx context.Context, rec fabric.Record) error {
	if !t.Configured() {
		return fabric.ErrCloudUnconfigured
	}
	if err := t.ensureSchema(ctx); err != nil {
		return err
	}

	_, err := t.client.Data().Creator().
		WithClassName(ClassName).
		WithProperties(map[string]interface{}{
			"recordId":  rec.ID,
			"content":   rec.Content,
			"kind":      string(rec.Kind),
			"category":  rec.Category,
			"project":   t.project,
			"createdAt": rec.Timestamp.UTC().Format(time.RFC3339),
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: store record: %w", err)
	}

	slog.Debug("weaviate: pushed record",
		"record_id", rec.ID,
		"kind", rec.Kind)
	return nil
}

// ensureSchema creates the SwarmMemory class if it does not exist.
// Idempotent; a failure is retried on the next push.
func (t *Tier) ensureSchema(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ensured {
		return nil
	}

	_, err := t.client.Schema().ClassGetter().WithClassName(ClassName).Do(ctx)
	if err == nil {
		t.ensured = true
		return nil
	}

	slog.Info("weaviate: creating memory schema", "class", ClassName)
	if err := t.client.Schema().ClassCreator().WithClass(memorySchema()).Do(ctx); err != nil {
		return fmt.Errorf("weaviate: create schema: %w", err)
	}
	t.ensured = true
	return nil
}
