// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabric

import "context"

// CloudTier is the tier-2 backend contract. Implementations live in
// subpackages (mem0, weaviate); the fabric itself only needs to know
// whether a backend is configured and how to push one record.
//
// Push must return an error on anything short of a confirmed durable
// write. The sync queue treats a nil error as permission to drop the
// corresponding entry, so optimistic acks would lose records.
type CloudTier interface {
	// Name identifies the backend ("mem0", "weaviate", "none").
	Name() string

	// Configured reports whether the backend has credentials to use.
	Configured() bool

	// Push durably writes one record to the backend.
	Push(ctx context.Context, rec Record) error
}

// NoCloud is the tier-2 backend used when no credential is configured.
// Running without tier 2 is a normal mode, not an error: records stay
// in the local graph and the queue simply accumulates until a backend
// appears or the operator prunes it.
type NoCloud struct{}

// Name implements CloudTier.
func (NoCloud) Name() string { return "none" }

// Configured implements CloudTier.
func (NoCloud) Configured() bool { return false }

// Push implements CloudTier. Always fails with ErrCloudUnconfigured.
func (NoCloud) Push(ctx context.Context, rec Record) error {
	return ErrCloudUnconfigured
}
