// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordinator

import (
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/extract"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/heartbeat"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/identity"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/lock"
)

// ServiceVersion is the swarm coordinator service version.
const ServiceVersion = "0.1.0"

// ErrorResponse is the standard error response shape.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse is the liveness response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// AcquireLockRequest asks for an exclusive write claim on a file.
type AcquireLockRequest struct {
	// FilePath is the file to claim, absolute or repo-relative.
	FilePath string `json:"file_path" binding:"required"`

	// InstanceID is the claiming instance.
	InstanceID string `json:"instance_id" binding:"required"`

	// Reason is shown to whoever hits the conflict.
	Reason string `json:"reason"`
}

// AcquireLockResponse reports the outcome of an acquire attempt.
//
// Returned with 200 when granted and 409 when denied; both carry the
// same shape so clients parse one thing. A denial always includes the
// conflicting lock.
type AcquireLockResponse struct {
	Granted    bool           `json:"granted"`
	Reason     string         `json:"reason"`
	Conflict   *lock.FileLock `json:"conflict,omitempty"`
	TTLSeconds int            `json:"ttl_seconds"`
}

// ReleaseLockRequest releases one claim, or all claims when All is set.
type ReleaseLockRequest struct {
	// FilePath is the file to release. Ignored when All is set.
	FilePath string `json:"file_path"`

	// InstanceID is the holder releasing its claim.
	InstanceID string `json:"instance_id" binding:"required"`

	// All releases every lock held by InstanceID.
	All bool `json:"all"`
}

// ReleaseLockResponse reports how many locks were released.
type ReleaseLockResponse struct {
	Released int `json:"released"`
}

// LocksResponse lists the live locks in the shared table.
type LocksResponse struct {
	Locks []lock.FileLock `json:"locks"`
	Count int             `json:"count"`
}

// BeatRequest records liveness for an instance.
type BeatRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

// BeatResponse acknowledges a recorded heartbeat.
type BeatResponse struct {
	Recorded   bool   `json:"recorded"`
	InstanceID string `json:"instance_id"`
}

// HeartbeatsResponse is the per-instance liveness view.
type HeartbeatsResponse struct {
	Instances         []heartbeat.InstanceStatus `json:"instances"`
	Count             int                        `json:"count"`
	StaleAfterSeconds int                        `json:"stale_after_seconds"`
}

// CreateRecordRequest appends one memory record to the graph log.
type CreateRecordRequest struct {
	// Content is the text to remember.
	Content string `json:"content" binding:"required"`

	// Kind is decision, pattern, or observation. Defaults to observation.
	Kind string `json:"kind"`

	// Category overrides the classifier's topic tag.
	Category string `json:"category"`

	// Metadata carries caller-defined context.
	Metadata map[string]string `json:"metadata"`
}

// CreateRecordResponse returns the appended record.
type CreateRecordResponse struct {
	Record     fabric.Record `json:"record"`
	QueueDepth int           `json:"queue_depth"`
}

// ExtractRequest mines assistant output for memory candidates.
type ExtractRequest struct {
	// Text is the output to mine.
	Text string `json:"text" binding:"required"`

	// Store appends each candidate to the graph log as well.
	Store bool `json:"store"`
}

// ExtractResponse lists what the extractor found.
type ExtractResponse struct {
	Candidates []extract.Candidate `json:"candidates"`
	Stored     int                 `json:"stored"`
}

// RecallResponse answers a memory query.
type RecallResponse struct {
	Query   string          `json:"query"`
	Records []fabric.Record `json:"records"`
	Count   int             `json:"count"`

	// Source is "index" when the badger index served the query and
	// "scan" when it fell back to a linear pass over the graph log.
	Source string `json:"source"`
}

// StatusResponse is the full coordination diagnostics view.
type StatusResponse struct {
	ProjectRoot     string                `json:"project_root"`
	Enabled         bool                  `json:"enabled"`
	Instance        identity.Identity     `json:"instance"`
	Locks           int                   `json:"locks"`
	ActiveInstances int                   `json:"active_instances"`
	StaleInstances  int                   `json:"stale_instances"`
	QueueDepth      int                   `json:"queue_depth"`
	CloudProvider   string                `json:"cloud_provider"`
	Memory          fabric.HealthSnapshot `json:"memory"`
	Version         string                `json:"version"`
}
