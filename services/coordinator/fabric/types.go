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

import (
	"errors"
	"strings"
	"time"
)

// Kind categorizes a memory record.
type Kind string

const (
	// KindDecision is an explicit choice with lasting consequences.
	KindDecision Kind = "decision"

	// KindPattern is a recurring approach worth reusing.
	KindPattern Kind = "pattern"

	// KindObservation is anything else worth remembering.
	KindObservation Kind = "observation"
)

// ValidKinds is the set of valid record kinds.
var ValidKinds = map[Kind]bool{
	KindDecision:    true,
	KindPattern:     true,
	KindObservation: true,
}

// Status grades a tier's availability.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// statusSeverity orders statuses for worst-of reduction.
var statusSeverity = map[Status]int{
	StatusHealthy:     0,
	StatusDegraded:    1,
	StatusUnavailable: 2,
}

// Worse returns the more severe of a and b.
func Worse(a, b Status) Status {
	if statusSeverity[b] > statusSeverity[a] {
		return b
	}
	return a
}

// Sentinel errors for fabric operations.
var (
	ErrEmptyContent      = errors.New("record content cannot be empty")
	ErrInvalidKind       = errors.New("invalid record kind")
	ErrCloudUnconfigured = errors.New("cloud tier not configured")
)

// Record is one entry in the tier-1 graph log.
//
// Records are append-only: once written they are never mutated or
// reordered. PendingSync reflects the state at append time; whether a
// record has actually reached tier 2 is answered by the sync queue,
// not by rewriting the graph.
type Record struct {
	// ID is the unique identifier (UUID).
	ID string `json:"id"`

	// Kind categorizes the record.
	Kind Kind `json:"kind"`

	// Category is the classifier's topic tag, e.g. "security".
	Category string `json:"category,omitempty"`

	// Content is the remembered text.
	Content string `json:"content"`

	// Metadata carries caller-defined context (instance id, tool name).
	Metadata map[string]string `json:"metadata,omitempty"`

	// Timestamp is when the record was appended.
	Timestamp time.Time `json:"timestamp"`

	// PendingSync marks the record as enqueued for tier 2 at append time.
	PendingSync bool `json:"pending_sync"`
}

// Validate checks that the record can be appended.
//
// Outputs:
//
//	error - Non-nil if a required field is missing or invalid.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	if !ValidKinds[r.Kind] {
		return ErrInvalidKind
	}
	return nil
}

// QueueEntry is one handoff reference in the sync queue. An entry
// leaves the queue only after a confirmed durable write to tier 2;
// the queue's depth is the backlog signal health checks report on.
type QueueEntry struct {
	// RecordID names the graph record awaiting push.
	RecordID string `json:"record_id"`

	// Kind mirrors the record's kind so the drainer can route without
	// re-reading the graph.
	Kind Kind `json:"kind"`

	// Content mirrors the record's content for the same reason.
	Content string `json:"content"`

	// EnqueuedAt is when the entry joined the queue.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Attempts counts failed pushes so far.
	Attempts int `json:"attempts"`
}

// TierHealth aggregates one log file's condition plus the derived
// status. The fabric composite row carries only Status and Message.
type TierHealth struct {
	Exists       bool      `json:"exists"`
	LineCount    int       `json:"line_count"`
	CorruptLines int       `json:"corrupt_lines"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
	Status       Status    `json:"status"`
	Message      string    `json:"message,omitempty"`
}

// Tiers is the per-tier breakdown of a health snapshot.
type Tiers struct {
	Graph  TierHealth `json:"graph"`
	Cloud  TierHealth `json:"cloud"`
	Fabric TierHealth `json:"fabric"`
}

// HealthSnapshot is the read-only diagnostics view of the fabric.
type HealthSnapshot struct {
	Overall   Status    `json:"overall"`
	Tiers     Tiers     `json:"tiers"`
	CheckedAt time.Time `json:"checked_at"`
}
