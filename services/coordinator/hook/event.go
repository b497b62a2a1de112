// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/lock"
)

// Event is one tool-use notification from the host assistant runtime.
//
// Only ToolName is always present. Success is a pointer on purpose: an
// absent flag means the host made no claim, and only an explicit true
// makes the output eligible for mining.
type Event struct {
	ToolName     string `json:"tool_name"`
	FilePath     string `json:"file_path,omitempty"`
	AgentOutput  string `json:"agent_output,omitempty"`
	Success      *bool  `json:"success,omitempty"`
	InstanceHint string `json:"instance_hint,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// ParseEvent decodes one event from r.
//
// Callers must treat a parse error as "allow": a host runtime speaking
// a dialect we do not understand is not a reason to block its work.
func ParseEvent(r io.Reader) (Event, error) {
	var ev Event
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("hook: parse event: %w", err)
	}
	return ev, nil
}

// MutatingTools is the allow-list of tool names whose use claims a file
// lock. Keys are canonical: lowercase with underscores stripped, so
// "MultiEdit" and "multi_edit" land on the same entry.
var MutatingTools = map[string]bool{
	"write":        true,
	"edit":         true,
	"multiedit":    true,
	"notebookedit": true,
}

// IsMutating reports whether toolName is on the mutating allow-list.
func IsMutating(toolName string) bool {
	return MutatingTools[canonicalTool(toolName)]
}

// Mutating reports whether this event's tool is on the mutating
// allow-list. Everything else passes through without a lock check.
func (e Event) Mutating() bool {
	return IsMutating(e.ToolName)
}

func canonicalTool(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, "_", "")
}

// Hook decisions. Deny is reserved for a live conflicting lock; every
// failure inside the coordination layer itself resolves to allow.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Decision reasons produced by the hook layer itself. Lock outcomes
// carry the lock manager's reason text instead.
const (
	ReasonNotMutating = "tool does not modify files"
	ReasonUnparseable = "event unparseable, failing open"
)

// Decision is the pre-tool verdict returned to the host runtime.
type Decision struct {
	Decision string         `json:"decision"`
	Reason   string         `json:"reason"`
	Conflict *lock.FileLock `json:"conflict,omitempty"`
}

// Allowed reports whether the verdict permits the tool use.
func (d Decision) Allowed() bool {
	return d.Decision == DecisionAllow
}

// Summary is the post-tool accounting returned to the host runtime.
type Summary struct {
	HeartbeatRecorded bool `json:"heartbeat_recorded"`
	CandidatesFound   int  `json:"candidates_found"`
	RecordsAppended   int  `json:"records_appended"`
}
