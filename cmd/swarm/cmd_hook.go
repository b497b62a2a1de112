// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/hook"
)

// The hook commands speak the host runtime's protocol: one JSON event
// on stdin, one JSON verdict on stdout, exit code always zero. A
// non-zero exit would make the host treat coordination itself as a
// tool failure, so every problem here resolves to an allow.

func runHookPreTool(cmd *cobra.Command, args []string) {
	ev, err := hook.ParseEvent(os.Stdin)
	if err != nil {
		emitJSON(hook.Decision{Decision: hook.DecisionAllow, Reason: hook.ReasonUnparseable})
		return
	}

	svc := buildService()
	emitJSON(svc.Runner().PreTool(cmd.Context(), ev))
}

func runHookPostTool(cmd *cobra.Command, args []string) {
	ev, err := hook.ParseEvent(os.Stdin)
	if err != nil {
		emitJSON(hook.Summary{})
		return
	}

	svc := buildService()
	emitJSON(svc.Runner().PostTool(cmd.Context(), ev))
}

// emitJSON writes v to stdout as a single JSON line. Encoding failures
// are swallowed; there is no useful recourse inside a hook.
func emitJSON(v any) {
	_ = json.NewEncoder(os.Stdout).Encode(v)
}
