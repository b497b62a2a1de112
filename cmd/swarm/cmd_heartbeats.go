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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSwarm/pkg/ux"
)

func runHeartbeats(cmd *cobra.Command, args []string) {
	svc := buildService()

	if pruneStale {
		removed, err := svc.Beats().Prune()
		if err != nil {
			ux.Error(fmt.Sprintf("Could not prune heartbeats: %v", err))
			os.Exit(1)
		}
		ux.Success(fmt.Sprintf("Pruned %d stale heartbeat entr%s", removed, plural(removed, "y", "ies")))
		return
	}

	statuses := svc.Beats().Snapshot()
	if len(statuses) == 0 {
		ux.Info("No heartbeats recorded yet")
		return
	}

	ux.Title(fmt.Sprintf("%d instance(s), stale after %s", len(statuses), svc.Beats().StaleAfter()))
	for _, st := range statuses {
		state := "healthy"
		if st.Stale {
			state = "stale"
		}
		fmt.Printf("  %s  %s  last seen %s ago\n",
			ux.StatusBadge(state), st.InstanceID,
			time.Since(st.LastSeenAt).Round(time.Second))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
