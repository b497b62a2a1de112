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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSwarm/pkg/ux"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
)

func runHealth(cmd *cobra.Command, args []string) {
	svc := buildService()
	snap := svc.Fabric().CheckHealth()

	if healthJSON {
		printJSON(snap)
		return
	}

	ux.Title(fmt.Sprintf("Memory fabric: %s", ux.StatusBadge(string(snap.Overall))))
	tierLine("graph", snap.Tiers.Graph)
	tierLine("cloud", snap.Tiers.Cloud)
	tierLine("fabric", snap.Tiers.Fabric)
	ux.Muted(fmt.Sprintf("Checked at %s", snap.CheckedAt.Format("15:04:05")))
}

// tierLine prints one tier's status row.
func tierLine(name string, th fabric.TierHealth) {
	detail := th.Message
	if detail == "" {
		detail = fmt.Sprintf("%d record(s), %d bytes", th.LineCount, th.SizeBytes)
	}
	fmt.Printf("  %-8s %s  %s\n", name, ux.StatusBadge(string(th.Status)), detail)
}
