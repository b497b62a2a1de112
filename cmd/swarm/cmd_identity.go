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
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/identity"
)

func runIdentity(cmd *cobra.Command, args []string) {
	resolver := identity.NewResolver(projectRoot())

	if clearIdentity {
		if err := resolver.Clear(); err != nil {
			ux.Error(fmt.Sprintf("Could not clear cached identity: %v", err))
			os.Exit(1)
		}
		ux.Success("Cleared cached instance identity; the next resolve regenerates it")
		return
	}

	id := resolver.Resolve(cmd.Context(), "")
	ux.KeyValue("Instance", id.ID)
	ux.KeyValue("Source", string(id.Source))
	ux.KeyValue("Resolved", id.ResolvedAt.Format(time.RFC3339))
}
