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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSwarm/pkg/ux"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/identity"
)

func runInit(cmd *cobra.Command, args []string) {
	root := projectRoot()
	paths := config.NewPaths(root)

	_, statErr := os.Stat(paths.SettingsFile())
	existed := statErr == nil

	path, err := config.WriteDefaultSettings(root)
	if err != nil {
		ux.Error(fmt.Sprintf("Could not write settings: %v", err))
		os.Exit(1)
	}

	if existed {
		ux.Info(fmt.Sprintf("Settings already present at %s, left untouched", path))
	} else {
		ux.Success(fmt.Sprintf("Wrote default settings to %s", path))
	}

	// Warm the identity cache so the first hook call doesn't pay for
	// git discovery.
	id := identity.NewResolver(root).Resolve(cmd.Context(), "")
	ux.KeyValue("Instance", id.ID)
	ux.KeyValue("Source", string(id.Source))

	ux.Muted("Coordination state lives in .swarm/; consider adding it to .gitignore.")
}
