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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AleutianAI/AleutianSwarm/pkg/logging"
	"github.com/AleutianAI/AleutianSwarm/pkg/ux"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
)

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("swarm %s\n", coordinator.ServiceVersion)
}

// projectRoot resolves the effective project root: --project-root flag,
// then SWARM_PROJECT_ROOT, then the current directory, made absolute so
// lock paths canonicalize the same way from any cwd.
func projectRoot() string {
	root := viper.GetString("project_root")
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return abs
}

// buildService wires the coordination service for the resolved root.
func buildService() *coordinator.Service {
	return coordinator.NewService(coordinator.Config{ProjectRoot: projectRoot()})
}

// installLogging routes logs for this invocation. Hook commands log
// quietly to .swarm/logs/ so stderr never interleaves with the host
// runtime's own output; everything else logs to stderr as usual.
func installLogging(cmd *cobra.Command) {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}

	cfg := logging.Config{Level: level, Service: "swarm"}
	if isHookCommand(cmd) {
		cfg.Service = "hook"
		cfg.Quiet = true
		cfg.LogDir = config.NewPaths(projectRoot()).LogsDir()
	}
	logging.New(cfg).Install()
}

// isHookCommand reports whether cmd sits under "swarm hook".
func isHookCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "hook" {
			return true
		}
	}
	return false
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		ux.Error(fmt.Sprintf("Could not encode JSON: %v", err))
		os.Exit(1)
	}
	fmt.Println(string(data))
}
