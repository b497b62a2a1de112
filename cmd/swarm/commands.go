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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AleutianAI/AleutianSwarm/pkg/ux"
)

// --- Global Command Variables ---
var (
	verbose       bool
	plainOutput   bool
	clearIdentity bool
	watchLocks    bool
	releasePath   string
	releaseAll    bool
	pruneStale    bool
	healthJSON    bool
	rememberKind  string
	recallLimit   int
	exportBucket  string

	rootCmd = &cobra.Command{
		Use:   "swarm",
		Short: "Coordinate AI assistant instances sharing one working copy",
		Long: `Swarm keeps multiple AI assistant instances out of each other's way:
				exclusive file locks with a TTL, liveness heartbeats, and a tiered
				memory fabric that remembers decisions across sessions. All state
				lives in {project}/.swarm/ as plain files.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Honor --plain before anything renders.
			if plainOutput {
				ux.SetMode(ux.ModePlain)
			} else {
				ux.InitMode()
			}
			installLogging(cmd)
		},
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create .swarm/ with a commented default settings.yaml",
		Run:   runInit, // Defined in cmd_init.go
	}

	// --- Hooks ---
	hookCmd = &cobra.Command{
		Use:   "hook",
		Short: "Hook entry points for the host assistant runtime (JSON on stdin/stdout)",
	}
	hookPreToolCmd = &cobra.Command{
		Use:   "pre-tool",
		Short: "Decide whether a tool use may proceed (lock check, fail-open)",
		Run:   runHookPreTool, // Defined in cmd_hook.go
	}
	hookPostToolCmd = &cobra.Command{
		Use:   "post-tool",
		Short: "Record a heartbeat and mine the tool output for decisions",
		Run:   runHookPostTool, // Defined in cmd_hook.go
	}

	// --- Coordination ---
	identityCmd = &cobra.Command{
		Use:   "identity",
		Short: "Show this instance's resolved identity",
		Run:   runIdentity, // Defined in cmd_identity.go
	}
	locksCmd = &cobra.Command{
		Use:   "locks",
		Short: "List live file locks, watch them, or release your own",
		Run:   runLocks, // Defined in cmd_locks.go
	}
	heartbeatsCmd = &cobra.Command{
		Use:   "heartbeats",
		Short: "Show which instances are alive, or prune stale entries",
		Run:   runHeartbeats, // Defined in cmd_heartbeats.go
	}

	// --- Memory ---
	rememberCmd = &cobra.Command{
		Use:   "remember [text]",
		Short: "Append a record to the memory graph",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRemember, // Defined in cmd_memory.go
	}
	recallCmd = &cobra.Command{
		Use:   "recall [query]",
		Short: "Search remembered records, newest first",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall, // Defined in cmd_memory.go
	}
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Push queued records to the configured cloud memory tier",
		Run:   runSync, // Defined in cmd_sync.go
	}
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Stage a memory snapshot, optionally uploading it to GCS",
		Run:   runExport, // Defined in cmd_sync.go
	}

	// --- Diagnostics ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Report memory fabric health per tier",
		Run:   runHealth, // Defined in cmd_health.go
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the swarm version",
		Run:   runVersion, // Defined in cmd_utils.go
	}
)

// init runs when the Go program starts
func init() {
	// Global flags, overridable via SWARM_* environment variables.
	viper.SetEnvPrefix("SWARM")
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().String("project-root", "",
		"Project root containing .swarm/ (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Plain output: no color, no glyphs, tab-separated where possible")
	_ = viper.BindPFlag("project_root", rootCmd.PersistentFlags().Lookup("project-root"))

	rootCmd.AddCommand(initCmd)

	// Hook entry points
	rootCmd.AddCommand(hookCmd)
	hookCmd.AddCommand(hookPreToolCmd)
	hookCmd.AddCommand(hookPostToolCmd)

	// Coordination
	rootCmd.AddCommand(identityCmd)
	identityCmd.Flags().BoolVar(&clearIdentity, "clear", false,
		"Forget the cached identity so the next resolve regenerates it")

	rootCmd.AddCommand(locksCmd)
	locksCmd.Flags().BoolVar(&watchLocks, "watch", false,
		"Keep watching the lock table and re-render on changes")
	locksCmd.Flags().StringVar(&releasePath, "release", "",
		"Release this instance's lock on the given path")
	locksCmd.Flags().BoolVar(&releaseAll, "release-all", false,
		"Release every lock held by this instance")

	rootCmd.AddCommand(heartbeatsCmd)
	heartbeatsCmd.Flags().BoolVar(&pruneStale, "prune", false,
		"Drop heartbeat entries past the staleness window")

	// Memory
	rootCmd.AddCommand(rememberCmd)
	rememberCmd.Flags().StringVar(&rememberKind, "kind", "",
		"Record kind: decision, pattern, or observation (default observation)")

	rootCmd.AddCommand(recallCmd)
	recallCmd.Flags().IntVar(&recallLimit, "limit", 10,
		"Maximum number of records to return")

	rootCmd.AddCommand(syncCmd)

	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportBucket, "bucket", "",
		"GCS bucket to upload the snapshot to (empty: stage locally only)")

	// Diagnostics
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthJSON, "json", false,
		"Emit the raw health snapshot as JSON")

	rootCmd.AddCommand(versionCmd)
}
