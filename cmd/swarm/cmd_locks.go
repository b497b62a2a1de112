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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSwarm/pkg/ux"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/watch"
)

func runLocks(cmd *cobra.Command, args []string) {
	svc := buildService()
	ctx := cmd.Context()

	if releaseAll {
		id := svc.Resolver().Resolve(ctx, "")
		released := svc.Locks().ReleaseAll(ctx, id)
		ux.Success(fmt.Sprintf("Released %d lock(s) held by %s", released, id.ID))
		return
	}
	if releasePath != "" {
		id := svc.Resolver().Resolve(ctx, "")
		if svc.Locks().Release(ctx, releasePath, id) {
			ux.Success(fmt.Sprintf("Released %s", releasePath))
		} else {
			ux.Warning(fmt.Sprintf("No live lock on %s held by %s", releasePath, id.ID))
		}
		return
	}

	renderLocks(ctx, svc)
	if !watchLocks {
		return
	}

	watcher, err := watch.NewWatcher(watch.Config{ProjectRoot: svc.ProjectRoot()})
	if err != nil {
		ux.Error(fmt.Sprintf("Could not watch %s: %v", svc.ProjectRoot(), err))
		os.Exit(1)
	}
	if err := watcher.Start(ctx); err != nil {
		ux.Error(fmt.Sprintf("Could not watch %s: %v", svc.ProjectRoot(), err))
		os.Exit(1)
	}
	defer watcher.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	ux.Muted("Watching the lock table (Ctrl+C to stop)")

	for {
		select {
		case <-quit:
			return
		case batch, ok := <-watcher.Events():
			if !ok {
				return
			}
			for _, ev := range batch {
				if ev.Kind == watch.KindLocks {
					fmt.Println()
					renderLocks(ctx, svc)
					break
				}
			}
		}
	}
}

// renderLocks prints the live lock table.
func renderLocks(ctx context.Context, svc *coordinator.Service) {
	locks := svc.Locks().List(ctx)
	if len(locks) == 0 {
		ux.Info("No live locks")
		return
	}

	ux.Title(fmt.Sprintf("%d live lock(s)", len(locks)))
	for _, l := range locks {
		remaining := time.Until(l.ExpiresAt).Round(time.Second)
		ux.LockLine(l.FilePath, l.InstanceID, fmt.Sprintf("in %s", remaining))
	}
}
