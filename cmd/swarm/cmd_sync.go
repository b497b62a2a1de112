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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSwarm/pkg/ux"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/export"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
)

func runSync(cmd *cobra.Command, args []string) {
	svc := buildService()

	report, err := svc.Sync(cmd.Context())
	if err != nil {
		if errors.Is(err, fabric.ErrCloudUnconfigured) {
			ux.Warning("No cloud memory tier configured; records stay queued locally")
			ux.Muted("Set MEM0_API_KEY or WEAVIATE_URL, or cloud.provider in .swarm/settings.yaml")
			return
		}
		ux.Error(fmt.Sprintf("Sync failed: %v", err))
		os.Exit(1)
	}

	ux.Summary(report.Synced, report.Failed, svc.Fabric().QueueDepth())
	ux.Muted(fmt.Sprintf("Provider %s, %d queue line(s) compacted, took %s",
		report.Provider, report.Compacted,
		time.Duration(report.DurationMS)*time.Millisecond))
}

func runExport(cmd *cobra.Command, args []string) {
	svc := buildService()

	exporter, err := export.NewExporter(export.Config{
		ProjectRoot: svc.ProjectRoot(),
		Fabric:      svc.Fabric(),
		Project:     filepath.Base(svc.ProjectRoot()),
		Bucket:      exportBucket,
	})
	if err != nil {
		ux.Error(fmt.Sprintf("Could not build exporter: %v", err))
		os.Exit(1)
	}

	res, err := exporter.Run(cmd.Context())
	if err != nil {
		ux.Error(fmt.Sprintf("Export failed: %v", err))
		os.Exit(1)
	}

	ux.Success(fmt.Sprintf("Staged %d record(s) to %s (%d bytes)",
		res.RecordCount, res.Path, res.SizeBytes))
	if res.CorruptLines > 0 {
		ux.Warning(fmt.Sprintf("Skipped %d corrupt line(s) in the graph log", res.CorruptLines))
	}

	if res.Uploaded {
		ux.Success(fmt.Sprintf("Uploaded to gs://%s/%s", res.Bucket, res.ObjectPath))
	} else if exportBucket == "" {
		ux.Muted("No bucket set; snapshot staged locally only (--bucket to upload)")
	}
}
