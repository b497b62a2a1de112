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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSwarm/pkg/ux"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator"
)

func runRemember(cmd *cobra.Command, args []string) {
	svc := buildService()
	text := strings.Join(args, " ")

	resp, err := svc.Remember(cmd.Context(), coordinator.CreateRecordRequest{
		Content: text,
		Kind:    rememberKind,
	})
	if err != nil {
		ux.Error(fmt.Sprintf("Could not store record: %v", err))
		os.Exit(1)
	}

	rec := resp.Record
	ux.Success(fmt.Sprintf("Remembered %s/%s record %s", rec.Kind, rec.Category, rec.ID))
	ux.Muted(fmt.Sprintf("%d record(s) pending cloud sync", resp.QueueDepth))
}

func runRecall(cmd *cobra.Command, args []string) {
	svc := buildService()
	query := strings.Join(args, " ")

	resp := svc.Recall(cmd.Context(), query, recallLimit)
	if resp.Count == 0 {
		ux.Info(fmt.Sprintf("Nothing remembered matches %q", query))
		return
	}

	ux.Title(fmt.Sprintf("%d match(es) for %q via %s", resp.Count, query, resp.Source))
	for _, rec := range resp.Records {
		fmt.Printf("  %s  [%s/%s]  %s\n",
			rec.Timestamp.Format("2006-01-02 15:04"), rec.Kind, rec.Category, rec.Content)
	}
}
