// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabric

import (
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/journal"
)

// CheckHealth inspects both tiers and reports a composite snapshot.
//
// # Description
//
// Pure read: nothing is repaired, pruned, or written. The graph tier is
// unavailable when the memory directory itself is missing and degraded
// when the graph holds corrupt lines or the sync backlog exceeds the
// threshold. The cloud tier is unavailable when no credential is
// configured — a normal mode, flagged as optional in the message — and
// degraded on the same backlog signal. An unconfigured cloud tier is
// excluded from the overall verdict, so a local-only project reads as
// healthy.
//
// # Outputs
//
//   - HealthSnapshot: Overall status plus per-tier detail.
//
// # Thread Safety
//
// Safe for concurrent use.
func (f *Fabric) CheckHealth() HealthSnapshot {
	depth := f.QueueDepth()

	graph := f.graphHealth(depth)
	cloud := f.cloudHealth(depth)
	composite := compositeHealth(graph, cloud, f.cloud.Configured())

	overall := graph.Status
	if f.cloud.Configured() {
		overall = Worse(graph.Status, cloud.Status)
	}

	return HealthSnapshot{
		Overall:   overall,
		Tiers:     Tiers{Graph: graph, Cloud: cloud, Fabric: composite},
		CheckedAt: f.now().UTC(),
	}
}

// graphHealth grades tier 1 from the memory directory and graph log.
func (f *Fabric) graphHealth(queueDepth int) TierHealth {
	th := TierHealth{Status: StatusHealthy}

	if _, err := os.Stat(f.paths.MemoryDir()); err != nil {
		th.Status = StatusUnavailable
		th.Message = "memory directory missing"
		return th
	}

	if info, err := os.Stat(f.paths.GraphFile()); err == nil {
		th.Exists = true
		th.SizeBytes = info.Size()
		th.LastModified = info.ModTime().UTC()
	}

	stats, err := journal.ScanJSONL[Record](f.paths.GraphFile(), nil)
	if err != nil {
		th.Status = StatusDegraded
		th.Message = fmt.Sprintf("graph unreadable: %v", err)
		return th
	}
	th.LineCount = stats.Lines
	th.CorruptLines = stats.Corrupt

	var reasons []string
	if stats.Corrupt > 0 {
		reasons = append(reasons, fmt.Sprintf("%d corrupt graph lines", stats.Corrupt))
	}
	if queueDepth > f.threshold {
		reasons = append(reasons, fmt.Sprintf("sync backlog %d exceeds threshold %d", queueDepth, f.threshold))
	}
	if len(reasons) > 0 {
		th.Status = StatusDegraded
		th.Message = strings.Join(reasons, "; ")
	}
	return th
}

// cloudHealth grades tier 2. The file columns describe the sync queue,
// which is the local half of the tier-2 handoff.
func (f *Fabric) cloudHealth(queueDepth int) TierHealth {
	th := TierHealth{Status: StatusHealthy}

	if info, err := os.Stat(f.paths.QueueFile()); err == nil {
		th.Exists = true
		th.SizeBytes = info.Size()
		th.LastModified = info.ModTime().UTC()
	}
	if stats, err := journal.ScanJSONL[QueueEntry](f.paths.QueueFile(), nil); err == nil {
		th.LineCount = stats.Lines
		th.CorruptLines = stats.Corrupt
	}

	if !f.cloud.Configured() {
		th.Status = StatusUnavailable
		th.Message = "no cloud credential configured (tier 2 is optional)"
		return th
	}
	if queueDepth > f.threshold {
		th.Status = StatusDegraded
		th.Message = fmt.Sprintf("%s sync backlog %d exceeds threshold %d",
			f.cloud.Name(), queueDepth, f.threshold)
		return th
	}
	th.Message = fmt.Sprintf("%s configured", f.cloud.Name())
	return th
}

// compositeHealth grades the fabric as a whole: unavailable when a
// required tier is unavailable, healthy otherwise.
func compositeHealth(graph, cloud TierHealth, cloudConfigured bool) TierHealth {
	th := TierHealth{Status: StatusHealthy}
	switch {
	case graph.Status == StatusUnavailable:
		th.Status = StatusUnavailable
		th.Message = "local graph tier unavailable"
	case cloudConfigured && cloud.Status == StatusUnavailable:
		th.Status = StatusUnavailable
		th.Message = "cloud tier unavailable"
	case !cloudConfigured:
		th.Message = "operating on local tier only"
	default:
		th.Message = "both tiers operational"
	}
	return th
}
