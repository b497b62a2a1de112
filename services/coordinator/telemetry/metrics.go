// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the coordinator's HTTP-level instruments.
//
// The functional packages (lock, fabric, syncer, hook) register their
// own promauto metrics; these cover the serving surface in front of
// them. All names carry the "swarm_" prefix.
//
// # Thread Safety
//
// Safe for concurrent use after creation.
type Metrics struct {
	// HTTPRequestsTotal counts requests by method, route, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests tracks in-flight requests.
	HTTPActiveRequests metric.Int64UpDownCounter

	// RecallQueriesTotal counts recall queries by outcome.
	RecallQueriesTotal metric.Int64Counter

	// RecallDuration records recall query duration in seconds.
	RecallDuration metric.Float64Histogram
}

// NewMetrics registers every instrument with the meter.
//
// # Inputs
//
//   - meter: Typically otel.Meter("coordinator").
//
// # Outputs
//
//   - *Metrics: All instruments initialized.
//   - error: Non-nil when any registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"swarm_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"swarm_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"swarm_http_active_requests",
		metric.WithDescription("Currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	m.RecallQueriesTotal, err = meter.Int64Counter(
		"swarm_recall_queries_total",
		metric.WithDescription("Total recall queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recall_queries_total: %w", err)
	}

	m.RecallDuration, err = meter.Float64Histogram(
		"swarm_recall_duration_seconds",
		metric.WithDescription("Recall query duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create recall_duration: %w", err)
	}

	return m, nil
}
