// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordinator

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/identity"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/telemetry"
)

// Handlers contains the HTTP handlers for the swarm coordinator.
type Handlers struct {
	svc     *Service
	metrics *telemetry.Metrics
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// WithMetrics attaches the recall instruments. Handlers without
// metrics simply skip recording, so tests need no meter setup.
func (h *Handlers) WithMetrics(m *telemetry.Metrics) *Handlers {
	h.metrics = m
	return h
}

// HandleHealth handles GET /v1/swarm/health.
//
// Liveness only; the deep coordination view lives at /status.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleListLocks handles GET /v1/swarm/locks.
//
// Response:
//
//	200 OK: LocksResponse (live locks only; expired entries are pruned
//	on read)
func (h *Handlers) HandleListLocks(c *gin.Context) {
	locks := h.svc.Locks().List(c.Request.Context())
	c.JSON(http.StatusOK, LocksResponse{Locks: locks, Count: len(locks)})
}

// HandleAcquireLock handles POST /v1/swarm/locks/acquire.
//
// Description:
//
//	Attempts an exclusive write claim for the named instance. A denial
//	is not an error: the 409 body is the same AcquireLockResponse with
//	the conflicting lock attached.
//
// Request Body:
//
//	AcquireLockRequest
//
// Response:
//
//	200 OK: AcquireLockResponse (granted)
//	409 Conflict: AcquireLockResponse (held by another instance)
//	400 Bad Request: Validation error
func (h *Handlers) HandleAcquireLock(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAcquireLock")

	var req AcquireLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	id := identity.Identity{
		ID:         req.InstanceID,
		Source:     identity.SourceExplicit,
		ResolvedAt: time.Now().UTC(),
	}
	dec := h.svc.Locks().Acquire(c.Request.Context(), req.FilePath, id, req.Reason)
	resp := AcquireLockResponse{
		Granted:    dec.Granted,
		Reason:     dec.Reason,
		Conflict:   dec.Conflict,
		TTLSeconds: int(h.svc.Locks().TTL() / time.Second),
	}

	if !dec.Granted {
		logger.Info("Lock denied",
			"path", req.FilePath,
			"requester", req.InstanceID,
			"holder", dec.Conflict.InstanceID)
		c.JSON(http.StatusConflict, resp)
		return
	}

	logger.Info("Lock granted", "path", req.FilePath, "instance", req.InstanceID)
	c.JSON(http.StatusOK, resp)
}

// HandleReleaseLock handles POST /v1/swarm/locks/release.
//
// Description:
//
//	Releases one claim, or every claim the instance holds when "all"
//	is set. Releasing a lock you do not hold is a no-op, reported as
//	zero released.
//
// Request Body:
//
//	ReleaseLockRequest
//
// Response:
//
//	200 OK: ReleaseLockResponse
//	400 Bad Request: Validation error, or neither file_path nor all
func (h *Handlers) HandleReleaseLock(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleReleaseLock")

	var req ReleaseLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if !req.All && req.FilePath == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "file_path is required unless all is set",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	id := identity.Identity{
		ID:         req.InstanceID,
		Source:     identity.SourceExplicit,
		ResolvedAt: time.Now().UTC(),
	}

	released := 0
	if req.All {
		released = h.svc.Locks().ReleaseAll(c.Request.Context(), id)
	} else if h.svc.Locks().Release(c.Request.Context(), req.FilePath, id) {
		released = 1
	}

	logger.Info("Locks released", "instance", req.InstanceID, "released", released)
	c.JSON(http.StatusOK, ReleaseLockResponse{Released: released})
}

// HandleListHeartbeats handles GET /v1/swarm/heartbeats.
//
// Response:
//
//	200 OK: HeartbeatsResponse (one row per instance, newest beat wins)
func (h *Handlers) HandleListHeartbeats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Heartbeats())
}

// HandleBeat handles POST /v1/swarm/heartbeats/beat.
//
// Request Body:
//
//	BeatRequest
//
// Response:
//
//	200 OK: BeatResponse (recorded=false means the append failed and
//	was swallowed; liveness is advisory)
//	400 Bad Request: Validation error
func (h *Handlers) HandleBeat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleBeat")

	var req BeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	id := identity.Identity{
		ID:         req.InstanceID,
		Source:     identity.SourceExplicit,
		ResolvedAt: time.Now().UTC(),
	}
	recorded := h.svc.Beats().Beat(id)
	c.JSON(http.StatusOK, BeatResponse{Recorded: recorded, InstanceID: req.InstanceID})
}

// HandleRecall handles GET /v1/swarm/recall.
//
// Query Parameters:
//
//	q - Free-text query terms; all must match (required)
//	limit - Maximum records, newest first (default 10)
//
// Response:
//
//	200 OK: RecallResponse
//	400 Bad Request: Missing q
func (h *Handlers) HandleRecall(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRecall")

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "q query parameter is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	start := time.Now()
	resp := h.svc.Recall(c.Request.Context(), query, limit)
	if h.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("source", resp.Source))
		h.metrics.RecallQueriesTotal.Add(c.Request.Context(), 1, attrs)
		h.metrics.RecallDuration.Record(c.Request.Context(), time.Since(start).Seconds(), attrs)
	}

	logger.Info("Recall served",
		"query", query,
		"count", resp.Count,
		"source", resp.Source)
	c.JSON(http.StatusOK, resp)
}

// HandleCreateRecord handles POST /v1/swarm/records.
//
// Description:
//
//	Appends one record to the tier-1 graph log and enqueues the tier-2
//	handoff. The append is the one coordination write that does not
//	fail open, so a 500 here means the record did not land.
//
// Request Body:
//
//	CreateRecordRequest
//
// Response:
//
//	201 Created: CreateRecordResponse
//	400 Bad Request: Validation error or invalid kind
//	500 Internal Server Error: Tier-1 write failure
func (h *Handlers) HandleCreateRecord(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateRecord")

	var req CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.svc.Remember(c.Request.Context(), req)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "APPEND_FAILED"

		if errors.Is(err, fabric.ErrEmptyContent) {
			statusCode = http.StatusBadRequest
			errCode = "EMPTY_CONTENT"
		} else if errors.Is(err, fabric.ErrInvalidKind) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_KIND"
		}

		logger.Error("Record append failed", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Record appended",
		"record_id", resp.Record.ID,
		"kind", resp.Record.Kind,
		"queue_depth", resp.QueueDepth)
	c.JSON(http.StatusCreated, resp)
}

// HandleExtract handles POST /v1/swarm/extract.
//
// Description:
//
//	Runs the decision miner over the supplied text. With store=true
//	each candidate is also appended to the graph log; append failures
//	drop that candidate and keep going.
//
// Request Body:
//
//	ExtractRequest
//
// Response:
//
//	200 OK: ExtractResponse
//	400 Bad Request: Validation error
func (h *Handlers) HandleExtract(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExtract")

	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp := h.svc.Extract(c.Request.Context(), req)
	logger.Info("Extraction complete",
		"candidates", len(resp.Candidates),
		"stored", resp.Stored)
	c.JSON(http.StatusOK, resp)
}

// HandleSync handles POST /v1/swarm/sync.
//
// Description:
//
//	Drains one batch of the tier-2 sync queue. Per-record push
//	failures are accounted in the report, not surfaced as errors;
//	those entries stay queued for the next drain.
//
// Response:
//
//	200 OK: syncer.Report
//	503 Service Unavailable: No cloud tier configured
//	500 Internal Server Error: Queue compaction failure
func (h *Handlers) HandleSync(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSync")

	report, err := h.svc.Sync(c.Request.Context())
	if err != nil {
		if errors.Is(err, fabric.ErrCloudUnconfigured) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: err.Error(),
				Code:  "CLOUD_UNCONFIGURED",
			})
			return
		}
		logger.Error("Sync failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SYNC_FAILED",
		})
		return
	}

	logger.Info("Sync complete",
		"provider", report.Provider,
		"synced", report.Synced,
		"failed", report.Failed)
	c.JSON(http.StatusOK, report)
}

// HandleStatus handles GET /v1/swarm/status.
//
// Response:
//
//	200 OK: StatusResponse (always; every read in it fails open)
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status(c.Request.Context()))
}

// getOrCreateRequestID returns the X-Request-ID header, generating one
// when absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
