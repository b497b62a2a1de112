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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all swarm coordinator routes with the router.
//
// Description:
//
//	Registers all /v1/swarm/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Lock Endpoints:
//
//	GET  /v1/swarm/locks - List live locks
//	POST /v1/swarm/locks/acquire - Claim a file for exclusive write
//	POST /v1/swarm/locks/release - Release one claim or all of them
//
// Heartbeat Endpoints:
//
//	GET  /v1/swarm/heartbeats - Per-instance liveness view
//	POST /v1/swarm/heartbeats/beat - Record a heartbeat
//
// Memory Endpoints:
//
//	GET  /v1/swarm/recall - Query the memory fabric
//	POST /v1/swarm/records - Append a memory record
//	POST /v1/swarm/extract - Mine text for decision candidates
//	POST /v1/swarm/sync - Drain the tier-2 sync queue
//
// Diagnostics Endpoints:
//
//	GET  /v1/swarm/health - Liveness check
//	GET  /v1/swarm/status - Full coordination status
//
// Example:
//
//	svc := coordinator.NewService(coordinator.Config{ProjectRoot: root})
//	handlers := coordinator.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	coordinator.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	swarm := rg.Group("/swarm")
	{
		// Locks
		swarm.GET("/locks", handlers.HandleListLocks)
		swarm.POST("/locks/acquire", handlers.HandleAcquireLock)
		swarm.POST("/locks/release", handlers.HandleReleaseLock)

		// Heartbeats
		swarm.GET("/heartbeats", handlers.HandleListHeartbeats)
		swarm.POST("/heartbeats/beat", handlers.HandleBeat)

		// Memory fabric
		swarm.GET("/recall", handlers.HandleRecall)
		swarm.POST("/records", handlers.HandleCreateRecord)
		swarm.POST("/extract", handlers.HandleExtract)
		swarm.POST("/sync", handlers.HandleSync)

		// Diagnostics
		swarm.GET("/health", handlers.HandleHealth)
		swarm.GET("/status", handlers.HandleStatus)
	}
}
