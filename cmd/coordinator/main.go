// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command coordinator starts the swarm coordination diagnostics server.
//
// The server exposes the same coordination state the swarm CLI and the
// hook path work with: the lock table, heartbeat journal, and memory
// fabric under {project}/.swarm/. It holds no state of its own, so it
// can run beside any number of CLI and hook invocations against the
// same project.
//
// Usage:
//
//	go run ./cmd/coordinator
//	go run ./cmd/coordinator -port 9400 -project-root /path/to/project
//	COORDINATOR_PORT=9500 go run ./cmd/coordinator
//
// With tracing (OTLP collector at localhost:4317 by default):
//
//	OTEL_EXPORTER_OTLP_ENDPOINT=collector:4317 go run ./cmd/coordinator
//
// Example requests:
//
//	# Liveness
//	curl http://localhost:9400/v1/swarm/health
//
//	# Full coordination status
//	curl http://localhost:9400/v1/swarm/status | jq
//
//	# Claim a file
//	curl -X POST http://localhost:9400/v1/swarm/locks/acquire \
//	  -H "Content-Type: application/json" \
//	  -d '{"file_path": "src/api.go", "instance_id": "ci-runner-1"}'
//
//	# Query the memory fabric
//	curl 'http://localhost:9400/v1/swarm/recall?q=postgres&limit=5'
//
//	# Prometheus metrics
//	curl http://localhost:9400/metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianSwarm/pkg/logging"
	coordinator "github.com/AleutianAI/AleutianSwarm/services/coordinator"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/telemetry"
)

const shutdownGrace = 10 * time.Second

func main() {
	port := flag.Int("port", defaultPort(), "Port to listen on (COORDINATOR_PORT)")
	projectRoot := flag.String("project-root", ".", "Project directory to coordinate")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	level := logging.LevelInfo
	if *debug {
		level = logging.LevelDebug
	}
	logging.New(logging.Config{
		Level:   level,
		Service: "coordinator",
		JSON:    true,
	}).Install()

	// Set Gin mode
	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTelemetry(cleanupCtx); err != nil {
			slog.Warn("Telemetry shutdown incomplete", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.Meter("coordinator"))
	if err != nil {
		slog.Error("Failed to create metrics", "error", err)
		os.Exit(1)
	}

	svc := coordinator.NewService(coordinator.Config{ProjectRoot: *projectRoot})
	handlers := coordinator.NewHandlers(svc).WithMetrics(metrics)

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	if *debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware("swarm-coordinator"))
	router.Use(coordinator.MetricsMiddleware(metrics))

	v1 := router.Group("/v1")
	coordinator.RegisterRoutes(v1, handlers)
	if metricsHandler := telemetry.MetricsHandler(); metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	printBanner(*port, svc)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	go func() {
		slog.Info("Starting swarm coordinator server",
			slog.String("address", srv.Addr),
			slog.String("project_root", svc.ProjectRoot()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down swarm coordinator server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Forced shutdown", slog.String("error", err.Error()))
	}
}

// defaultPort reads COORDINATOR_PORT, falling back to 9400.
func defaultPort() int {
	if raw := os.Getenv("COORDINATOR_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 {
			return port
		}
		slog.Warn("Ignoring invalid COORDINATOR_PORT", "value", raw)
	}
	return 9400
}

func printBanner(port int, svc *coordinator.Service) {
	provider := svc.Fabric().Cloud().Name()
	coordination := "DISABLED (every acquire allows)"
	if svc.Settings().Coordination.Enabled {
		coordination = "ENABLED"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                    SWARM COORDINATOR SERVER                       ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  File locks, heartbeats, and tiered memory for AI swarms.         ║
║  Coordination: %-50s ║
║  Cloud tier:   %-50s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Liveness                                                  │  ║
║  │ curl http://localhost:%d/v1/swarm/health                  │  ║
║  │                                                             │  ║
║  │ # Full coordination status                                  │  ║
║  │ curl http://localhost:%d/v1/swarm/status | jq             │  ║
║  │                                                             │  ║
║  │ # Claim a file                                              │  ║
║  │ curl -X POST http://localhost:%d/v1/swarm/locks/acquire \ │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"file_path": "a.go", "instance_id": "inst-1"}'       │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Locks: /locks, /locks/acquire, /locks/release               ║
║  ├── Liveness: /heartbeats, /heartbeats/beat                     ║
║  ├── Memory: /recall, /records, /extract, /sync                  ║
║  └── Diagnostics: /health, /status, /metrics                     ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, coordination, provider, port, port, port)
}
