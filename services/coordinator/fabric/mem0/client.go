// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mem0 is the tier-2 memory backend backed by the mem0 REST API.
//
// The API key never sits in plain process memory: it is sealed in a
// memguard enclave at construction and opened only for the lifetime of
// a single request header. Pushes are rate limited client-side because
// a busy drain cycle can settle dozens of records in one pass and the
// upstream quota is per key, shared by every instance in the project.
package mem0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
)

const (
	defaultBaseURL = "https://api.mem0.ai"

	// secretPath is the fallback credential location for container
	// deployments that mount secrets instead of setting env vars.
	secretPath = "/run/secrets/mem0_api_key"

	// pushRate and pushBurst bound outbound calls. Two per second with
	// a burst of four keeps a full drain batch under the shared quota.
	pushRate  = rate.Limit(2)
	pushBurst = 4

	requestTimeout = 30 * time.Second
)

// memguardOnce installs the interrupt handler that wipes enclaves on
// SIGINT/SIGTERM, once per process.
var memguardOnce sync.Once

// --- Wire types ---

type memoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type memoryRequest struct {
	Messages    []memoryMessage   `json:"messages"`
	UserID      string            `json:"user_id"`
	AgentID     string            `json:"agent_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	EnableGraph bool              `json:"enable_graph"`
	AsyncMode   bool              `json:"async_mode"`
}

// exportRequest matches the export API's filter contract: conditions
// always arrive wrapped in an AND list, even when there is only one.
type exportRequest struct {
	Schema  json.RawMessage `json:"schema,omitempty"`
	Filters exportFilters   `json:"filters"`
}

type exportFilters struct {
	And []map[string]string `json:"AND"`
}

type exportCreateResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// --- Client ---

// Config configures a Client.
type Config struct {
	// APIKey overrides the MEM0_API_KEY env var and the mounted secret.
	APIKey string

	// BaseURL overrides the mem0 endpoint. Tests point this at httptest.
	BaseURL string

	// Project names the memory namespace; records land under the
	// "<project>-decisions" user id so one mem0 account can serve many
	// repositories.
	Project string

	// AgentID attributes pushes to one assistant instance.
	AgentID string

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client pushes memory records to mem0. Implements fabric.CloudTier.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	key        *memguard.Enclave
	userID     string
	agentID    string
	limiter    *rate.Limiter
}

// NewClient creates a mem0 client.
//
// The credential is resolved from Config.APIKey, then MEM0_API_KEY,
// then the mounted secret file. A client without a credential is still
// valid: Configured reports false and every Push refuses politely,
// which is how local-only projects run.
func NewClient(cfg Config) *Client {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("MEM0_API_KEY"))
	}
	if key == "" {
		if content, err := os.ReadFile(secretPath); err == nil {
			key = strings.TrimSpace(string(content))
			slog.Info("mem0: read API key from mounted secret")
		}
	}

	var enclave *memguard.Enclave
	if key != "" {
		memguardOnce.Do(memguard.CatchInterrupt)
		enclave = memguard.NewEnclave([]byte(key))
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	project := cfg.Project
	if project == "" {
		project = "swarm"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		key:        enclave,
		userID:     project + "-decisions",
		agentID:    cfg.AgentID,
		limiter:    rate.NewLimiter(pushRate, pushBurst),
	}
}

// Name implements fabric.CloudTier.
func (c *Client) Name() string { return "mem0" }

// Configured implements fabric.CloudTier.
func (c *Client) Configured() bool { return c.key != nil }

// Push implements fabric.CloudTier.
//
// Submits one record as an async mem0 memory with graph extraction
// enabled. Any 2xx counts as durable: async mode acknowledges with 202
// once the record is accepted into mem0's own queue.
func (c *Client) Push(ctx context.Context, rec fabric.Record) error {
	if !c.Configured() {
		return fabric.ErrCloudUnconfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mem0: rate limiter: %w", err)
	}

	payload := memoryRequest{
		Messages: []memoryMessage{{Role: "user", Content: rec.Content}},
		UserID:   c.userID,
		AgentID:  c.agentID,
		Metadata: map[string]string{
			"kind":      string(rec.Kind),
			"category":  rec.Category,
			"record_id": rec.ID,
		},
		EnableGraph: true,
		AsyncMode:   true,
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/memories/", payload)
	if err != nil {
		return err
	}
	slog.Debug("mem0: pushed record",
		"record_id", rec.ID,
		"kind", rec.Kind,
		"response_length", len(body))
	return nil
}

// CreateExport asks mem0 to build a structured export of this
// project's memories. Returns the export job id.
func (c *Client) CreateExport(ctx context.Context, schema json.RawMessage) (string, error) {
	if !c.Configured() {
		return "", fabric.ErrCloudUnconfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("mem0: rate limiter: %w", err)
	}

	if len(schema) == 0 {
		schema = json.RawMessage(`{"format":"json"}`)
	}
	body, err := c.do(ctx, http.MethodPost, "/v1/exports/", exportRequest{
		Schema:  schema,
		Filters: filtersForUser(c.userID),
	})
	if err != nil {
		return "", err
	}

	var resp exportCreateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("mem0: parse export response: %w", err)
	}
	return resp.ID, nil
}

// GetExport fetches the most recent finished export for this project.
// The payload shape is caller-defined via the schema passed to
// CreateExport, so it comes back raw.
func (c *Client) GetExport(ctx context.Context) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, fabric.ErrCloudUnconfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("mem0: rate limiter: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/exports/get", exportRequest{
		Filters: filtersForUser(c.userID),
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// filtersForUser scopes an export to this project's memory namespace.
func filtersForUser(userID string) exportFilters {
	return exportFilters{And: []map[string]string{{"user_id": userID}}}
}

// do sends one authenticated JSON request and returns the response body.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mem0: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("mem0: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// The key exists in plaintext only between here and the end of the
	// round trip.
	keyBuf, err := c.key.Open()
	if err != nil {
		return nil, fmt.Errorf("mem0: open credential: %w", err)
	}
	defer keyBuf.Destroy()
	req.Header.Set("Authorization", "Token "+keyBuf.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mem0: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mem0: API returned status %d: %s",
			resp.StatusCode, string(body))
	}
	return body, nil
}
