// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mem0

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
)

// ===== TEST HELPERS =====

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Project: "myproj",
		AgentID: "alpha",
	})
}

type capturedRequest struct {
	method  string
	path    string
	auth    string
	content string
	body    []byte
}

// captureServer records the last request and answers with the given
// status and body.
func captureServer(t *testing.T, status int, respBody string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		captured.content = r.Header.Get("Content-Type")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body: %v", err)
		}
		captured.body = body
		w.WriteHeader(status)
		w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func sampleRecord() fabric.Record {
	return fabric.Record{
		ID:       "rec-42",
		Kind:     fabric.KindDecision,
		Category: "database",
		Content:  "store the search index in badger",
	}
}

// ===== CONFIGURATION TESTS =====

func TestNewClient_Unconfigured(t *testing.T) {
	t.Setenv("MEM0_API_KEY", "")
	c := NewClient(Config{Project: "myproj"})

	if c.Configured() {
		t.Fatal("client without a credential must not report configured")
	}
	if err := c.Push(context.Background(), sampleRecord()); !errors.Is(err, fabric.ErrCloudUnconfigured) {
		t.Errorf("Push error = %v, want ErrCloudUnconfigured", err)
	}
	if _, err := c.CreateExport(context.Background(), nil); !errors.Is(err, fabric.ErrCloudUnconfigured) {
		t.Errorf("CreateExport error = %v, want ErrCloudUnconfigured", err)
	}
	if _, err := c.GetExport(context.Background()); !errors.Is(err, fabric.ErrCloudUnconfigured) {
		t.Errorf("GetExport error = %v, want ErrCloudUnconfigured", err)
	}
}

func TestNewClient_EnvCredential(t *testing.T) {
	t.Setenv("MEM0_API_KEY", "from-env")
	if !NewClient(Config{}).Configured() {
		t.Error("MEM0_API_KEY should configure the client")
	}
}

func TestNewClient_ExplicitKeyWinsOverEnv(t *testing.T) {
	t.Setenv("MEM0_API_KEY", "from-env")
	srv, captured := captureServer(t, http.StatusOK, `{}`)
	c := NewClient(Config{APIKey: "explicit", BaseURL: srv.URL, Project: "p"})

	if err := c.Push(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if captured.auth != "Token explicit" {
		t.Errorf("Authorization = %q, want the explicit key", captured.auth)
	}
}

func TestName(t *testing.T) {
	if got := NewClient(Config{}).Name(); got != "mem0" {
		t.Errorf("Name() = %q", got)
	}
}

// ===== PUSH TESTS =====

func TestPush_SendsExpectedPayload(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK, `{"message":"ok"}`)
	c := newTestClient(t, srv.URL)

	if err := c.Push(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if captured.method != http.MethodPost {
		t.Errorf("method = %s, want POST", captured.method)
	}
	if captured.path != "/v1/memories/" {
		t.Errorf("path = %s, want /v1/memories/", captured.path)
	}
	if captured.auth != "Token test-key" {
		t.Errorf("Authorization = %q, want Token test-key", captured.auth)
	}
	if captured.content != "application/json" {
		t.Errorf("Content-Type = %q", captured.content)
	}

	var payload memoryRequest
	if err := json.Unmarshal(captured.body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v\nbody: %s", err, captured.body)
	}
	if len(payload.Messages) != 1 || payload.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want one user message", payload.Messages)
	}
	if payload.Messages[0].Content != "store the search index in badger" {
		t.Errorf("content = %q", payload.Messages[0].Content)
	}
	if payload.UserID != "myproj-decisions" {
		t.Errorf("user_id = %q, want myproj-decisions", payload.UserID)
	}
	if payload.AgentID != "alpha" {
		t.Errorf("agent_id = %q, want alpha", payload.AgentID)
	}
	if payload.Metadata["kind"] != "decision" ||
		payload.Metadata["category"] != "database" ||
		payload.Metadata["record_id"] != "rec-42" {
		t.Errorf("metadata = %+v", payload.Metadata)
	}
	if !payload.EnableGraph {
		t.Error("enable_graph should be set")
	}
	if !payload.AsyncMode {
		t.Error("async_mode should be set")
	}
}

func TestPush_AsyncAcceptedIsDurable(t *testing.T) {
	srv, _ := captureServer(t, http.StatusAccepted, `{"message":"queued"}`)
	c := newTestClient(t, srv.URL)

	if err := c.Push(context.Background(), sampleRecord()); err != nil {
		t.Errorf("202 should count as accepted, got: %v", err)
	}
}

func TestPush_SurfacesAPIError(t *testing.T) {
	srv, _ := captureServer(t, http.StatusUnauthorized, `{"detail":"invalid token"}`)
	c := newTestClient(t, srv.URL)

	err := c.Push(context.Background(), sampleRecord())
	if err == nil {
		t.Fatal("Push should fail on a 401")
	}
	if errors.Is(err, fabric.ErrCloudUnconfigured) {
		t.Error("an API failure is not the unconfigured case")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid token") {
		t.Errorf("error %q should carry status and body", err)
	}
}

func TestPush_CanceledContext(t *testing.T) {
	srv, _ := captureServer(t, http.StatusOK, `{}`)
	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Push(ctx, sampleRecord()); err == nil {
		t.Error("Push with a canceled context should fail")
	}
}

// ===== EXPORT TESTS =====

func TestCreateExport_ReturnsJobID(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK, `{"id":"exp-123","message":"queued"}`)
	c := newTestClient(t, srv.URL)

	schema := json.RawMessage(`{"decisions":{"type":"array"}}`)
	id, err := c.CreateExport(context.Background(), schema)
	if err != nil {
		t.Fatalf("CreateExport: %v", err)
	}
	if id != "exp-123" {
		t.Errorf("export id = %q, want exp-123", id)
	}
	if captured.path != "/v1/exports/" {
		t.Errorf("path = %s, want /v1/exports/", captured.path)
	}
	if !strings.Contains(string(captured.body), `"decisions"`) {
		t.Errorf("schema not forwarded: %s", captured.body)
	}

	// The export API wants conditions wrapped in an AND list.
	var req struct {
		Filters struct {
			And []map[string]string `json:"AND"`
		} `json:"filters"`
	}
	if err := json.Unmarshal(captured.body, &req); err != nil {
		t.Fatalf("parse captured body: %v", err)
	}
	if len(req.Filters.And) != 1 || req.Filters.And[0]["user_id"] != "myproj-decisions" {
		t.Errorf("filters = %+v, want AND user_id myproj-decisions", req.Filters)
	}
}

func TestGetExport_ReturnsRawPayload(t *testing.T) {
	want := `{"decisions":[{"content":"use badger"}]}`
	srv, captured := captureServer(t, http.StatusOK, want)
	c := newTestClient(t, srv.URL)

	raw, err := c.GetExport(context.Background())
	if err != nil {
		t.Fatalf("GetExport: %v", err)
	}
	if string(raw) != want {
		t.Errorf("payload = %s, want %s", raw, want)
	}
	if captured.path != "/v1/exports/get" {
		t.Errorf("path = %s, want /v1/exports/get", captured.path)
	}
}
