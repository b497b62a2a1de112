// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package export builds shareable snapshots of a project's swarm memory.

A snapshot is a single JSON document bundling every graph record with
the health picture at export time, staged under .swarm/exports/ and
optionally uploaded to a GCS bucket. Snapshots exist for people and
offline tooling (audits, migrations, seeding a fresh machine); the
fabric never reads one back.

Unlike the coordination paths, export is an explicit operator action,
so errors surface instead of failing open.
*/
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
)

// snapshotStamp names snapshot files sortably: swarm-memory-<stamp>.json.
const snapshotStamp = "20060102T150405Z"

// DefaultObjectPrefix is where uploaded snapshots land inside a bucket.
const DefaultObjectPrefix = "swarm-exports"

// Snapshot is the exported document.
type Snapshot struct {
	// Project labels which project's memory this is.
	Project string `json:"project"`

	// ExportedAt is when the snapshot was built (UTC).
	ExportedAt time.Time `json:"exported_at"`

	// RecordCount is the number of records bundled below.
	RecordCount int `json:"record_count"`

	// CorruptLines counts graph lines that failed to decode and were
	// left out of Records.
	CorruptLines int `json:"corrupt_lines"`

	// QueueDepth is the tier-2 backlog at export time.
	QueueDepth int `json:"queue_depth"`

	// Health is the fabric's health picture at export time.
	Health fabric.HealthSnapshot `json:"health"`

	// Records is the full graph log, oldest first.
	Records []fabric.Record `json:"records"`
}

// Result describes one completed export run.
type Result struct {
	// Path is the staged snapshot file.
	Path string `json:"path"`

	// RecordCount and CorruptLines mirror the snapshot's counts.
	RecordCount  int `json:"record_count"`
	CorruptLines int `json:"corrupt_lines"`

	// SizeBytes is the staged file's size.
	SizeBytes int64 `json:"size_bytes"`

	// Uploaded reports whether the snapshot reached the bucket.
	// Bucket and ObjectPath are set only when it did.
	Uploaded   bool   `json:"uploaded"`
	Bucket     string `json:"bucket,omitempty"`
	ObjectPath string `json:"object_path,omitempty"`
}

// Config configures an Exporter.
type Config struct {
	// ProjectRoot locates .swarm/. Required.
	ProjectRoot string

	// Fabric supplies records and health. Required.
	Fabric *fabric.Fabric

	// Project labels the snapshot, typically the identity's project
	// slug. Default "swarm".
	Project string

	// Bucket, when set, uploads the staged snapshot to that GCS
	// bucket after writing. Empty means stage locally only.
	Bucket string

	// CredentialsFile is a GCS service-account key file. Empty means
	// ambient credentials (ADC).
	CredentialsFile string

	// ObjectPrefix prefixes uploaded object names.
	// Default DefaultObjectPrefix.
	ObjectPrefix string
}

// objectStore is the slice of bucket behavior the exporter needs.
// Tests swap in a local fake; production uses GCS.
type objectStore interface {
	Upload(ctx context.Context, localPath, objectPath string) error
	Close() error
}

// Exporter stages memory snapshots and ships them to a bucket.
//
// # Thread Safety
//
// Not safe for concurrent use; exports are one-shot operator actions.
type Exporter struct {
	paths   config.Paths
	fabric  *fabric.Fabric
	project string
	bucket  string
	creds   string
	prefix  string

	// store overrides the GCS client when non-nil.
	store objectStore
	now   func() time.Time
}

// NewExporter builds an Exporter.
//
// # Inputs
//
//   - cfg: See Config. ProjectRoot and Fabric are required.
//
// # Outputs
//
//   - *Exporter: Ready to run.
//   - error: Non-nil when a required field is missing.
func NewExporter(cfg Config) (*Exporter, error) {
	if cfg.ProjectRoot == "" {
		return nil, fmt.Errorf("export: project root is required")
	}
	if cfg.Fabric == nil {
		return nil, fmt.Errorf("export: fabric is required")
	}
	project := cfg.Project
	if project == "" {
		project = "swarm"
	}
	prefix := cfg.ObjectPrefix
	if prefix == "" {
		prefix = DefaultObjectPrefix
	}
	return &Exporter{
		paths:   config.NewPaths(cfg.ProjectRoot),
		fabric:  cfg.Fabric,
		project: project,
		bucket:  cfg.Bucket,
		creds:   cfg.CredentialsFile,
		prefix:  prefix,
		now:     time.Now,
	}, nil
}

// BuildSnapshot collects the export document without writing anything.
//
// # Description
//
// Reads the full graph log (corrupt lines are counted, not bundled),
// the queue depth, and a fresh health check. A missing graph log
// yields an empty but valid snapshot.
//
// # Outputs
//
//   - Snapshot: The document.
//   - error: Non-nil when the graph log exists but cannot be read.
func (e *Exporter) BuildSnapshot() (Snapshot, error) {
	records := []fabric.Record{}
	stats, err := e.fabric.Scan(func(rec fabric.Record) {
		records = append(records, rec)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("export: scan graph: %w", err)
	}

	return Snapshot{
		Project:      e.project,
		ExportedAt:   e.now().UTC(),
		RecordCount:  len(records),
		CorruptLines: stats.Corrupt,
		QueueDepth:   e.fabric.QueueDepth(),
		Health:       e.fabric.CheckHealth(),
		Records:      records,
	}, nil
}

// Run builds a snapshot, stages it under .swarm/exports/, and uploads
// it when a bucket is configured.
//
// # Description
//
// The staged file survives regardless of upload outcome, so a failed
// upload can be retried by any copy tool without rebuilding. Object
// names are <prefix>/<project>/swarm-memory-<stamp>.json.
//
// # Inputs
//
//   - ctx: Cancels the upload; staging is local and fast.
//
// # Outputs
//
//   - Result: Where the snapshot landed.
//   - error: Non-nil when staging or upload fails.
func (e *Exporter) Run(ctx context.Context) (Result, error) {
	snap, err := e.BuildSnapshot()
	if err != nil {
		return Result{}, err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("export: encode snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(e.paths.ExportsDir(), 0750); err != nil {
		return Result{}, fmt.Errorf("export: create exports dir: %w", err)
	}
	name := fmt.Sprintf("swarm-memory-%s.json", snap.ExportedAt.Format(snapshotStamp))
	dest := filepath.Join(e.paths.ExportsDir(), name)
	if err := os.WriteFile(dest, data, 0640); err != nil {
		return Result{}, fmt.Errorf("export: write snapshot: %w", err)
	}

	res := Result{
		Path:         dest,
		RecordCount:  snap.RecordCount,
		CorruptLines: snap.CorruptLines,
		SizeBytes:    int64(len(data)),
	}
	slog.Info("export.run: snapshot staged",
		"path", dest,
		"records", res.RecordCount,
		"corrupt_lines", res.CorruptLines)

	if e.bucket == "" {
		return res, nil
	}

	object := path.Join(e.prefix, e.project, name)
	if err := e.upload(ctx, dest, object); err != nil {
		return res, err
	}
	res.Uploaded = true
	res.Bucket = e.bucket
	res.ObjectPath = object
	slog.Info("export.run: snapshot uploaded",
		"bucket", e.bucket,
		"object", object)
	return res, nil
}

func (e *Exporter) upload(ctx context.Context, localPath, objectPath string) error {
	store := e.store
	if store == nil {
		dialed, err := dialBucket(ctx, e.bucket, e.creds)
		if err != nil {
			return err
		}
		defer dialed.Close()
		store = dialed
	}
	return store.Upload(ctx, localPath, objectPath)
}

// bucketClient ships staged snapshots to a GCS bucket.
type bucketClient struct {
	client *storage.Client
	bucket string
}

func dialBucket(ctx context.Context, bucket, credentialsFile string) (*bucketClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("export: credentials file %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("export: dial gcs: %w", err)
	}
	return &bucketClient{client: client, bucket: bucket}, nil
}

func (b *bucketClient) Upload(ctx context.Context, localPath, objectPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("export: open snapshot %s: %w", localPath, err)
	}
	defer f.Close()

	w := b.client.Bucket(b.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("export: copy %s to gs://%s/%s: %w", localPath, b.bucket, objectPath, err)
	}
	// The object does not exist until Close returns nil.
	if err := w.Close(); err != nil {
		return fmt.Errorf("export: finalize gs://%s/%s: %w", b.bucket, objectPath, err)
	}
	return nil
}

func (b *bucketClient) Close() error {
	return b.client.Close()
}
