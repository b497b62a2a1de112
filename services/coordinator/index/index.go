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
Package index maintains a BadgerDB keyword index over the memory graph.

The index is derived state: every posting can be recomputed from the
graph log with Rebuild, so losing or deleting .swarm/index/ costs a
rebuild, never data. That is also why index trouble never appears in
fabric health.

Key layout:

	rec:<seq>          record JSON, seq is a zero-padded insertion number
	id:<record-id>     seq bytes, for idempotent re-adds
	kw:<term>:<seq>    empty, one posting per term per record

Sequence numbers order postings, so a reverse scan yields newest-first
results without timestamps in keys.

License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
*/
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianSwarm/services/coordinator/config"
	"github.com/AleutianAI/AleutianSwarm/services/coordinator/fabric"
)

const (
	recKeyPrefix = "rec:"
	idKeyPrefix  = "id:"
	kwKeyPrefix  = "kw:"

	// minTermLength drops single-rune tokens that index nothing useful.
	minTermLength = 2
)

// Config configures an Index.
type Config struct {
	// ProjectRoot is the working-copy root that owns .swarm/.
	ProjectRoot string

	// InMemory opens the database without disk persistence.
	InMemory bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC; in-memory databases never run it.
	GCInterval time.Duration
}

// Index is a keyword index over memory records.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions carry the isolation.
type Index struct {
	db     *badger.DB
	seqNum atomic.Uint64

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens the index database under .swarm/index/.
//
// # Description
//
// Creates the directory if needed and restores the insertion sequence
// from the highest existing record key. Sync writes stay off: the
// index is rebuildable, so durability is not worth the write latency.
//
// # Inputs
//
//   - cfg: Database configuration.
//
// # Outputs
//
//   - *Index: The opened index. Caller must Close it.
//   - error: Non-nil if the database cannot be opened.
func Open(cfg Config) (*Index, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir := config.NewPaths(cfg.ProjectRoot).IndexDir()
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("index: create directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithSyncWrites(false).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("index: open badger: %w", err)
	}

	ix := &Index{db: db}
	if err := ix.initSeqNum(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: restore sequence: %w", err)
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ix.gcStop = make(chan struct{})
		ix.gcDone = make(chan struct{})
		go ix.runGC(cfg.GCInterval)
	}
	return ix, nil
}

// Close stops garbage collection and closes the database.
func (ix *Index) Close() error {
	if ix.gcStop != nil {
		close(ix.gcStop)
		<-ix.gcDone
	}
	return ix.db.Close()
}

// Add indexes one record.
//
// # Description
//
// Idempotent on record ID: a record already present leaves the index
// untouched, so replaying an append stream cannot duplicate postings.
//
// # Inputs
//
//   - rec: The record to index. Must carry an ID.
//
// # Outputs
//
//   - error: Non-nil on a write failure or a missing ID.
func (ix *Index) Add(rec fabric.Record) error {
	if rec.ID == "" {
		return errors.New("index: record has no id")
	}
	return ix.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(idKeyPrefix + rec.ID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return ix.writeRecord(txn, rec, ix.seqNum.Add(1))
	})
}

// Rebuild replaces the whole index from the graph log.
//
// # Description
//
// Drops every key, then replays the log in append order. Corrupt graph
// lines are skipped by the scan, so a rebuild always succeeds on
// whatever part of the log is readable.
//
// # Inputs
//
//   - ctx: Checked between records; cancellation abandons the rebuild.
//   - fab: The fabric whose graph log feeds the index.
//
// # Outputs
//
//   - int: Records indexed.
//   - error: Non-nil if the drop, scan, or any write fails.
func (ix *Index) Rebuild(ctx context.Context, fab *fabric.Fabric) (int, error) {
	if err := ix.db.DropAll(); err != nil {
		return 0, fmt.Errorf("index: drop: %w", err)
	}
	ix.seqNum.Store(0)

	indexed := 0
	var writeErr error
	stats, err := fab.Scan(func(rec fabric.Record) {
		if writeErr != nil || ctx.Err() != nil {
			return
		}
		err := ix.db.Update(func(txn *badger.Txn) error {
			return ix.writeRecord(txn, rec, ix.seqNum.Add(1))
		})
		if err != nil {
			writeErr = err
			return
		}
		indexed++
	})
	if err != nil {
		return indexed, fmt.Errorf("index: scan graph: %w", err)
	}
	if writeErr != nil {
		return indexed, fmt.Errorf("index: write record: %w", writeErr)
	}
	if err := ctx.Err(); err != nil {
		return indexed, err
	}

	slog.Debug("index.rebuild: replayed graph log",
		"indexed", indexed,
		"corrupt_lines", stats.Corrupt)
	return indexed, nil
}

// Search returns records matching every term in query, newest first.
//
// # Description
//
// The query is tokenized the same way record content is indexed. With
// no usable terms the newest records are returned as a browse. Multi-
// term queries intersect: the first term's postings are walked newest
// first and each hit is kept only if every other term also posted it.
//
// # Inputs
//
//   - ctx: Checked between postings.
//   - query: Free-text query; case-insensitive.
//   - limit: Maximum results; <= 0 means no limit.
//
// # Outputs
//
//   - []fabric.Record: Matches, newest first. Never nil on success.
//   - error: Non-nil on a read failure.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]fabric.Record, error) {
	terms := tokenize(query)

	out := []fabric.Record{}
	err := ix.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// The first term's postings drive the walk; the rest filter.
		prefix := []byte(recKeyPrefix)
		var rest []string
		if len(terms) > 0 {
			prefix = []byte(kwKeyPrefix + terms[0] + ":")
			rest = terms[1:]
		}

		// Reverse iteration needs a seek past the last possible key.
		seekKey := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			key := it.Item().Key()
			seq := string(key[len(prefix):])

			if !termsPostSeq(txn, rest, seq) {
				continue
			}

			rec, err := loadRecord(txn, seq)
			if err != nil {
				return err
			}
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return out, nil
}

// Count returns how many records are indexed.
func (ix *Index) Count() (int, error) {
	n := 0
	err := ix.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// writeRecord stores the record body, the id marker, and one posting
// per term within the caller's transaction.
func (ix *Index) writeRecord(txn *badger.Txn, rec fabric.Record, seq uint64) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	seqStr := fmt.Sprintf("%016d", seq)
	if err := txn.Set([]byte(recKeyPrefix+seqStr), body); err != nil {
		return err
	}
	if err := txn.Set([]byte(idKeyPrefix+rec.ID), []byte(seqStr)); err != nil {
		return err
	}

	for _, term := range recordTerms(rec) {
		if err := txn.Set([]byte(kwKeyPrefix+term+":"+seqStr), nil); err != nil {
			return err
		}
	}
	return nil
}

// initSeqNum restores the insertion counter from the highest record key.
func (ix *Index) initSeqNum() error {
	return ix.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recKeyPrefix)
		seekKey := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)

		it.Seek(seekKey)
		if it.ValidForPrefix(prefix) {
			key := it.Item().Key()
			var seq uint64
			if _, err := fmt.Sscanf(string(key[len(prefix):]), "%016d", &seq); err == nil {
				ix.seqNum.Store(seq)
			}
		}
		return nil
	})
}

// runGC triggers value log garbage collection on a ticker until Close.
func (ix *Index) runGC(interval time.Duration) {
	defer close(ix.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ix.gcStop:
			return
		case <-ticker.C:
			err := ix.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("index.gc: value log GC failed", "error", err)
			}
		}
	}
}

// termsPostSeq reports whether every term has a posting for seq.
func termsPostSeq(txn *badger.Txn, terms []string, seq string) bool {
	for _, term := range terms {
		if _, err := txn.Get([]byte(kwKeyPrefix + term + ":" + seq)); err != nil {
			return false
		}
	}
	return true
}

// loadRecord reads and decodes the record stored at seq.
func loadRecord(txn *badger.Txn, seq string) (fabric.Record, error) {
	item, err := txn.Get([]byte(recKeyPrefix + seq))
	if err != nil {
		return fabric.Record{}, err
	}
	var rec fabric.Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

// recordTerms collects the distinct index terms for a record: its
// content plus kind and category, so "decision" or "database" work as
// queries too.
func recordTerms(rec fabric.Record) []string {
	joined := strings.Join([]string{rec.Content, string(rec.Kind), rec.Category}, " ")
	return tokenize(joined)
}

// tokenize lowercases and splits text into distinct alphanumeric terms,
// dropping anything shorter than minTermLength.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	var terms []string
	for _, w := range words {
		if len([]rune(w)) < minTermLength || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}

// badgerLogger adapts slog to BadgerDB's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
