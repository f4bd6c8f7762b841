// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history stores completed benchmark runs in BadgerDB.
//
// Key layout:
//
//	run/<started-unix-nano>/<id>          -> JSON run record
//	id/<id>                               -> run key
//	fp/<fingerprint>/<started-unix-nano>/<id> -> run key
//
// Zero-padded timestamps make lexical key order chronological, so the
// newest run is found with a single reverse seek.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/jsonbench/services/bench/result"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound is returned when no stored run matches.
	ErrNotFound = errors.New("run not found")

	// ErrInvalidRun is returned when a run cannot be stored.
	ErrInvalidRun = errors.New("invalid run")
)

const (
	prefixRun         = "run/"
	prefixID          = "id/"
	prefixFingerprint = "fp/"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config holds configuration for a history store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the store in RAM. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// MaxRuns prunes the oldest runs beyond this count after each Save.
	// Zero keeps everything.
	MaxRuns int

	// GCInterval runs value log GC periodically on persistent stores.
	// Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before GC rewrites.
	GCDiscardRatio float64

	// Logger receives badger's own logging when set.
	Logger *slog.Logger
}

// DefaultConfig returns durable defaults for the directory at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		MaxRuns:        1000,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
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

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store is a run history backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use. Badger serializes conflicting
// transactions.
type Store struct {
	db      *badger.DB
	maxRuns int
	gc      *gcRunner
	logger  *slog.Logger
}

// Open opens or creates a history store.
//
// Description:
//
//	Creates the directory for persistent stores. Starts value log GC when
//	GCInterval is set and the store is on disk.
//
// Outputs:
//   - *Store: Caller must Close it.
//   - error: Non-nil if Path is missing or badger cannot open. Badger
//     holds a directory lock, so a second process opening the same
//     path fails here.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("history path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	s := &Store{db: db, maxRuns: cfg.MaxRuns, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.start()
	}
	return s, nil
}

// OpenInMemory opens an in-memory store.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// Save stores run and its indexes.
//
// Inputs:
//   - run: Must have an ID and a StartedAt time.
//
// Outputs:
//   - error: ErrInvalidRun, or a storage error.
func (s *Store) Save(ctx context.Context, run *result.Run) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if run == nil || run.ID == "" || run.StartedAt.IsZero() {
		return fmt.Errorf("%w: id and start time are required", ErrInvalidRun)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	rk := runKey(run)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(rk, data); err != nil {
			return err
		}
		if err := txn.Set(idKey(run.ID), rk); err != nil {
			return err
		}
		if run.Corpus.Fingerprint != "" {
			return txn.Set(fingerprintKey(run), rk)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	if s.maxRuns > 0 {
		if _, err := s.Prune(ctx, s.maxRuns); err != nil {
			s.logger.Warn("history prune failed", "error", err)
		}
	}
	return nil
}

// Get returns the run with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*result.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var run *result.Run
	err := s.db.View(func(txn *badger.Txn) error {
		rk, err := getValue(txn, idKey(id))
		if err != nil {
			return err
		}
		run, err = loadRun(txn, rk)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
// Samples are dropped from listed runs.
func (s *Store) List(ctx context.Context, limit int) ([]*result.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var runs []*result.Run
	err := s.db.View(func(txn *badger.Txn) error {
		return reverseScan(txn, []byte(prefixRun), func(item *badger.Item) (bool, error) {
			var run result.Run
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return false, fmt.Errorf("decode run %s: %w", item.Key(), err)
			}
			runs = append(runs, run.WithoutSamples())
			return limit <= 0 || len(runs) < limit, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Latest returns the newest run over the corpus with fingerprint,
// ignoring the run with ID exclude.
func (s *Store) Latest(ctx context.Context, fingerprint, exclude string) (*result.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if fingerprint == "" {
		return nil, ErrNotFound
	}

	var run *result.Run
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixFingerprint + fingerprint + "/")
		var rk []byte
		err := reverseScan(txn, prefix, func(item *badger.Item) (bool, error) {
			val, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}
			if exclude != "" && idFromRunKey(val) == exclude {
				return true, nil
			}
			rk = val
			return false, nil
		})
		if err != nil {
			return err
		}
		if rk == nil {
			return ErrNotFound
		}
		run, err = loadRun(txn, rk)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixRun)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Prune deletes the oldest runs so at most keep remain.
//
// Outputs:
//   - int: Number of runs deleted.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}
	if keep < 0 {
		keep = 0
	}

	var victims []*result.Run
	err := s.db.View(func(txn *badger.Txn) error {
		seen := 0
		return reverseScan(txn, []byte(prefixRun), func(item *badger.Item) (bool, error) {
			seen++
			if seen <= keep {
				return true, nil
			}
			var run result.Run
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return false, err
			}
			victims = append(victims, &run)
			return true, nil
		})
	})
	if err != nil || len(victims) == 0 {
		return 0, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, run := range victims {
			keys := [][]byte{runKey(run), idKey(run.ID)}
			if run.Corpus.Fingerprint != "" {
				keys = append(keys, fingerprintKey(run))
			}
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return len(victims), nil
}

// -----------------------------------------------------------------------------
// Keys and scans
// -----------------------------------------------------------------------------

func stamp(run *result.Run) string {
	return fmt.Sprintf("%020d", run.StartedAt.UnixNano())
}

func runKey(run *result.Run) []byte {
	return []byte(prefixRun + stamp(run) + "/" + run.ID)
}

func idKey(id string) []byte {
	return []byte(prefixID + id)
}

func fingerprintKey(run *result.Run) []byte {
	return []byte(prefixFingerprint + run.Corpus.Fingerprint + "/" + stamp(run) + "/" + run.ID)
}

// idFromRunKey extracts the ID from run/<stamp>/<id>.
func idFromRunKey(rk []byte) string {
	const skip = len(prefixRun) + 20 + 1
	if len(rk) <= skip {
		return ""
	}
	return string(rk[skip:])
}

func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func loadRun(txn *badger.Txn, rk []byte) (*result.Run, error) {
	data, err := getValue(txn, rk)
	if err != nil {
		return nil, err
	}
	var run result.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}

// reverseScan visits keys under prefix from newest to oldest until fn
// returns false or an error.
func reverseScan(txn *badger.Txn, prefix []byte, fn func(*badger.Item) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xFF)
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		more, err := fn(it.Item())
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Value log GC
// -----------------------------------------------------------------------------

type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (r *gcRunner) start() {
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				err := r.db.RunValueLogGC(r.ratio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					r.logger.Warn("history value log GC error", "error", err)
				}
			}
		}
	}()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}
