// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists runs, their tries and the polyglots they found.
//
// Layout:
//
//	run:{id}              JSON Run
//	run:{id}:try:{%06d}   JSON runner.TryRecord
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/polygen/services/polygen/config"
	"github.com/AleutianAI/polygen/services/polygen/runner"
	pgbadger "github.com/AleutianAI/polygen/services/polygen/storage/badger"
)

var (
	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished is returned when a finished run is written to again.
	ErrRunFinished = errors.New("run already finished")
)

const runPrefix = "run:"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Run is the stored header of one run.
type Run struct {
	ID         string           `json:"id"`
	Status     Status           `json:"status"`
	Config     config.RunConfig `json:"config"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Report     *runner.Report   `json:"report,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Option configures a RunStore.
type Option func(*RunStore)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *RunStore) {
		s.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *RunStore) {
		s.now = now
	}
}

// RunStore keeps runs in BadgerDB. It implements runner.Recorder.
//
// Thread Safety: Safe for concurrent use.
type RunStore struct {
	db     *pgbadger.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ runner.Recorder = (*RunStore)(nil)

// New wraps an open database. The caller keeps ownership of db.
func New(db *pgbadger.DB, opts ...Option) *RunStore {
	s := &RunStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

func tryPrefix(id string) []byte {
	return []byte(runPrefix + id + ":try:")
}

func tryKey(id string, try int) []byte {
	return []byte(fmt.Sprintf("%s%s:try:%06d", runPrefix, id, try))
}

// BeginRun stores a new running run and returns its id.
func (s *RunStore) BeginRun(ctx context.Context, cfg config.RunConfig) (string, error) {
	run := Run{
		ID:        uuid.New().String(),
		Status:    StatusRunning,
		Config:    cfg,
		StartedAt: s.now().UTC(),
	}
	err := s.db.Update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, runKey(run.ID), run)
	})
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	s.logger.Debug("run started", slog.String("run_id", run.ID))
	return run.ID, nil
}

// RecordTry stores one try of a running run.
func (s *RunStore) RecordTry(ctx context.Context, runID string, rec runner.TryRecord) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		run, err := getRun(txn, runID)
		if err != nil {
			return err
		}
		if run.Status != StatusRunning {
			return fmt.Errorf("%w: %s", ErrRunFinished, runID)
		}
		return putJSON(txn, tryKey(runID, rec.Try), rec)
	})
}

// FinishRun stores the final report. A non-nil runErr marks the run failed.
func (s *RunStore) FinishRun(ctx context.Context, report runner.Report, runErr error) error {
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		run, err := getRun(txn, report.RunID)
		if err != nil {
			return err
		}
		if run.Status != StatusRunning {
			return fmt.Errorf("%w: %s", ErrRunFinished, report.RunID)
		}
		finished := s.now().UTC()
		run.FinishedAt = &finished
		run.Report = &report
		run.Status = StatusFinished
		if runErr != nil {
			run.Status = StatusFailed
			run.Error = runErr.Error()
		}
		return putJSON(txn, runKey(run.ID), run)
	})
}

// GetRun returns one run.
func (s *RunStore) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		var err error
		run, err = getRun(txn, id)
		return err
	})
	return run, err
}

// ListRuns returns every run, newest first.
func (s *RunStore) ListRuns(ctx context.Context) ([]Run, error) {
	runs := []Run{}
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(runPrefix), PrefetchValues: true, PrefetchSize: 64})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if strings.Contains(string(item.Key()), ":try:") {
				continue
			}
			var run Run
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &run) }); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// Tries returns the tries of a run in order.
func (s *RunStore) Tries(ctx context.Context, runID string) ([]runner.TryRecord, error) {
	tries := []runner.TryRecord{}
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		if _, err := getRun(txn, runID); err != nil {
			return err
		}
		it := txn.NewIterator(badger.IteratorOptions{Prefix: tryPrefix(runID), PrefetchValues: true, PrefetchSize: 64})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec runner.TryRecord
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			tries = append(tries, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tries, nil
}

// Polyglots returns the distinct payloads found by a run, in the order
// they were first found.
func (s *RunStore) Polyglots(ctx context.Context, runID string) ([]string, error) {
	tries, err := s.Tries(ctx, runID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, t := range tries {
		if !t.Found {
			continue
		}
		if _, dup := seen[t.Payload]; dup {
			continue
		}
		seen[t.Payload] = struct{}{}
		out = append(out, t.Payload)
	}
	return out, nil
}

func getRun(txn *badger.Txn, id string) (Run, error) {
	var run Run
	item, err := txn.Get(runKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return run, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return run, err
	}
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &run)
	})
	return run, err
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}
