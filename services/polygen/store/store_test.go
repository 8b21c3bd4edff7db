// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/polygen/services/polygen/budget"
	"github.com/AleutianAI/polygen/services/polygen/config"
	"github.com/AleutianAI/polygen/services/polygen/oracle"
	"github.com/AleutianAI/polygen/services/polygen/runner"
	"github.com/AleutianAI/polygen/services/polygen/score"
	pgbadger "github.com/AleutianAI/polygen/services/polygen/storage/badger"
	"github.com/AleutianAI/polygen/services/polygen/strategy"
)

// onePayload always proposes "x".
type onePayload struct{}

func (onePayload) Name() string { return "one" }

func (onePayload) Run(ctx context.Context, o oracle.Oracle) (strategy.Discovery, error) {
	return strategy.Discovery{Found: true, Payload: "x", Outcome: o.TestAll(ctx, "x"), Calls: 1}, nil
}

// tickingClock advances one minute per call.
func tickingClock() func() time.Time {
	t := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newStore(t *testing.T) *RunStore {
	t.Helper()
	db, err := pgbadger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, WithClock(tickingClock()))
}

func TestRunStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	cfg := config.Default()
	cfg.Strategy = "greedy"
	cfg.CallBudget = budget.Of(77)

	id, err := s.BeginRun(ctx, cfg)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, "greedy", run.Config.Strategy)
	assert.Equal(t, budget.Of(77), run.Config.CallBudget)
	assert.True(t, run.Config.SimulationsPerAction.Unbounded())
	assert.Nil(t, run.FinishedAt)

	for i, rec := range []runner.TryRecord{
		{Found: true, Payload: "<svg onload=x>", Solved: []score.TestID{"a"}, Remaining: 2},
		{Found: false, Remaining: 2},
		{Found: true, Payload: "<svg onload=x>", Remaining: 2},
		{Found: true, Payload: "jAvAsCriPt:x", Solved: []score.TestID{"b"}, Remaining: 1},
	} {
		rec.Try = i + 1
		require.NoError(t, s.RecordTry(ctx, id, rec))
	}

	tries, err := s.Tries(ctx, id)
	require.NoError(t, err)
	require.Len(t, tries, 4)
	assert.Equal(t, 1, tries[0].Try)
	assert.Equal(t, []score.TestID{"a"}, tries[0].Solved)

	polyglots, err := s.Polyglots(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"<svg onload=x>", "jAvAsCriPt:x"}, polyglots)

	report := runner.Report{RunID: id, Strategy: "greedy", Payloads: polyglots, Tries: 4, Remaining: 1}
	require.NoError(t, s.FinishRun(ctx, report, nil))

	run, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.FinishedAt.After(run.StartedAt))
	require.NotNil(t, run.Report)
	assert.Equal(t, 4, run.Report.Tries)

	assert.ErrorIs(t, s.RecordTry(ctx, id, runner.TryRecord{Try: 5}), ErrRunFinished)
	assert.ErrorIs(t, s.FinishRun(ctx, report, nil), ErrRunFinished)
}

func TestRunStore_FailedRun(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, err := s.BeginRun(ctx, config.Default())
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, runner.Report{RunID: id}, errors.New("oracle sanity check failed")))

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "oracle sanity check failed", run.Error)
}

func TestRunStore_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first, err := s.BeginRun(ctx, config.Default())
	require.NoError(t, err)
	second, err := s.BeginRun(ctx, config.Default())
	require.NoError(t, err)
	require.NoError(t, s.RecordTry(ctx, first, runner.TryRecord{Try: 1}))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2, "try records are not listed as runs")
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)
}

func TestRunStore_UnknownRun(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.Tries(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.RecordTry(ctx, "missing", runner.TryRecord{Try: 1}), ErrRunNotFound)
	assert.ErrorIs(t, s.FinishRun(ctx, runner.Report{RunID: "missing"}, nil), ErrRunNotFound)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunStore_RecordsControllerRun(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	id, err := s.BeginRun(ctx, config.Default())
	require.NoError(t, err)

	o, err := oracle.NewTable([]oracle.Test{{ID: "x", Pass: func(p string) bool {
		return p == "x" || p == oracle.ReferencePayload
	}}}, nil)
	require.NoError(t, err)

	c := runner.NewController(o, onePayload{}, runner.WithRecorder(s), runner.WithRunID(id),
		runner.WithSanityRetries(1, time.Millisecond))
	report, err := c.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, report, nil))

	polyglots, err := s.Polyglots(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, polyglots)
}
