// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner drives repeated strategy invocations until every test is
// solved or the try limit is reached.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/polygen/services/polygen/oracle"
	"github.com/AleutianAI/polygen/services/polygen/score"
	"github.com/AleutianAI/polygen/services/polygen/strategy"
)

// ErrSanityCheckFailed is returned when the oracle never passes its sanity
// check.
var ErrSanityCheckFailed = errors.New("oracle sanity check failed")

const (
	// DefaultMaxTries is the default number of strategy invocations.
	DefaultMaxTries = 10

	// DefaultSanityAttempts is how often the sanity check is tried.
	DefaultSanityAttempts = 10

	// DefaultSanityDelay is the pause between sanity attempts.
	DefaultSanityDelay = time.Second
)

// TryRecord describes one strategy invocation.
type TryRecord struct {
	Try       int            `json:"try"`
	Strategy  string         `json:"strategy"`
	Found     bool           `json:"found"`
	Payload   string         `json:"payload,omitempty"`
	Tokens    []int          `json:"tokens,omitempty"`
	Outcome   string         `json:"outcome,omitempty"`
	Solved    []score.TestID `json:"solved,omitempty"`
	Remaining int            `json:"remaining"`
	Calls     int64          `json:"calls"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
}

// Recorder persists try records.
type Recorder interface {
	RecordTry(ctx context.Context, runID string, rec TryRecord) error
}

// Report summarizes a run.
type Report struct {
	RunID    string `json:"run_id"`
	Strategy string `json:"strategy"`

	// Payloads are the distinct payloads found, in discovery order.
	Payloads []string `json:"payloads"`

	Tries     int            `json:"tries"`
	Remaining int            `json:"remaining"`
	Available int            `json:"available"`
	Retired   []score.TestID `json:"retired"`
	Calls     int64          `json:"calls"`
	Duration  time.Duration  `json:"duration"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxTries sets the maximum number of strategy invocations.
func WithMaxTries(n int) Option {
	return func(c *Controller) {
		c.maxTries = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRecorder sets where try records are written.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithSanityRetries sets how often the sanity check is attempted and the
// pause between attempts.
func WithSanityRetries(attempts int, delay time.Duration) Option {
	return func(c *Controller) {
		c.sanityAttempts = attempts
		c.sanityDelay = delay
	}
}

// WithRunID sets the run id. Without it a random UUID is used.
func WithRunID(id string) Option {
	return func(c *Controller) {
		c.runID = id
	}
}

// Controller runs a strategy repeatedly, retiring the tests each found
// payload solves.
//
// Thread Safety: Not safe for concurrent use. One Run per Controller.
type Controller struct {
	oracle         oracle.Oracle
	strategy       strategy.Strategy
	maxTries       int
	sanityAttempts int
	sanityDelay    time.Duration
	logger         *slog.Logger
	recorder       Recorder
	runID          string
}

// NewController creates a controller.
func NewController(o oracle.Oracle, s strategy.Strategy, opts ...Option) *Controller {
	c := &Controller{
		oracle:         o,
		strategy:       s,
		maxTries:       DefaultMaxTries,
		sanityAttempts: DefaultSanityAttempts,
		sanityDelay:    DefaultSanityDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.runID == "" {
		c.runID = uuid.New().String()
	}
	return c
}

// RunID returns the id of the run.
func (c *Controller) RunID() string {
	return c.runID
}

// Run executes the run and closes the oracle when done.
//
// Description:
//
//	After a passing sanity check, the strategy is invoked while tests remain
//	and the try limit is not reached. A found payload is re-tested and the
//	tests it passes are retired. If the re-test passes nothing, the tests
//	the strategy reported are retired instead. Duplicate payloads are
//	reported once.
//
// Inputs:
//
//	ctx - Cancelling ends the run after the current try.
//
// Outputs:
//
//	Report - What was found. Valid even when error is non-nil.
//	error - ErrSanityCheckFailed, a strategy error, or the context error.
func (c *Controller) Run(ctx context.Context) (report Report, err error) {
	start := time.Now()
	report = Report{
		RunID:     c.runID,
		Strategy:  c.strategy.Name(),
		Payloads:  []string{},
		Retired:   []score.TestID{},
		Available: c.oracle.AvailableCount(),
	}
	logger := c.logger.With(slog.String("run_id", c.runID), slog.String("strategy", c.strategy.Name()))

	defer func() {
		if cerr := c.oracle.Close(); cerr != nil {
			logger.Warn("closing oracle", slog.String("error", cerr.Error()))
		}
		report.Remaining = c.oracle.RemainingCount()
		report.Duration = time.Since(start)
	}()

	if !c.sanityCheck(ctx, logger) {
		return report, ErrSanityCheckFailed
	}

	seen := make(map[string]struct{})
	for c.oracle.RemainingCount() > 0 && report.Tries < c.maxTries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		d, err := c.strategy.Run(ctx, c.oracle)
		if err != nil {
			return report, fmt.Errorf("try %d: %w", report.Tries+1, err)
		}
		report.Tries++
		report.Calls += d.Calls

		rec := TryRecord{
			Try:       report.Tries,
			Strategy:  c.strategy.Name(),
			Found:     d.Found,
			Calls:     d.Calls,
			Duration:  d.Duration,
			Timestamp: time.Now(),
		}

		if d.Found {
			if _, dup := seen[d.Payload]; !dup {
				seen[d.Payload] = struct{}{}
				report.Payloads = append(report.Payloads, d.Payload)
			}

			solved := c.oracle.TestAll(ctx, d.Payload).SuccessfulTests()
			if len(solved) == 0 {
				solved = d.Outcome.SuccessfulTests()
			}
			c.oracle.Retire(solved)
			report.Retired = append(report.Retired, solved...)

			rec.Payload = d.Payload
			rec.Tokens = d.Tokens
			rec.Outcome = d.Outcome.String()
			rec.Solved = solved
		}
		rec.Remaining = c.oracle.RemainingCount()

		logger.Info("try finished",
			slog.Int("try", rec.Try),
			slog.Bool("found", rec.Found),
			slog.Int("solved", len(rec.Solved)),
			slog.Int("remaining", rec.Remaining),
			slog.Int64("calls", rec.Calls))

		if c.recorder != nil {
			if err := c.recorder.RecordTry(ctx, c.runID, rec); err != nil {
				logger.Warn("recording try", slog.Int("try", rec.Try), slog.String("error", err.Error()))
			}
		}
	}

	return report, nil
}

func (c *Controller) sanityCheck(ctx context.Context, logger *slog.Logger) bool {
	for attempt := 1; attempt <= c.sanityAttempts; attempt++ {
		if c.oracle.SanityCheck(ctx) {
			return true
		}
		logger.Warn("sanity check failed", slog.Int("attempt", attempt), slog.Int("attempts", c.sanityAttempts))
		if attempt == c.sanityAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.sanityDelay):
		}
	}
	return false
}
