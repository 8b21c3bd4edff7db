// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/polygen/services/polygen/budget"
	"github.com/AleutianAI/polygen/services/polygen/score"
)

// knownKinds contains the oracle kinds used as metric labels.
// Any other kind is recorded as "unknown" to bound label cardinality.
var knownKinds = map[string]bool{
	"local":  true,
	"remote": true,
	"test":   true,
}

func sanitizeKind(kind string) string {
	if knownKinds[kind] {
		return kind
	}
	return "unknown"
}

var (
	// callsTotal counts TestAll calls.
	//
	// Labels:
	//   - oracle: Oracle kind (sanitized against knownKinds)
	//   - result: "hit" if any test passed, otherwise "miss"
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "polygen",
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Total oracle evaluations by oracle kind and result",
		},
		[]string{"oracle", "result"},
	)

	// callDurationSeconds measures TestAll latency.
	callDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "polygen",
			Subsystem: "oracle",
			Name:      "call_duration_seconds",
			Help:      "Oracle evaluation duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"oracle"},
	)

	// successesPerCall tracks how many tests one payload passes.
	successesPerCall = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "polygen",
			Subsystem: "oracle",
			Name:      "successes_per_call",
			Help:      "Tests passed per oracle evaluation",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		},
		[]string{"oracle"},
	)

	// remainingTests reports the number of active tests.
	remainingTests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "polygen",
			Subsystem: "oracle",
			Name:      "remaining_tests",
			Help:      "Tests not yet retired",
		},
		[]string{"oracle"},
	)
)

// Instrumented records Prometheus metrics for every call to the wrapped
// oracle.
type Instrumented struct {
	Oracle
	kind string
}

// NewInstrumented wraps o. kind labels the metrics ("local", "remote").
func NewInstrumented(o Oracle, kind string) *Instrumented {
	kind = sanitizeKind(kind)
	remainingTests.WithLabelValues(kind).Set(float64(o.RemainingCount()))
	return &Instrumented{Oracle: o, kind: kind}
}

// TestAll implements Oracle.
func (i *Instrumented) TestAll(ctx context.Context, payload string) score.Outcome {
	start := time.Now()
	out := i.Oracle.TestAll(ctx, payload)

	result := "miss"
	if out.Successes() > 0 {
		result = "hit"
	}
	callsTotal.WithLabelValues(i.kind, result).Inc()
	callDurationSeconds.WithLabelValues(i.kind).Observe(time.Since(start).Seconds())
	successesPerCall.WithLabelValues(i.kind).Observe(float64(out.Successes()))
	return out
}

// Retire implements Oracle.
func (i *Instrumented) Retire(ids []score.TestID) {
	i.Oracle.Retire(ids)
	remainingTests.WithLabelValues(i.kind).Set(float64(i.Oracle.RemainingCount()))
}

// ResetRetirements implements Oracle.
func (i *Instrumented) ResetRetirements() {
	i.Oracle.ResetRetirements()
	remainingTests.WithLabelValues(i.kind).Set(float64(i.Oracle.RemainingCount()))
}

// Budgeted records every TestAll on a call budget.
//
// It does not refuse calls; callers stop when Budget().Exhausted().
type Budgeted struct {
	Oracle
	budget *budget.CallBudget
}

// WithBudget wraps o so that each TestAll is counted against b.
func WithBudget(o Oracle, b *budget.CallBudget) *Budgeted {
	return &Budgeted{Oracle: o, budget: b}
}

// Budget returns the tracked budget.
func (b *Budgeted) Budget() *budget.CallBudget {
	return b.budget
}

// TestAll implements Oracle.
func (b *Budgeted) TestAll(ctx context.Context, payload string) score.Outcome {
	b.budget.Record()
	return b.Oracle.TestAll(ctx, payload)
}
