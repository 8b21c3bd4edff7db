// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "polygen.mcts"

var (
	meter = otel.Meter(instrumentationName)

	stepsTotal      metric.Int64Counter
	stepDuration    metric.Float64Histogram
	rolloutLength   metric.Int64Histogram
	roundsTotal     metric.Int64Counter
	treeNodesRetain metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		stepsTotal, err = meter.Int64Counter(
			"polygen_mcts_steps_total",
			metric.WithDescription("Total MCTS steps"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stepDuration, err = meter.Float64Histogram(
			"polygen_mcts_step_duration_seconds",
			metric.WithDescription("MCTS step duration including the oracle call"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rolloutLength, err = meter.Int64Histogram(
			"polygen_mcts_rollout_length",
			metric.WithDescription("Scratch nodes added by one rollout"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		roundsTotal, err = meter.Int64Counter(
			"polygen_mcts_rounds_total",
			metric.WithDescription("Completed root advancement rounds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		treeNodesRetain, err = meter.Int64Histogram(
			"polygen_mcts_nodes_retained",
			metric.WithDescription("Nodes kept after rerooting"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

// StepStats summarizes one engine step for tracing.
type StepStats struct {
	Leaf          int
	LeafDepth     int
	RolloutLength int
	Updated       int
	Duration      time.Duration
}

// Tracer provides OpenTelemetry tracing and metrics for search runs.
//
// Thread Safety: Safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
	metrics bool
}

// NewTracer creates a new tracer.
//
// Inputs:
//   - logger: Logger for structured logging (nil uses slog.Default()).
//   - enabled: Whether spans and metrics are recorded.
//
// Outputs:
//   - *Tracer: Tracer instance.
func NewTracer(logger *slog.Logger, enabled bool) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracer{
		tracer:  otel.Tracer(instrumentationName),
		logger:  logger,
		enabled: enabled,
	}
	if enabled {
		if err := initMetrics(); err != nil {
			logger.Warn("mcts metrics unavailable", slog.String("error", err.Error()))
		} else {
			t.metrics = true
		}
	}
	return t
}

// StartRun starts a span covering one strategy invocation.
func (t *Tracer) StartRun(ctx context.Context, strategy string, rounds int, simulations string) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	ctx, span := t.tracer.Start(ctx, "mcts.run",
		trace.WithAttributes(
			attribute.String("mcts.strategy", strategy),
			attribute.Int("mcts.rounds", rounds),
			attribute.String("mcts.simulations_per_round", simulations),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	t.logger.InfoContext(ctx, "MCTS run started",
		slog.String("strategy", strategy),
		slog.Int("rounds", rounds),
		slog.String("simulations_per_round", simulations),
	)

	return ctx, span
}

// EndRun completes the run span.
func (t *Tracer) EndRun(span trace.Span, bestWins int, calls int64, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		attribute.Int("mcts.result.best_wins", bestWins),
		attribute.Int64("mcts.result.oracle_calls", calls),
	)
	span.End()
}

// StartRound starts a span for one root advancement round.
func (t *Tracer) StartRound(ctx context.Context, round int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	return t.tracer.Start(ctx, "mcts.round",
		trace.WithAttributes(
			attribute.Int("mcts.round", round),
		),
	)
}

// EndRound completes a round span after the tree was rerooted.
func (t *Tracer) EndRound(ctx context.Context, span trace.Span, steps int, retained int) {
	if t.metrics {
		roundsTotal.Add(ctx, 1)
		treeNodesRetain.Record(ctx, int64(retained))
	}
	span.SetAttributes(
		attribute.Int("mcts.round.steps", steps),
		attribute.Int("mcts.round.nodes_retained", retained),
	)
	span.End()
}

// StartStep starts a span for one engine step.
func (t *Tracer) StartStep(ctx context.Context, step int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	return t.tracer.Start(ctx, "mcts.step",
		trace.WithAttributes(
			attribute.Int("mcts.step", step),
		),
	)
}

// EndStep records step attributes and metrics. The caller ends the span.
func (t *Tracer) EndStep(ctx context.Context, span trace.Span, stats StepStats) {
	if t.metrics {
		stepsTotal.Add(ctx, 1)
		stepDuration.Record(ctx, stats.Duration.Seconds())
		rolloutLength.Record(ctx, int64(stats.RolloutLength))
	}
	span.SetAttributes(
		attribute.Int("mcts.step.leaf", stats.Leaf),
		attribute.Int("mcts.step.leaf_depth", stats.LeafDepth),
		attribute.Int("mcts.step.rollout_length", stats.RolloutLength),
		attribute.Int("mcts.step.updated", stats.Updated),
	)

	t.logger.DebugContext(ctx, "MCTS step",
		slog.Int("leaf", stats.Leaf),
		slog.Int("leaf_depth", stats.LeafDepth),
		slog.Int("rollout_length", stats.RolloutLength),
		slog.Duration("duration", stats.Duration),
	)
}

// TraceBudgetExhaustion records that a run stopped on its call budget.
func (t *Tracer) TraceBudgetExhaustion(ctx context.Context, calls int64) {
	if t.enabled {
		span := trace.SpanFromContext(ctx)
		span.AddEvent("budget_exhausted", trace.WithAttributes(
			attribute.Int64("mcts.oracle_calls", calls),
		))
	}

	t.logger.InfoContext(ctx, "oracle call budget exhausted",
		slog.Int64("calls", calls),
	)
}

// LoggerWithTrace returns a logger with trace context.
//
// Inputs:
//   - ctx: Context that may contain trace information.
//   - logger: Base logger.
//
// Outputs:
//   - *slog.Logger: Logger with trace_id and span_id if available.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
