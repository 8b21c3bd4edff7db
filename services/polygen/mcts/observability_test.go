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
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracer_DisabledReturnsNoopSpans(t *testing.T) {
	tracer := NewTracer(nil, false)
	ctx := context.Background()

	gotCtx, span := tracer.StartRun(ctx, "mcts", 3, "10")
	assert.Equal(t, ctx, gotCtx)
	assert.IsType(t, noop.Span{}, span)

	_, span = tracer.StartStep(ctx, 0)
	assert.IsType(t, noop.Span{}, span)

	// Must not panic on noop spans.
	tracer.EndStep(ctx, span, StepStats{Duration: time.Millisecond})
	tracer.EndRun(span, 0, 0, nil)
}

func TestTracer_EnabledLogsRunStart(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tracer := NewTracer(logger, true)

	ctx, span := tracer.StartRun(context.Background(), "random", 2, "infinite")
	tracer.TraceBudgetExhaustion(ctx, 42)
	tracer.EndRun(span, 1, 42, nil)

	assert.Contains(t, buf.String(), "MCTS run started")
	assert.Contains(t, buf.String(), "strategy=random")
	assert.Contains(t, buf.String(), "calls=42")
}

func TestLoggerWithTrace_NoSpan(t *testing.T) {
	logger := slog.Default()
	assert.Same(t, logger, LoggerWithTrace(context.Background(), logger))
}
