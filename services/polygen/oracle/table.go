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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/polygen/services/polygen/score"
)

var (
	// ErrNoTests is returned when an oracle is created without tests.
	ErrNoTests = errors.New("oracle has no tests")

	// ErrDuplicateTest is returned when two tests share an id.
	ErrDuplicateTest = errors.New("duplicate test id")
)

// Test is an in-process pass/fail predicate.
type Test struct {
	ID   score.TestID
	Pass func(payload string) bool
}

// Table is an oracle backed by in-process predicates.
//
// Thread Safety: Safe for concurrent use if the predicates are.
type Table struct {
	registry
	tests  []Test
	logger *slog.Logger
}

// NewTable creates an oracle over tests, in the given order.
func NewTable(tests []Test, logger *slog.Logger) (*Table, error) {
	if len(tests) == 0 {
		return nil, ErrNoTests
	}
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[score.TestID]struct{}, len(tests))
	order := make([]score.TestID, 0, len(tests))
	for _, tc := range tests {
		if _, dup := seen[tc.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTest, tc.ID)
		}
		seen[tc.ID] = struct{}{}
		order = append(order, tc.ID)
	}
	return &Table{
		registry: newRegistry(order),
		tests:    append([]Test(nil), tests...),
		logger:   logger,
	}, nil
}

// TestAll implements Oracle.
func (t *Table) TestAll(_ context.Context, payload string) score.Outcome {
	return t.run(payload, false)
}

// SanityCheck passes if the reference payload passes at least one test,
// retired ones included.
func (t *Table) SanityCheck(_ context.Context) bool {
	return t.run(ReferencePayload, true).Successes() > 0
}

// Close implements Oracle.
func (t *Table) Close() error {
	return nil
}

func (t *Table) run(payload string, includeRetired bool) score.Outcome {
	scores := make(map[score.TestID]score.Score, len(t.tests))
	for _, tc := range t.tests {
		if !includeRetired && t.isRetired(tc.ID) {
			scores[tc.ID] = score.Untested()
			continue
		}
		scores[tc.ID] = score.Tested(t.safePass(tc, payload))
	}
	return score.NewOutcome(t.order, scores)
}

func (t *Table) safePass(tc Test, payload string) (passed bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("oracle test panicked",
				slog.String("test", string(tc.ID)),
				slog.Any("panic", r))
			passed = false
		}
	}()
	return tc.Pass(payload)
}

// ContextTests returns predicates that model common XSS injection contexts.
//
// Each test wraps the payload in a page fragment and passes when the
// resulting markup would execute script. This is a coarse static check used
// for local runs without a browser harness.
func ContextTests() []Test {
	return []Test{
		{ID: "html_body", Pass: func(p string) bool {
			return opensScript(p)
		}},
		{ID: "attribute_double_quoted", Pass: func(p string) bool {
			i := strings.Index(p, `"`)
			return i >= 0 && (opensScript(p[i+1:]) || hasEventHandler(p[i+1:]))
		}},
		{ID: "attribute_single_quoted", Pass: func(p string) bool {
			i := strings.Index(p, `'`)
			return i >= 0 && (opensScript(p[i+1:]) || hasEventHandler(p[i+1:]))
		}},
		{ID: "html_comment", Pass: func(p string) bool {
			i := strings.Index(p, "-->")
			if j := strings.Index(p, "--!>"); j >= 0 && (i < 0 || j < i) {
				i = j
			}
			return i >= 0 && opensScript(p[i:])
		}},
		{ID: "textarea", Pass: func(p string) bool {
			lower := strings.ToLower(p)
			i := strings.Index(lower, "</textarea")
			return i >= 0 && opensScript(p[i:])
		}},
		{ID: "javascript_url", Pass: func(p string) bool {
			lower := strings.ToLower(p)
			return strings.HasPrefix(lower, "javascript:") && strings.Contains(lower, "import(")
		}},
	}
}

func opensScript(p string) bool {
	return strings.Contains(strings.ToLower(p), "<script")
}

func hasEventHandler(p string) bool {
	lower := strings.ToLower(p)
	return strings.Contains(lower, "onerror=") || strings.Contains(lower, "onload=")
}
