// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle defines the black-box test harness the search evaluates
// payloads against, plus the implementations and decorators polygen ships.
//
// # Contract
//
// TestAll never fails. Anything that goes wrong while evaluating a test
// (timeouts, transport errors, a crashing predicate) is reported as
// Tested(false) for that test, so the search always makes progress. Retired
// tests are reported as Untested and are not evaluated.
package oracle

import (
	"context"
	"sync"

	"github.com/AleutianAI/polygen/services/polygen/score"
)

// ReferencePayload is the payload SanityCheck expects to pass at least one
// test.
const ReferencePayload = "<script>console.log(`xss`)</script>"

// Oracle evaluates payloads against a fixed list of pass/fail tests.
//
// Thread Safety: Implementations are safe for concurrent use.
type Oracle interface {
	// EmptyOutcome returns the zero outcome for the current active set:
	// Tested(false) for active tests and Untested for retired ones.
	EmptyOutcome() score.Outcome

	// TestAll evaluates payload against every active test.
	TestAll(ctx context.Context, payload string) score.Outcome

	// Retire excludes tests from future evaluations until ResetRetirements.
	Retire(ids []score.TestID)

	// ResetRetirements reactivates every retired test.
	ResetRetirements()

	// RemainingCount returns the number of active tests.
	RemainingCount() int

	// AvailableCount returns the number of tests, active or retired.
	AvailableCount() int

	// SanityCheck reports whether the harness is usable.
	SanityCheck(ctx context.Context) bool

	// Close releases resources held by the oracle.
	Close() error
}

// registry tracks the test order and which tests are retired.
type registry struct {
	mu      sync.RWMutex
	order   []score.TestID
	retired map[score.TestID]struct{}
}

func newRegistry(order []score.TestID) registry {
	return registry{
		order:   append([]score.TestID(nil), order...),
		retired: make(map[score.TestID]struct{}),
	}
}

func (r *registry) EmptyOutcome() score.Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scores := make(map[score.TestID]score.Score, len(r.order))
	for _, id := range r.order {
		if _, ok := r.retired[id]; ok {
			scores[id] = score.Untested()
		} else {
			scores[id] = score.Tested(false)
		}
	}
	return score.NewOutcome(r.order, scores)
}

func (r *registry) Retire(ids []score.TestID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	known := make(map[score.TestID]struct{}, len(r.order))
	for _, id := range r.order {
		known[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; ok {
			r.retired[id] = struct{}{}
		}
	}
}

func (r *registry) ResetRetirements() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retired = make(map[score.TestID]struct{})
}

func (r *registry) RemainingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order) - len(r.retired)
}

func (r *registry) AvailableCount() int {
	return len(r.order)
}

func (r *registry) isRetired(id score.TestID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.retired[id]
	return ok
}
