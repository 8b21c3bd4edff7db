// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package budget tracks oracle call consumption for one strategy invocation.
package budget

import (
	"fmt"
	"sync/atomic"
	"time"
)

// CallBudget counts oracle calls against a Limit.
//
// Exhaustion is a normal stop condition. Callers check Exhausted between
// calls; Record never refuses a call.
//
// Thread Safety: Safe for concurrent use.
type CallBudget struct {
	limit     Limit
	startTime time.Time

	calls int64
}

// NewCallBudget creates a budget tracker.
//
// Inputs:
//   - limit: Maximum oracle calls, or Unbounded
//
// Outputs:
//   - *CallBudget: Budget tracker, ready to use
func NewCallBudget(limit Limit) *CallBudget {
	return &CallBudget{
		limit:     limit,
		startTime: time.Now(),
	}
}

// Limit returns the configured limit.
func (b *CallBudget) Limit() Limit {
	return b.limit
}

// Record records one oracle call and returns the new total.
func (b *CallBudget) Record() int64 {
	return atomic.AddInt64(&b.calls, 1)
}

// Used returns the number of recorded calls.
func (b *CallBudget) Used() int64 {
	return atomic.LoadInt64(&b.calls)
}

// Remaining returns the calls left, or -1 for an unbounded budget.
func (b *CallBudget) Remaining() int64 {
	if b.limit.Unbounded() {
		return -1
	}
	left := int64(b.limit.Value()) - b.Used()
	if left < 0 {
		return 0
	}
	return left
}

// Exhausted returns whether no calls remain.
func (b *CallBudget) Exhausted() bool {
	return !b.limit.Unbounded() && b.Used() >= int64(b.limit.Value())
}

// Elapsed returns time elapsed since the budget was created.
func (b *CallBudget) Elapsed() time.Duration {
	return time.Since(b.startTime)
}

// String returns a human-readable budget status.
func (b *CallBudget) String() string {
	status := ""
	if b.Exhausted() {
		status = " [EXHAUSTED]"
	}
	return fmt.Sprintf("Budget{calls=%d/%s, elapsed=%v}%s",
		b.Used(), b.limit, b.Elapsed().Round(time.Millisecond), status)
}

// UsageReport is a snapshot of budget consumption.
type UsageReport struct {
	Elapsed   time.Duration `json:"elapsed"`
	Calls     int64         `json:"calls"`
	Limit     string        `json:"limit"`
	Remaining int64         `json:"remaining"`
	Exhausted bool          `json:"exhausted"`
}

// Report generates a usage report.
func (b *CallBudget) Report() UsageReport {
	return UsageReport{
		Elapsed:   b.Elapsed(),
		Calls:     b.Used(),
		Limit:     b.limit.String(),
		Remaining: b.Remaining(),
		Exhausted: b.Exhausted(),
	}
}
