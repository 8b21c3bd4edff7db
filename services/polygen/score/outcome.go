// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package score

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Outcome maps every known test to its Score, in a canonical order.
//
// Outcomes are values: every operation returns a new Outcome and never
// mutates its receiver. The order slice is shared between copies and must
// not be modified.
type Outcome struct {
	order  []TestID
	scores map[TestID]Score
}

// NewOutcome builds an Outcome over the given test order.
//
// Inputs:
//
//	order - Canonical test order. Duplicates panic.
//	scores - Score per test. Tests absent from scores are Tested(false).
//
// Outputs:
//
//	Outcome - The new outcome.
//
// Panics if scores names a test that is not in order.
func NewOutcome(order []TestID, scores map[TestID]Score) Outcome {
	o := Outcome{
		order:  append([]TestID(nil), order...),
		scores: make(map[TestID]Score, len(order)),
	}
	for _, id := range o.order {
		if _, dup := o.scores[id]; dup {
			panic(fmt.Sprintf("score: duplicate test id %q", id))
		}
		o.scores[id] = scores[id]
	}
	for id := range scores {
		if _, ok := o.scores[id]; !ok {
			panic(fmt.Sprintf("score: test id %q not in order", id))
		}
	}
	return o
}

// Order returns a copy of the canonical test order.
func (o Outcome) Order() []TestID {
	return append([]TestID(nil), o.order...)
}

// Len returns the number of known tests, active or not.
func (o Outcome) Len() int {
	return len(o.order)
}

// Get returns the score of one test. Unknown tests report Untested.
func (o Outcome) Get(id TestID) Score {
	s, ok := o.scores[id]
	if !ok {
		return Untested()
	}
	return s
}

// ActiveCount returns the number of tests that are not retired.
func (o Outcome) ActiveCount() int {
	n := 0
	for _, id := range o.order {
		if o.scores[id].Active() {
			n++
		}
	}
	return n
}

// ActiveTests returns the active test ids in canonical order.
func (o Outcome) ActiveTests() []TestID {
	out := make([]TestID, 0, len(o.order))
	for _, id := range o.order {
		if o.scores[id].Active() {
			out = append(out, id)
		}
	}
	return out
}

// SuccessfulTests returns the passed test ids in canonical order.
func (o Outcome) SuccessfulTests() []TestID {
	var out []TestID
	for _, id := range o.order {
		if o.scores[id].Value() == 1 {
			out = append(out, id)
		}
	}
	return out
}

// Successes returns the number of passed tests.
func (o Outcome) Successes() int {
	n := 0
	for _, id := range o.order {
		n += o.scores[id].Value()
	}
	return n
}

// Values returns the score values in canonical order. Inactive tests are 0.
func (o Outcome) Values() []float64 {
	out := make([]float64, len(o.order))
	for i, id := range o.order {
		out[i] = float64(o.scores[id].Value())
	}
	return out
}

// Compatible reports whether both outcomes have the same active test set.
func (o Outcome) Compatible(other Outcome) bool {
	if o.ActiveCount() != other.ActiveCount() {
		return false
	}
	for _, id := range o.order {
		if o.scores[id].Active() && !other.Get(id).Active() {
			return false
		}
	}
	return true
}

// Combine merges other into o test by test.
//
// Description:
//
//	Each test combines with Score.Add, which is logical OR for active tests.
//	The result keeps o's canonical order.
//
// Inputs:
//
//	other - An outcome compatible with o.
//
// Outputs:
//
//	Outcome - The combined outcome.
//
// Panics if the outcomes are incompatible.
func (o Outcome) Combine(other Outcome) Outcome {
	mustCompatible(o, other)
	out := Outcome{order: o.order, scores: make(map[TestID]Score, len(o.order))}
	for _, id := range o.order {
		out.scores[id] = o.scores[id].Add(other.Get(id))
	}
	return out
}

// WinSum returns the fraction of active tests that passed.
//
// Panics when no test is active.
func (o Outcome) WinSum() float64 {
	active := o.ActiveCount()
	if active == 0 {
		panic("score: win sum over outcome with no active tests")
	}
	return float64(o.Successes()) / float64(active)
}

// EntropyScore rewards outcomes that add spread to the global outcome.
//
// Description:
//
//	With no successes, unexplored nodes score ln(active) so they get visited
//	before being written off, and explored ones score 0. Otherwise the score
//	is the Shannon entropy of o plus global, normalized by its sum.
//
// Inputs:
//
//	global - The reference outcome, usually the tree root's.
//	explored - Whether the scored node has been visited.
//
// Outputs:
//
//	float64 - The score in nats.
//
// Panics if the outcomes are incompatible.
func (o Outcome) EntropyScore(global Outcome, explored bool) float64 {
	mustCompatible(o, global)
	values := o.Values()
	if Sum(values) == 0 {
		if explored {
			return 0
		}
		return math.Log(float64(o.ActiveCount()))
	}
	return Entropy(Add(values, global.alignedValues(o.order)))
}

// CosSimScore returns the absolute cosine similarity of o and global.
//
// Either vector summing to zero yields 0.
//
// Panics if the outcomes are incompatible.
func (o Outcome) CosSimScore(global Outcome) float64 {
	mustCompatible(o, global)
	values := o.Values()
	globalValues := global.alignedValues(o.order)
	if Sum(values) == 0 || Sum(globalValues) == 0 {
		return 0
	}
	return math.Abs(CosineSimilarity(values, globalValues))
}

// Results returns the values of the active tests keyed by test id.
func (o Outcome) Results() map[TestID]int {
	out := make(map[TestID]int, len(o.order))
	for _, id := range o.order {
		if s := o.scores[id]; s.Active() {
			out[id] = s.Value()
		}
	}
	return out
}

// String renders the outcome as "[1,0,x]" in canonical order.
func (o Outcome) String() string {
	parts := make([]string, len(o.order))
	for i, id := range o.order {
		parts[i] = o.scores[id].String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// MarshalJSON encodes the active results and the compact string form.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Scores    string         `json:"scores"`
		Results   map[TestID]int `json:"results"`
		Successes int            `json:"successes"`
	}{
		Scores:    o.String(),
		Results:   o.Results(),
		Successes: o.Successes(),
	})
}

func (o Outcome) alignedValues(order []TestID) []float64 {
	out := make([]float64, len(order))
	for i, id := range order {
		out[i] = float64(o.Get(id).Value())
	}
	return out
}

func mustCompatible(a, b Outcome) {
	if !a.Compatible(b) {
		panic(fmt.Sprintf("score: incompatible outcomes %s and %s", a, b))
	}
}
