// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package score implements the multi-test outcome algebra used to rank
// candidate payloads.
//
// An Outcome records, for every test the oracle knows about, whether a payload
// passed it. Tests that were retired earlier in a run are carried as Untested
// so that every Outcome produced during a strategy invocation shares the same
// key set.
//
// # Invariants
//
// Binary operations require compatible Outcomes (identical active test sets).
// Violations are programming errors and panic.
package score

import "fmt"

// TestID identifies a single oracle test.
type TestID string

// Score is the result of one test for one payload.
//
// The zero value is Tested(false).
type Score struct {
	inactive bool
	passed   bool
}

// Tested returns an active score.
func Tested(passed bool) Score {
	return Score{passed: passed}
}

// Untested returns the inactive score used for retired tests.
func Untested() Score {
	return Score{inactive: true}
}

// Active reports whether the test is still being evaluated.
func (s Score) Active() bool {
	return !s.inactive
}

// Value returns 1 for a passed active test, 0 otherwise.
func (s Score) Value() int {
	if s.inactive || !s.passed {
		return 0
	}
	return 1
}

// Add merges two scores for the same test.
//
// Description:
//
//	Active scores combine with logical OR, so a recorded success is never
//	lost. An inactive score absorbs an inactive or zero-valued score and stays
//	inactive.
//
// Outputs:
//
//	Score - The merged score.
//
// Panics if an inactive score meets a passed active score.
func (s Score) Add(o Score) Score {
	if s.inactive || o.inactive {
		if s.Value() != 0 || o.Value() != 0 {
			panic(fmt.Sprintf("score: untested score combined with success (%s + %s)", s, o))
		}
		return Untested()
	}
	return Tested(s.passed || o.passed)
}

// String renders the score as "1", "0", or "x" for inactive tests.
func (s Score) String() string {
	if s.inactive {
		return "x"
	}
	if s.passed {
		return "1"
	}
	return "0"
}
