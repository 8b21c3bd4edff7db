// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package payload

import (
	"context"
	"math/rand"

	"github.com/AleutianAI/polygen/services/polygen/mcts"
	"github.com/AleutianAI/polygen/services/polygen/score"
)

// DefaultCandidates is the number of rollouts ValidatingRollout tries.
const DefaultCandidates = 1000

// ValidatingRollout prefers rollouts whose payload is valid script.
//
// Description:
//
//	Up to Candidates random rollouts are drawn. The first one whose payload
//	passes the syntax checker is returned. If none does, one of the invalid
//	rollouts is picked at random and returned instead, so the step still
//	evaluates something.
//
// Thread Safety: Safe for concurrent use if the checker is.
type ValidatingRollout struct {
	candidates int
	checker    SyntaxChecker
}

var _ mcts.SimulationPolicy[Node, score.Outcome] = (*ValidatingRollout)(nil)

// NewValidatingRollout creates the policy. A non-positive candidates uses
// DefaultCandidates.
func NewValidatingRollout(checker SyntaxChecker, candidates int) *ValidatingRollout {
	if candidates <= 0 {
		candidates = DefaultCandidates
	}
	return &ValidatingRollout{candidates: candidates, checker: checker}
}

// Simulate implements mcts.SimulationPolicy.
func (v *ValidatingRollout) Simulate(ctx context.Context, t *mcts.Tree[Node], m mcts.Model[Node, score.Outcome], from mcts.NodeID, rng *rand.Rand) mcts.NodeID {
	var invalid [][]Node
	for i := 0; i < v.candidates; i++ {
		mark := t.ScratchMark()
		last := mcts.Rollout(t, m, from, rng)
		if last == from || v.checker.Valid(ctx, Payload(t, last)) {
			return last
		}
		invalid = append(invalid, mcts.ScratchChain(t, from, last))
		t.TruncateScratch(mark)
		if ctx.Err() != nil {
			break
		}
	}
	return mcts.Replay(t, from, invalid[rng.Intn(len(invalid))])
}
