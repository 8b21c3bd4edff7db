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
	"math/rand"
)

// SimulationPolicy picks the node a step evaluates.
//
// Implementations add scratch nodes to the tree with AddScratch and return
// the node to evaluate, which may be from itself.
type SimulationPolicy[T, O any] interface {
	Simulate(ctx context.Context, t *Tree[T], m Model[T, O], from NodeID, rng *rand.Rand) NodeID
}

// RandomRollout follows uniformly sampled successors until a terminal node.
// The first rollout is used unconditionally.
type RandomRollout[T, O any] struct{}

// Simulate implements SimulationPolicy.
func (RandomRollout[T, O]) Simulate(_ context.Context, t *Tree[T], m Model[T, O], from NodeID, rng *rand.Rand) NodeID {
	return Rollout(t, m, from, rng)
}

// Rollout samples successors from from until the model reports a terminal
// node or a node without successors, and returns that node.
func Rollout[T, O any](t *Tree[T], m Model[T, O], from NodeID, rng *rand.Rand) NodeID {
	node := from
	for !m.IsTerminal(t, node) {
		next, ok := m.Sample(t, node, rng)
		if !ok {
			break
		}
		node = t.AddScratch(node, next)
	}
	return node
}

// ScratchChain returns the payloads of the scratch nodes between from
// (exclusive) and last (inclusive), top down.
func ScratchChain[T any](t *Tree[T], from, last NodeID) []T {
	var chain []T
	for cur := last; cur != from && cur != NoNode; cur = t.Parent(cur) {
		chain = append(chain, t.Data(cur))
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Replay appends chain below from as scratch nodes and returns the last one.
func Replay[T any](t *Tree[T], from NodeID, chain []T) NodeID {
	node := from
	for _, data := range chain {
		node = t.AddScratch(node, data)
	}
	return node
}
