// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcts provides a generic Monte Carlo tree search engine.
//
// # Tree
//
// Nodes live in an arena (Tree) and refer to each other by NodeID. Rerooting
// promotes a child to root and compacts the arena to its subtree, which
// bounds memory for long chains: only the layers below the committed prefix
// are kept.
//
// # Engine
//
// Engine is parameterized by the node payload T and the evaluation outcome O.
// Domain behavior comes from a Model and a SimulationPolicy supplied by the
// caller:
//
//	engine := mcts.NewEngine[payload.Node, score.Outcome](model, policy,
//	    mcts.WithExploration(math.Sqrt2),
//	    mcts.WithRand(rng),
//	)
//	for i := 0; i < steps; i++ {
//	    res := engine.Step(ctx, tree, tree.Root())
//	    ...
//	}
//	best := engine.ChooseBest(tree, tree.Root())
//	tree.Reroot(best)
//
// # Thread Safety
//
// Engines and trees are single-writer. Run one step at a time per tree.
package mcts
