// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/polygen/services/polygen/budget"
	"github.com/AleutianAI/polygen/services/polygen/mcts"
	"github.com/AleutianAI/polygen/services/polygen/oracle"
	"github.com/AleutianAI/polygen/services/polygen/payload"
	"github.com/AleutianAI/polygen/services/polygen/score"
)

// MCTS grows a token tree with Monte Carlo tree search and advances the
// root after every round.
//
// The random variant has no exploration constant and uses plain rollouts,
// which makes it a random walk over the grammar.
//
// Thread Safety: Not safe for concurrent use.
type MCTS struct {
	kind        Kind
	cfg         Config
	exploration *float64
	policy      mcts.SimulationPolicy[payload.Node, score.Outcome]
}

func newMCTS(kind Kind, cfg Config, exploration *float64, policy mcts.SimulationPolicy[payload.Node, score.Outcome]) *MCTS {
	return &MCTS{kind: kind, cfg: cfg, exploration: exploration, policy: policy}
}

// Name implements Strategy.
func (s *MCTS) Name() string {
	return string(s.kind)
}

// Run implements Strategy.
//
// Description:
//
//	Runs MaxRootDepth rounds. Each round steps the engine from the current
//	root SimulationsPerAction times, or until the call budget runs out when
//	simulations are unbounded. After a round the best visited child becomes
//	the root and everything outside its subtree is dropped. A round that
//	leaves no visited child ends the search.
//
//	The best payload is the evaluated payload with the most successes,
//	latest wins on ties. It is only reported when it passed a test.
func (s *MCTS) Run(ctx context.Context, o oracle.Oracle) (Discovery, error) {
	calls := budget.NewCallBudget(s.cfg.CallBudget)
	tracer := s.cfg.Tracer

	model := payload.NewModel(oracle.WithBudget(o, calls), payload.Options{
		Terminal:         s.cfg.Terminal,
		Win:              s.cfg.Win,
		MaxPayloadLength: s.cfg.MaxPayloadLength,
	})
	opts := []mcts.Option{
		mcts.WithRand(s.cfg.Rand),
		mcts.WithLogger(s.cfg.Logger),
		mcts.WithTracer(tracer),
	}
	if s.exploration != nil {
		opts = append(opts, mcts.WithExploration(*s.exploration))
	}
	engine := mcts.NewEngine[payload.Node, score.Outcome](model, s.policy, opts...)

	ctx, span := tracer.StartRun(ctx, s.Name(), s.cfg.MaxRootDepth, s.cfg.SimulationsPerAction.String())
	logger := mcts.LoggerWithTrace(ctx, s.cfg.Logger)

	tree := model.NewTree(s.cfg.Grammar.Root)
	root := tree.Root()
	var found best

	for round := 0; round < s.cfg.MaxRootDepth; round++ {
		roundCtx, roundSpan := tracer.StartRound(ctx, round)

		steps := 0
		halted := false
		for s.cfg.SimulationsPerAction.Allows(steps) {
			if stopped(ctx, calls) {
				halted = true
				break
			}
			res := engine.Step(roundCtx, tree, root)
			steps++

			if found.offer(payload.Payload(tree, res.Last), payload.IDs(tree, res.Last), res.Outcome) {
				logger.Debug("new best payload",
					slog.Int("round", round),
					slog.Int("step", steps),
					slog.Int("wins", found.wins))
			}
		}
		tree.DiscardScratch()
		tracer.EndRound(roundCtx, roundSpan, steps, tree.Len())

		if halted {
			if calls.Exhausted() {
				tracer.TraceBudgetExhaustion(ctx, calls.Used())
			}
			break
		}

		next := engine.ChooseBest(tree, root)
		if next == mcts.NoNode {
			logger.Debug("no visited child, stopping", slog.Int("round", round))
			break
		}
		root = payload.Reroot(tree, next)
	}

	tracer.EndRun(span, found.wins, calls.Used(), ctx.Err())
	return found.discovery(calls), nil
}
