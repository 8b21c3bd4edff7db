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
	"github.com/AleutianAI/polygen/services/polygen/oracle"
	"github.com/AleutianAI/polygen/services/polygen/score"
	"github.com/AleutianAI/polygen/services/polygen/tokens"
)

// Greedy extends a chain one token at a time, always taking a successor
// with the most successes.
//
// Each extension probes every successor with one oracle call, sequentially.
// Ties at the maximum are broken at random.
//
// Thread Safety: Not safe for concurrent use.
type Greedy struct {
	cfg Config
}

// Name implements Strategy.
func (g *Greedy) Name() string {
	return string(KindGreedy)
}

type probe struct {
	token   *tokens.Token
	outcome score.Outcome
}

// Run implements Strategy.
//
// Description:
//
//	Runs SimulationsPerAction episodes. Each episode starts at the grammar
//	root and extends the chain until it is done or the budget runs out. A
//	token without successors ends the whole run with no discovery.
func (g *Greedy) Run(ctx context.Context, o oracle.Oracle) (Discovery, error) {
	calls := budget.NewCallBudget(g.cfg.CallBudget)
	bo := oracle.WithBudget(o, calls)
	rng := g.cfg.Rand
	var found best

	for episode := 0; g.cfg.SimulationsPerAction.Allows(episode); episode++ {
		if stopped(ctx, calls) {
			break
		}

		c := newChain(g.cfg.Grammar.Root)
		for !c.done(g.cfg.Terminal, g.cfg.MaxPayloadLength) {
			next := c.last().Next()
			if len(next) == 0 {
				g.cfg.Logger.Warn("token has no successors",
					slog.String("token", c.last().String()))
				return Discovery{Calls: calls.Used(), Duration: calls.Elapsed()}, nil
			}

			probes := make([]probe, 0, len(next))
			for _, tok := range next {
				if stopped(ctx, calls) {
					break
				}
				out := bo.TestAll(ctx, c.extend(tok).payload())
				probes = append(probes, probe{token: tok, outcome: out})
			}
			if len(probes) == 0 {
				break
			}

			tied := topProbes(probes)
			pick := tied[rng.Intn(len(tied))]
			c = c.extend(pick.token)

			if found.offer(c.payload(), c.ids(), pick.outcome) {
				g.cfg.Logger.Debug("new best payload",
					slog.String("strategy", g.Name()),
					slog.Int("episode", episode),
					slog.Int("wins", found.wins))
			}
		}
	}

	if calls.Exhausted() {
		g.cfg.Tracer.TraceBudgetExhaustion(ctx, calls.Used())
	}
	return found.discovery(calls), nil
}

// topProbes returns the probes tied at the highest success count, in probe
// order.
func topProbes(probes []probe) []probe {
	top := -1
	for _, p := range probes {
		if n := p.outcome.Successes(); n > top {
			top = n
		}
	}
	tied := make([]probe, 0, len(probes))
	for _, p := range probes {
		if p.outcome.Successes() == top {
			tied = append(tied, p)
		}
	}
	return tied
}
