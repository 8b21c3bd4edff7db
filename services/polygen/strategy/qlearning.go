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
	"math"
	"strconv"
	"strings"

	"github.com/AleutianAI/polygen/services/polygen/budget"
	"github.com/AleutianAI/polygen/services/polygen/oracle"
	"github.com/AleutianAI/polygen/services/polygen/tokens"
)

// QParams are the Q-learning hyperparameters.
type QParams struct {
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate" validate:"gt=0,lte=1"`
	Discount     float64 `json:"discount" yaml:"discount" validate:"gte=0,lte=1"`

	// Epsilon is the initial exploration probability.
	Epsilon float64 `json:"epsilon" yaml:"epsilon" validate:"gte=0,lte=1"`

	// MinEpsilon floors the exploration probability.
	MinEpsilon float64 `json:"min_epsilon" yaml:"min_epsilon" validate:"gte=0,lte=1"`

	// Decay multiplies the exploration probability after each episode.
	Decay float64 `json:"decay" yaml:"decay" validate:"gt=0,lte=1"`
}

// DefaultQParams returns lr 0.1, discount 0.99 and an exploration
// probability decaying from 1.0 by 0.95 per episode down to 0.01.
func DefaultQParams() QParams {
	return QParams{
		LearningRate: 0.1,
		Discount:     0.99,
		Epsilon:      1.0,
		MinEpsilon:   0.01,
		Decay:        0.95,
	}
}

// QTable maps token chains to learned values. Unknown chains are worth 0.
//
// Thread Safety: Not safe for concurrent use.
type QTable struct {
	values map[string]float64
}

// NewQTable creates an empty table.
func NewQTable() *QTable {
	return &QTable{values: make(map[string]float64)}
}

// StateKey joins token ids with "-".
func StateKey(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, "-")
}

// Get returns the value of the chain with the given ids.
func (q *QTable) Get(ids []int) float64 {
	return q.values[StateKey(ids)]
}

// Set stores the value of the chain with the given ids.
func (q *QTable) Set(ids []int, v float64) {
	q.values[StateKey(ids)] = v
}

// Len returns the number of stored chains.
func (q *QTable) Len() int {
	return len(q.values)
}

// Values returns a copy of the table keyed by StateKey.
func (q *QTable) Values() map[string]float64 {
	out := make(map[string]float64, len(q.values))
	for k, v := range q.values {
		out[k] = v
	}
	return out
}

// update applies one temporal difference step for taking action from state.
//
//	Q(s.a) = (1-lr) Q(s.a) + lr (reward + discount * max Q(s.a.a'))
//
// The lookahead probes the table only. A chain without successors looks
// ahead to 0.
func (q *QTable) update(state []int, action *tokens.Token, reward float64, p QParams) float64 {
	next := append(append(make([]int, 0, len(state)+2), state...), action.ID)

	lookahead := 0.0
	if succ := action.Next(); len(succ) > 0 {
		lookahead = math.Inf(-1)
		probe := append(next, 0)
		for _, tok := range succ {
			probe[len(probe)-1] = tok.ID
			lookahead = math.Max(lookahead, q.Get(probe))
		}
	}

	v := (1-p.LearningRate)*q.Get(next) + p.LearningRate*(reward+p.Discount*lookahead)
	q.Set(next, v)
	return v
}

// bestAction returns the action leading to the highest valued chain. The
// first action wins unless another is strictly above 0 and the rest.
func (q *QTable) bestAction(state []int, actions []*tokens.Token) *tokens.Token {
	best := actions[0]
	bestValue := 0.0
	probe := append(append(make([]int, 0, len(state)+1), state...), 0)
	for _, tok := range actions {
		probe[len(probe)-1] = tok.ID
		if v := q.Get(probe); v > bestValue {
			best = tok
			bestValue = v
		}
	}
	return best
}

// QLearning learns chain values with tabular Q-learning and an
// epsilon-greedy policy. The reward of a move is the success count of the
// resulting chain.
//
// Thread Safety: Not safe for concurrent use.
type QLearning struct {
	cfg   Config
	table *QTable
}

// Name implements Strategy.
func (s *QLearning) Name() string {
	return string(KindRL)
}

// Table returns the table learned by the last Run, or nil before the first.
func (s *QLearning) Table() *QTable {
	return s.table
}

// Run implements Strategy. Every invocation starts from an empty table.
func (s *QLearning) Run(ctx context.Context, o oracle.Oracle) (Discovery, error) {
	calls := budget.NewCallBudget(s.cfg.CallBudget)
	bo := oracle.WithBudget(o, calls)
	rng := s.cfg.Rand
	params := s.cfg.QParams
	s.table = NewQTable()

	var found best
	epsilon := params.Epsilon

	for episode := 0; s.cfg.SimulationsPerAction.Allows(episode); episode++ {
		if stopped(ctx, calls) {
			break
		}

		c := newChain(s.cfg.Grammar.Root)
		for !c.done(s.cfg.Terminal, s.cfg.MaxPayloadLength) {
			if stopped(ctx, calls) {
				break
			}
			actions := c.last().Next()
			if len(actions) == 0 {
				break
			}

			var action *tokens.Token
			state := c.ids()
			if rng.Float64() < epsilon {
				action = actions[rng.Intn(len(actions))]
			} else {
				action = s.table.bestAction(state, actions)
			}

			c = c.extend(action)
			out := bo.TestAll(ctx, c.payload())
			s.table.update(state, action, float64(out.Successes()), params)

			if found.offer(c.payload(), c.ids(), out) {
				s.cfg.Logger.Debug("new best payload",
					slog.String("strategy", s.Name()),
					slog.Int("episode", episode),
					slog.Int("wins", found.wins))
			}
		}

		epsilon = math.Max(params.MinEpsilon, epsilon*params.Decay)
	}

	if calls.Exhausted() {
		s.cfg.Tracer.TraceBudgetExhaustion(ctx, calls.Used())
	}
	s.cfg.Logger.Debug("q-learning finished",
		slog.Int("states", s.table.Len()),
		slog.Float64("epsilon", epsilon))
	return found.discovery(calls), nil
}
