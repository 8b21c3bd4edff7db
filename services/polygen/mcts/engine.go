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
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Model is the node capability set the engine searches over.
//
// T is the per-node payload stored in the tree and O is the evaluation
// outcome. Implementations keep any accumulated outcome inside T.
type Model[T, O any] interface {
	// Successors returns the payloads of the children of id.
	Successors(t *Tree[T], id NodeID) []T

	// Sample returns one uniformly chosen successor payload of id, or false
	// when id has none.
	Sample(t *Tree[T], id NodeID, rng *rand.Rand) (T, bool)

	// IsTerminal reports whether rollouts stop at id.
	IsTerminal(t *Tree[T], id NodeID) bool

	// Evaluate scores id against the environment. It never fails.
	Evaluate(ctx context.Context, t *Tree[T], id NodeID) O

	// Merge folds an outcome into the accumulated outcome of id.
	Merge(t *Tree[T], id NodeID, outcome O)

	// Score returns the accumulated win value of id. The engine divides it
	// by the visit count.
	Score(t *Tree[T], id NodeID) float64
}

// StepResult describes one select, expand, simulate, backpropagate cycle.
//
// Last may be a scratch node. It stays valid until the next Step or Reroot
// on the same tree.
type StepResult[O any] struct {
	Entry   NodeID
	Last    NodeID
	Outcome O
	Updated int
}

type engineOptions struct {
	exploration *float64
	rng         *rand.Rand
	logger      *slog.Logger
	tracer      *Tracer
}

// Option configures an Engine.
type Option func(*engineOptions)

// WithExploration sets the UCB1 exploration constant. Without it, fully
// visited nodes pick a uniformly random child.
func WithExploration(c float64) Option {
	return func(o *engineOptions) {
		o.exploration = &c
	}
}

// WithRand sets the random source used for selection and rollouts.
func WithRand(rng *rand.Rand) Option {
	return func(o *engineOptions) {
		o.rng = rng
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithTracer sets the tracer for observability.
func WithTracer(tracer *Tracer) Option {
	return func(o *engineOptions) {
		o.tracer = tracer
	}
}

// Engine runs Monte Carlo tree search steps over any Model.
//
// Thread Safety: Not safe for concurrent use. Steps on one tree must be
// sequential; the only blocking call inside a step is Model.Evaluate.
type Engine[T, O any] struct {
	model       Model[T, O]
	policy      SimulationPolicy[T, O]
	exploration *float64
	rng         *rand.Rand
	logger      *slog.Logger
	tracer      *Tracer
	steps       int
}

// NewEngine creates an engine.
//
// Inputs:
//   - model: Node capabilities.
//   - policy: Rollout policy used by the simulate phase.
//   - opts: Optional configuration functions.
//
// Outputs:
//   - *Engine[T, O]: Ready to use engine.
func NewEngine[T, O any](model Model[T, O], policy SimulationPolicy[T, O], opts ...Option) *Engine[T, O] {
	o := engineOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = NewTracer(o.logger, false)
	}
	return &Engine[T, O]{
		model:       model,
		policy:      policy,
		exploration: o.exploration,
		rng:         o.rng,
		logger:      o.logger,
		tracer:      o.tracer,
	}
}

// Rand returns the engine's random source.
func (e *Engine[T, O]) Rand() *rand.Rand {
	return e.rng
}

// Steps returns the number of completed steps.
func (e *Engine[T, O]) Steps() int {
	return e.steps
}

// Step runs one search iteration starting at from.
//
// Description:
//
//	Select descends from from until it reaches an unvisited node, a
//	terminal node, a node without successors, or a node with unvisited
//	children (one of which is picked at random). Fully visited nodes are
//	descended with UCB1. The selected leaf is expanded, a rollout is run
//	from it with the simulation policy, and the rollout's last node is
//	evaluated. The outcome is merged into the leaf and every ancestor.
//
// Inputs:
//   - ctx: Context passed to Model.Evaluate.
//   - t: The tree. Scratch nodes from the previous step are discarded.
//   - from: Node to start selection at, usually t.Root().
//
// Outputs:
//   - StepResult[O]: The leaf, the evaluated node, and its outcome.
func (e *Engine[T, O]) Step(ctx context.Context, t *Tree[T], from NodeID) StepResult[O] {
	start := time.Now()
	t.DiscardScratch()

	ctx, span := e.tracer.StartStep(ctx, e.steps)
	defer span.End()

	leaf := e.selectLeaf(t, from)
	e.expand(t, leaf)

	last := e.policy.Simulate(ctx, t, e.model, leaf, e.rng)
	outcome := e.model.Evaluate(ctx, t, last)
	updated := e.backpropagate(t, leaf, outcome)

	e.steps++
	e.tracer.EndStep(ctx, span, StepStats{
		Leaf:          int(leaf),
		LeafDepth:     t.Depth(leaf),
		RolloutLength: t.Depth(last) - t.Depth(leaf),
		Updated:       updated,
		Duration:      time.Since(start),
	})

	return StepResult[O]{Entry: leaf, Last: last, Outcome: outcome, Updated: updated}
}

// ChooseBest returns the child of id with the highest score per visit.
//
// Children that have never been visited are skipped. Ties go to the first
// child. Returns NoNode if no child has been visited.
func (e *Engine[T, O]) ChooseBest(t *Tree[T], id NodeID) NodeID {
	best := NoNode
	bestValue := math.Inf(-1)
	for _, child := range t.Children(id) {
		visits := t.Visits(child)
		if visits == 0 {
			continue
		}
		value := e.model.Score(t, child) / float64(visits)
		if best == NoNode || value > bestValue {
			best = child
			bestValue = value
		}
	}
	return best
}

func (e *Engine[T, O]) selectLeaf(t *Tree[T], node NodeID) NodeID {
	for {
		if t.Visits(node) == 0 {
			return node
		}
		if e.model.IsTerminal(t, node) {
			return node
		}

		children := e.expand(t, node)
		if len(children) == 0 {
			return node
		}

		var unvisited []NodeID
		for _, child := range children {
			if t.Visits(child) == 0 {
				unvisited = append(unvisited, child)
			}
		}
		if len(unvisited) > 0 {
			return unvisited[e.rng.Intn(len(unvisited))]
		}

		node = e.uctSelect(t, node, children)
	}
}

// uctSelect picks the UCB1 maximizing child, first maximum on ties.
func (e *Engine[T, O]) uctSelect(t *Tree[T], node NodeID, children []NodeID) NodeID {
	if e.exploration == nil {
		return children[e.rng.Intn(len(children))]
	}

	c := *e.exploration
	logN := math.Log(float64(t.Visits(node)))

	best := children[0]
	bestValue := math.Inf(-1)
	for i, child := range children {
		n := float64(t.Visits(child))
		exploitation := e.model.Score(t, child) / n
		exploration := math.Sqrt(logN / n)
		value := exploitation + c*exploration
		if i == 0 || value > bestValue {
			best = child
			bestValue = value
		}
	}
	return best
}

func (e *Engine[T, O]) expand(t *Tree[T], node NodeID) []NodeID {
	if t.Expanded(node) {
		return t.Children(node)
	}
	return t.Expand(node, e.model.Successors(t, node))
}

// backpropagate merges outcome into node and its ancestors and returns how
// many nodes were updated.
func (e *Engine[T, O]) backpropagate(t *Tree[T], node NodeID, outcome O) int {
	updated := 0
	for cur := node; cur != NoNode; cur = t.Parent(cur) {
		e.model.Merge(t, cur, outcome)
		t.Visit(cur)
		updated++
	}
	return updated
}
