// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package strategy implements the searches that look for a single payload
// passing as many active tests as possible.
//
// Every strategy invocation gets a fresh oracle call budget. Running out of
// budget ends the search normally; whatever was found so far is returned.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/polygen/services/polygen/budget"
	"github.com/AleutianAI/polygen/services/polygen/mcts"
	"github.com/AleutianAI/polygen/services/polygen/oracle"
	"github.com/AleutianAI/polygen/services/polygen/payload"
	"github.com/AleutianAI/polygen/services/polygen/score"
	"github.com/AleutianAI/polygen/services/polygen/tokens"
)

var (
	// ErrUnknownStrategy is returned by New for an unrecognized kind.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrNoGrammar is returned when a strategy is built without a grammar.
	ErrNoGrammar = errors.New("strategy requires a compiled grammar")
)

// Kind names a strategy.
type Kind string

const (
	KindMCTS   Kind = "mcts"
	KindRandom Kind = "random"
	KindGreedy Kind = "greedy"
	KindRL     Kind = "rl"
)

// ParseKind accepts the lower case kinds and their upper case forms.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMCTS, KindRandom, KindGreedy, KindRL:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Discovery is the result of one strategy invocation.
type Discovery struct {
	// Found is false when no payload passed any test.
	Found bool

	Payload string
	Tokens  []int
	Outcome score.Outcome

	// Calls is the number of oracle calls the invocation made.
	Calls    int64
	Duration time.Duration
}

// Strategy searches for one payload.
type Strategy interface {
	// Name returns the strategy kind.
	Name() string

	// Run searches against o. Errors are configuration errors only.
	Run(ctx context.Context, o oracle.Oracle) (Discovery, error)
}

// Config holds what every strategy needs.
type Config struct {
	Grammar          *tokens.Compiled
	Terminal         payload.TerminalCondition
	Win              payload.WinCalculation
	MaxPayloadLength int

	// MaxRootDepth is the number of root advancement rounds (MCTS only).
	MaxRootDepth int

	// SimulationsPerAction bounds steps per round (MCTS) or episodes
	// (Greedy, RL).
	SimulationsPerAction budget.Limit

	// CallBudget bounds oracle calls per invocation.
	CallBudget budget.Limit

	// Exploration is the UCB1 constant for MCTS. Nil means a random walk.
	Exploration *float64

	// RolloutCandidates is passed to the validating rollout.
	RolloutCandidates int

	// Checker validates rollout payloads. Nil uses tree-sitter JavaScript.
	Checker payload.SyntaxChecker

	// QParams tunes Q-learning.
	QParams QParams

	// Rand is the random source (default: time seeded).
	Rand *rand.Rand

	Logger *slog.Logger
	Tracer *mcts.Tracer
}

func (c *Config) withDefaults() error {
	if c.Grammar == nil {
		return ErrNoGrammar
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = mcts.NewTracer(c.Logger, false)
	}
	if c.QParams == (QParams{}) {
		c.QParams = DefaultQParams()
	}
	return nil
}

// New builds the strategy for kind.
//
// Inputs:
//
//	kind - One of mcts, random, greedy, rl in either case.
//	cfg - Shared configuration. The grammar is required.
//
// Outputs:
//
//	Strategy - The strategy.
//	error - ErrUnknownStrategy or ErrNoGrammar.
func New(kind string, cfg Config) (Strategy, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}

	switch k {
	case KindMCTS:
		checker := cfg.Checker
		if checker == nil {
			checker = payload.NewJavaScriptChecker(cfg.Logger)
		}
		exploration := cfg.Exploration
		if exploration == nil {
			c := math.Sqrt2
			exploration = &c
		}
		return newMCTS(KindMCTS, cfg, exploration,
			payload.NewValidatingRollout(checker, cfg.RolloutCandidates)), nil
	case KindRandom:
		return newMCTS(KindRandom, cfg, nil,
			mcts.RandomRollout[payload.Node, score.Outcome]{}), nil
	case KindGreedy:
		return &Greedy{cfg: cfg}, nil
	default:
		return &QLearning{cfg: cfg}, nil
	}
}

// best tracks the best payload seen so far. Ties go to the latest find.
type best struct {
	wins    int
	payload string
	tokens  []int
	outcome score.Outcome
}

// offer adopts the candidate if it passes at least one test and at least as
// many as the current best. tokens is copied.
func (b *best) offer(candidate string, ids []int, outcome score.Outcome) bool {
	wins := outcome.Successes()
	if wins == 0 || wins < b.wins {
		return false
	}
	b.wins = wins
	b.payload = candidate
	b.tokens = append([]int(nil), ids...)
	b.outcome = outcome
	return true
}

func (b *best) discovery(calls *budget.CallBudget) Discovery {
	return Discovery{
		Found:    b.wins > 0,
		Payload:  b.payload,
		Tokens:   b.tokens,
		Outcome:  b.outcome,
		Calls:    calls.Used(),
		Duration: calls.Elapsed(),
	}
}

// chain is a token sequence grown from the grammar root.
type chain struct {
	tokens []*tokens.Token
	length int
}

func newChain(root *tokens.Token) chain {
	return chain{tokens: []*tokens.Token{root}, length: utf8.RuneCountInString(root.Value)}
}

func (c chain) last() *tokens.Token {
	return c.tokens[len(c.tokens)-1]
}

// extend returns a copy of c with tok appended.
func (c chain) extend(tok *tokens.Token) chain {
	next := make([]*tokens.Token, len(c.tokens), len(c.tokens)+1)
	copy(next, c.tokens)
	return chain{
		tokens: append(next, tok),
		length: c.length + utf8.RuneCountInString(tok.Value),
	}
}

func (c chain) payload() string {
	var b strings.Builder
	for _, tok := range c.tokens {
		b.WriteString(tok.Value)
	}
	return b.String()
}

func (c chain) ids() []int {
	ids := make([]int, len(c.tokens))
	for i, tok := range c.tokens {
		ids[i] = tok.ID
	}
	return ids
}

// done reports whether the chain is complete. For TokenLength the root
// token counts toward the length.
func (c chain) done(term payload.TerminalCondition, limit int) bool {
	if term == payload.TokenLength {
		return len(c.tokens) >= limit
	}
	return c.length >= limit
}

// stopped reports whether an invocation must end.
func stopped(ctx context.Context, calls *budget.CallBudget) bool {
	return ctx.Err() != nil || calls.Exhausted()
}
