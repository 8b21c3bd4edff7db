// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package payload specializes the generic search tree to token chains.
//
// A node holds one grammar token. The payload of a node is the
// concatenation of the token values from the grammar root down to it,
// including any tokens committed by earlier reroots.
package payload

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/polygen/services/polygen/mcts"
	"github.com/AleutianAI/polygen/services/polygen/oracle"
	"github.com/AleutianAI/polygen/services/polygen/score"
	"github.com/AleutianAI/polygen/services/polygen/tokens"
)

var (
	// ErrUnknownTerminalCondition is returned for an unrecognized terminal
	// condition name.
	ErrUnknownTerminalCondition = errors.New("unknown terminal condition")

	// ErrUnknownWinCalculation is returned for an unrecognized win
	// calculation name.
	ErrUnknownWinCalculation = errors.New("unknown win calculation")
)

// TerminalCondition decides when a chain stops growing.
type TerminalCondition int

const (
	// StringLength stops once the payload has at least max characters.
	StringLength TerminalCondition = iota

	// TokenLength stops once the node has at least max ancestors. The node
	// itself is not counted.
	TokenLength
)

// ParseTerminalCondition parses "string_length" or "token_length" in either
// case.
func ParseTerminalCondition(s string) (TerminalCondition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string_length":
		return StringLength, nil
	case "token_length":
		return TokenLength, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTerminalCondition, s)
}

// String returns the configuration name.
func (c TerminalCondition) String() string {
	switch c {
	case StringLength:
		return "string_length"
	case TokenLength:
		return "token_length"
	}
	return fmt.Sprintf("TerminalCondition(%d)", int(c))
}

// WinCalculation turns an accumulated outcome into a scalar win value.
type WinCalculation int

const (
	// WinSum is the fraction of active tests passed.
	WinSum WinCalculation = iota

	// WinDistEntropy is the entropy of the outcome against the root outcome.
	WinDistEntropy

	// WinDistCosSim is the cosine similarity to the root outcome.
	WinDistCosSim
)

// ParseWinCalculation parses "win_sum", "win_dist_entropy" or
// "win_dist_cossim" in either case.
func ParseWinCalculation(s string) (WinCalculation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "win_sum":
		return WinSum, nil
	case "win_dist_entropy":
		return WinDistEntropy, nil
	case "win_dist_cossim":
		return WinDistCosSim, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWinCalculation, s)
}

// String returns the configuration name.
func (w WinCalculation) String() string {
	switch w {
	case WinSum:
		return "win_sum"
	case WinDistEntropy:
		return "win_dist_entropy"
	case WinDistCosSim:
		return "win_dist_cossim"
	}
	return fmt.Sprintf("WinCalculation(%d)", int(w))
}

// Node is the per-node data of a token tree.
//
// Length and Position describe the chain ending at this node and are set
// when the node is created, so terminal checks do not walk the tree.
type Node struct {
	Token   *tokens.Token
	Outcome score.Outcome

	// Length is the payload length in characters, this token included.
	Length int

	// Position is the number of tokens before this one, counting the
	// grammar root and committed tokens.
	Position int

	// Prefix holds the tokens committed above a rerooted root. It is only
	// set on the tree root.
	Prefix []*tokens.Token
}

func (n Node) child(tok *tokens.Token) Node {
	return Node{
		Token:    tok,
		Length:   n.Length + utf8.RuneCountInString(tok.Value),
		Position: n.Position + 1,
	}
}

// Options configures a Model.
type Options struct {
	Terminal         TerminalCondition
	Win              WinCalculation
	MaxPayloadLength int
}

// Model implements mcts.Model for token chains.
//
// Thread Safety: Safe for concurrent use if the oracle is.
type Model struct {
	oracle oracle.Oracle
	opts   Options
}

var _ mcts.Model[Node, score.Outcome] = (*Model)(nil)

// NewModel creates a model that evaluates payloads with o.
func NewModel(o oracle.Oracle, opts Options) *Model {
	return &Model{oracle: o, opts: opts}
}

// Options returns the model options.
func (m *Model) Options() Options {
	return m.opts
}

// NewTree creates a tree rooted at the grammar root token.
func (m *Model) NewTree(root *tokens.Token) *mcts.Tree[Node] {
	return mcts.NewTree(Node{
		Token:   root,
		Outcome: m.oracle.EmptyOutcome(),
		Length:  utf8.RuneCountInString(root.Value),
	})
}

// Successors returns one child per successor token, each with an empty
// outcome for the oracle's current active set.
func (m *Model) Successors(t *mcts.Tree[Node], id mcts.NodeID) []Node {
	parent := t.Data(id)
	next := parent.Token.Next()
	if len(next) == 0 {
		return nil
	}
	empty := m.oracle.EmptyOutcome()
	out := make([]Node, len(next))
	for i, tok := range next {
		out[i] = parent.child(tok)
		out[i].Outcome = empty
	}
	return out
}

// Sample returns a random successor. Its outcome is left zero: rollout
// nodes are evaluated but never scored.
func (m *Model) Sample(t *mcts.Tree[Node], id mcts.NodeID, rng *rand.Rand) (Node, bool) {
	parent := t.Data(id)
	next := parent.Token.Next()
	if len(next) == 0 {
		return Node{}, false
	}
	return parent.child(next[rng.Intn(len(next))]), true
}

// IsTerminal implements mcts.Model.
func (m *Model) IsTerminal(t *mcts.Tree[Node], id mcts.NodeID) bool {
	n := t.Data(id)
	switch m.opts.Terminal {
	case StringLength:
		return n.Length >= m.opts.MaxPayloadLength
	case TokenLength:
		return n.Position >= m.opts.MaxPayloadLength
	}
	panic(fmt.Sprintf("payload: %v", m.opts.Terminal))
}

// Evaluate runs the payload of id against every active test.
func (m *Model) Evaluate(ctx context.Context, t *mcts.Tree[Node], id mcts.NodeID) score.Outcome {
	return m.oracle.TestAll(ctx, Payload(t, id))
}

// Merge combines outcome into the accumulated outcome of id.
func (m *Model) Merge(t *mcts.Tree[Node], id mcts.NodeID, outcome score.Outcome) {
	n := t.Data(id)
	n.Outcome = outcome.Combine(n.Outcome)
	t.SetData(id, n)
}

// Score implements mcts.Model. Entropy and cosine similarity are taken
// against the accumulated outcome of the current root.
func (m *Model) Score(t *mcts.Tree[Node], id mcts.NodeID) float64 {
	n := t.Data(id)
	switch m.opts.Win {
	case WinSum:
		return n.Outcome.WinSum()
	case WinDistEntropy:
		global := t.Data(t.Top(id)).Outcome
		return n.Outcome.EntropyScore(global, t.Visits(id) > 0)
	case WinDistCosSim:
		global := t.Data(t.Top(id)).Outcome
		return n.Outcome.CosSimScore(global)
	}
	panic(fmt.Sprintf("payload: %v", m.opts.Win))
}

// Chain returns the tokens from the grammar root down to id.
func Chain(t *mcts.Tree[Node], id mcts.NodeID) []*tokens.Token {
	path := t.Path(id)
	top := t.Data(path[0])
	chain := make([]*tokens.Token, 0, len(top.Prefix)+len(path))
	chain = append(chain, top.Prefix...)
	for _, p := range path {
		chain = append(chain, t.Data(p).Token)
	}
	return chain
}

// Payload returns the payload string of id.
func Payload(t *mcts.Tree[Node], id mcts.NodeID) string {
	var b strings.Builder
	for _, tok := range Chain(t, id) {
		b.WriteString(tok.Value)
	}
	return b.String()
}

// IDs returns the token ids from the grammar root down to id.
func IDs(t *mcts.Tree[Node], id mcts.NodeID) []int {
	chain := Chain(t, id)
	ids := make([]int, len(chain))
	for i, tok := range chain {
		ids[i] = tok.ID
	}
	return ids
}

// Reroot commits the chain down to id and makes id the new root.
//
// The tokens above id are kept as the new root's prefix, so payloads keep
// their committed start. Returns the new root id.
func Reroot(t *mcts.Tree[Node], id mcts.NodeID) mcts.NodeID {
	chain := Chain(t, id)
	root := t.Reroot(id)
	n := t.Data(root)
	n.Prefix = chain[:len(chain)-1]
	t.SetData(root, n)
	return root
}
