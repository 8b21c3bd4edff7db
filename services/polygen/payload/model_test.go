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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/polygen/services/polygen/mcts"
	"github.com/AleutianAI/polygen/services/polygen/oracle"
	"github.com/AleutianAI/polygen/services/polygen/score"
	"github.com/AleutianAI/polygen/services/polygen/tokens"
)

func abcTokens(t *testing.T) *tokens.Compiled {
	t.Helper()
	c, err := tokens.Compile(tokens.Grammar{
		Name: "abc",
		Sets: []tokens.Set{
			{Name: "a", Values: []string{"a"}},
			{Name: "b", Values: []string{"b"}},
			{Name: "c", Values: []string{"cc"}},
		},
		Transitions: map[string][]string{"a": {"b", "c"}},
	})
	require.NoError(t, err)
	return c
}

// exactOracle passes "exact" for one payload and "prefix" for any payload
// that starts with it.
func exactOracle(t *testing.T, want string) oracle.Oracle {
	t.Helper()
	o, err := oracle.NewTable([]oracle.Test{
		{ID: "exact", Pass: func(p string) bool { return p == want }},
		{ID: "prefix", Pass: func(p string) bool { return strings.HasPrefix(p, want) }},
	}, nil)
	require.NoError(t, err)
	return o
}

func TestParseTerminalCondition(t *testing.T) {
	tests := []struct {
		in      string
		want    TerminalCondition
		wantErr bool
	}{
		{"string_length", StringLength, false},
		{"STRING_LENGTH", StringLength, false},
		{"token_length", TokenLength, false},
		{"TOKEN_LENGTH", TokenLength, false},
		{"depth", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTerminalCondition(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownTerminalCondition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, strings.ToLower(tt.in), got.String())
		})
	}
}

func TestParseWinCalculation(t *testing.T) {
	for _, name := range []string{"win_sum", "WIN_DIST_ENTROPY", "win_dist_cossim"} {
		w, err := ParseWinCalculation(name)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(name), w.String())
	}
	_, err := ParseWinCalculation("win_max")
	assert.ErrorIs(t, err, ErrUnknownWinCalculation)
}

func TestModel_SuccessorsCarryChainState(t *testing.T) {
	c := abcTokens(t)
	m := NewModel(exactOracle(t, "ab"), Options{Terminal: StringLength, MaxPayloadLength: 3})
	tree := m.NewTree(c.Root)

	children := tree.Expand(tree.Root(), m.Successors(tree, tree.Root()))
	require.Len(t, children, 3)

	a := children[0]
	assert.Equal(t, "a", Payload(tree, a))
	assert.Equal(t, 1, tree.Data(a).Length)
	assert.Equal(t, 1, tree.Data(a).Position)
	assert.Equal(t, "[0,0]", tree.Data(a).Outcome.String())

	grand := tree.Expand(a, m.Successors(tree, a))
	require.Len(t, grand, 2)
	assert.Equal(t, "acc", Payload(tree, grand[1]))
	assert.Equal(t, []int{0, 1, 3}, IDs(tree, grand[1]))
	assert.Equal(t, 3, tree.Data(grand[1]).Length)
}

func TestModel_StringLengthTerminal(t *testing.T) {
	c := abcTokens(t)
	m := NewModel(exactOracle(t, "ab"), Options{Terminal: StringLength, MaxPayloadLength: 2})
	tree := m.NewTree(c.Root)

	children := tree.Expand(tree.Root(), m.Successors(tree, tree.Root()))
	assert.False(t, m.IsTerminal(tree, children[0]), "a")
	assert.True(t, m.IsTerminal(tree, children[2]), "cc")
}

// TokenLength counts ancestors and not the node itself, so a chain of max
// real tokens is one short of terminal. This mirrors the historical
// behavior and differs from StringLength, which includes the node.
func TestModel_TokenLengthCountsAncestorsOnly(t *testing.T) {
	c := abcTokens(t)
	m := NewModel(exactOracle(t, "ab"), Options{Terminal: TokenLength, MaxPayloadLength: 2})
	tree := m.NewTree(c.Root)

	assert.False(t, m.IsTerminal(tree, tree.Root()))

	a := tree.Expand(tree.Root(), m.Successors(tree, tree.Root()))[0]
	assert.False(t, m.IsTerminal(tree, a), "one ancestor")

	b := tree.Expand(a, m.Successors(tree, a))[0]
	assert.Equal(t, 2, tree.Depth(b))
	assert.True(t, m.IsTerminal(tree, b), "two ancestors, two real tokens")
}

func TestModel_EvaluateAndMerge(t *testing.T) {
	c := abcTokens(t)
	m := NewModel(exactOracle(t, "ab"), Options{Terminal: StringLength, MaxPayloadLength: 2})
	tree := m.NewTree(c.Root)
	ctx := context.Background()

	a := tree.Expand(tree.Root(), m.Successors(tree, tree.Root()))[0]
	b := tree.Expand(a, m.Successors(tree, a))[0]

	out := m.Evaluate(ctx, tree, b)
	assert.Equal(t, "[1,1]", out.String())

	m.Merge(tree, a, out)
	tree.Visit(a)
	m.Merge(tree, a, m.Evaluate(ctx, tree, a))
	tree.Visit(a)

	assert.Equal(t, "[1,1]", tree.Data(a).Outcome.String())
	assert.InDelta(t, 1.0, m.Score(tree, a), 1e-9)
}

func TestModel_ScoreAgainstRoot(t *testing.T) {
	c := abcTokens(t)
	o := exactOracle(t, "ab")
	ctx := context.Background()

	for _, win := range []WinCalculation{WinDistEntropy, WinDistCosSim} {
		t.Run(win.String(), func(t *testing.T) {
			m := NewModel(o, Options{Terminal: StringLength, Win: win, MaxPayloadLength: 2})
			tree := m.NewTree(c.Root)
			a := tree.Expand(tree.Root(), m.Successors(tree, tree.Root()))[0]

			// Unexplored zero outcome.
			if win == WinDistEntropy {
				assert.InDelta(t, 0.6931, m.Score(tree, a), 1e-3)
			} else {
				assert.Zero(t, m.Score(tree, a))
			}

			hit := m.Evaluate(ctx, tree, tree.Expand(a, m.Successors(tree, a))[0])
			for _, id := range []mcts.NodeID{a, tree.Root()} {
				m.Merge(tree, id, hit)
				tree.Visit(id)
			}
			assert.Greater(t, m.Score(tree, a), 0.0)
		})
	}
}

func TestReroot_KeepsCommittedPrefix(t *testing.T) {
	c := abcTokens(t)
	m := NewModel(exactOracle(t, "ab"), Options{Terminal: StringLength, MaxPayloadLength: 4})
	tree := m.NewTree(c.Root)

	a := tree.Expand(tree.Root(), m.Successors(tree, tree.Root()))[0]
	children := tree.Expand(a, m.Successors(tree, a))
	require.Len(t, children, 2)

	root := Reroot(tree, a)
	assert.Equal(t, mcts.NodeID(0), root)
	assert.Equal(t, 3, tree.Len(), "a and its two children survive")
	assert.Equal(t, "a", Payload(tree, root))
	assert.Equal(t, []int{0, 1}, IDs(tree, root))

	b := tree.Children(root)[0]
	assert.Equal(t, "ab", Payload(tree, b))
	assert.Equal(t, []int{0, 1, 2}, IDs(tree, b))

	root = Reroot(tree, b)
	assert.Equal(t, "ab", Payload(tree, root))
	assert.Equal(t, 2, tree.Data(root).Position)
}

func TestValidatingRollout(t *testing.T) {
	c := abcTokens(t)
	m := NewModel(exactOracle(t, "ab"), Options{Terminal: StringLength, MaxPayloadLength: 4})

	t.Run("returns first valid candidate", func(t *testing.T) {
		tree := m.NewTree(c.Root)
		var seen int
		checker := SyntaxFunc(func(p string) bool {
			seen++
			return strings.HasPrefix(p, "b")
		})
		policy := NewValidatingRollout(checker, 500)

		last := policy.Simulate(context.Background(), tree, m, tree.Root(), rand.New(rand.NewSource(3)))
		assert.True(t, strings.HasPrefix(Payload(tree, last), "b"))
		assert.True(t, m.IsTerminal(tree, last))
		assert.Less(t, seen, 500)
	})

	t.Run("falls back to an invalid candidate", func(t *testing.T) {
		tree := m.NewTree(c.Root)
		var seen int
		checker := SyntaxFunc(func(string) bool {
			seen++
			return false
		})
		policy := NewValidatingRollout(checker, 10)

		last := policy.Simulate(context.Background(), tree, m, tree.Root(), rand.New(rand.NewSource(3)))
		assert.Equal(t, 10, seen)
		assert.True(t, tree.IsScratch(last))
		assert.True(t, m.IsTerminal(tree, last))
		assert.Len(t, Payload(tree, last), tree.Data(last).Length)
	})

	t.Run("terminal start is returned as is", func(t *testing.T) {
		short := NewModel(exactOracle(t, "ab"), Options{Terminal: StringLength, MaxPayloadLength: 0})
		tree := short.NewTree(c.Root)
		policy := NewValidatingRollout(SyntaxFunc(func(string) bool { return false }), 10)

		last := policy.Simulate(context.Background(), tree, short, tree.Root(), rand.New(rand.NewSource(1)))
		assert.Equal(t, tree.Root(), last)
	})
}

func TestJavaScriptChecker(t *testing.T) {
	checker := NewJavaScriptChecker(nil)
	ctx := context.Background()

	assert.True(t, checker.Valid(ctx, "console.log(`xss`)"))
	assert.True(t, checker.Valid(ctx, ""))
	assert.False(t, checker.Valid(ctx, "console.log(("))
	assert.False(t, checker.Valid(ctx, "var = 1"))
}

func TestEngine_FindsTargetPayload(t *testing.T) {
	c := abcTokens(t)
	o := exactOracle(t, "ab")
	m := NewModel(o, Options{Terminal: StringLength, Win: WinSum, MaxPayloadLength: 2})
	tree := m.NewTree(c.Root)
	engine := mcts.NewEngine[Node, score.Outcome](m, mcts.RandomRollout[Node, score.Outcome]{},
		mcts.WithExploration(1.41),
		mcts.WithRand(rand.New(rand.NewSource(11))),
	)

	found := false
	for i := 0; i < 200 && !found; i++ {
		res := engine.Step(context.Background(), tree, tree.Root())
		found = res.Outcome.Successes() == 2 && Payload(tree, res.Last) == "ab"
	}
	assert.True(t, found)
}
