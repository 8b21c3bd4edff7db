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
	"fmt"
	"sort"
	"strings"
)

// RootID is the id of the synthetic root token.
const RootID = 0

// Token is one fragment in a compiled grammar.
//
// Tokens are created by Compile and never change afterwards. They are shared
// read-only between every chain that uses them.
type Token struct {
	ID    int
	Value string
	Set   string
	next  []*Token
}

// Next returns the tokens that may follow t. The slice must not be modified.
func (t *Token) Next() []*Token {
	return t.next
}

// String returns a short debug form.
func (t *Token) String() string {
	return fmt.Sprintf("%d:%q", t.ID, t.Value)
}

// Compiled is a grammar turned into a token graph.
type Compiled struct {
	Name   string
	Root   *Token
	Tokens []*Token
	BySet  map[string][]*Token
	sets   []string
}

// Compile builds the token graph for g.
//
// Description:
//
//	Ids are assigned from 1 in set declaration order, then value order. Each
//	token's successors are the tokens of its set's successor sets, in
//	transition order. Sets with no transitions may be followed by any token.
//	The root token has id 0, an empty value, and every token as successor.
//
// Inputs:
//
//	g - The grammar. It is validated first.
//
// Outputs:
//
//	*Compiled - The token graph.
//	error - Non-nil if the grammar is invalid.
//
// Thread Safety: The returned graph is immutable and safe to share.
func Compile(g Grammar) (*Compiled, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("compile grammar %q: %w", g.Name, err)
	}

	c := &Compiled{
		Name:  g.Name,
		BySet: make(map[string][]*Token, len(g.Sets)),
		sets:  g.SetNames(),
	}

	nextID := RootID + 1
	for _, s := range g.Sets {
		group := make([]*Token, 0, len(s.Values))
		for _, v := range s.Values {
			tok := &Token{ID: nextID, Value: v, Set: s.Name}
			nextID++
			group = append(group, tok)
			c.Tokens = append(c.Tokens, tok)
		}
		c.BySet[s.Name] = group
	}

	for _, s := range g.Sets {
		targets := g.Transitions[s.Name]
		if len(targets) == 0 {
			targets = c.sets
		}
		var next []*Token
		for _, name := range targets {
			next = append(next, c.BySet[name]...)
		}
		for _, tok := range c.BySet[s.Name] {
			tok.next = next
		}
	}

	c.Root = &Token{ID: RootID, Value: "", next: c.Tokens}
	return c, nil
}

// Lookup returns the token with the given id, including the root.
func (c *Compiled) Lookup(id int) (*Token, bool) {
	if id == RootID {
		return c.Root, true
	}
	if id < 1 || id > len(c.Tokens) {
		return nil, false
	}
	return c.Tokens[id-1], true
}

// Payload concatenates the values of the tokens with the given ids.
func (c *Compiled) Payload(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		tok, ok := c.Lookup(id)
		if !ok {
			return "", fmt.Errorf("unknown token id %d", id)
		}
		b.WriteString(tok.Value)
	}
	return b.String(), nil
}

// SetSummary describes one set of a compiled grammar.
type SetSummary struct {
	Name       string   `json:"name"`
	Tokens     int      `json:"tokens"`
	Successors int      `json:"successors"`
	Follows    []string `json:"follows"`
}

// Describe summarizes the compiled grammar in set declaration order.
func (c *Compiled) Describe() []SetSummary {
	out := make([]SetSummary, 0, len(c.sets))
	for _, name := range c.sets {
		group := c.BySet[name]
		s := SetSummary{Name: name, Tokens: len(group)}
		if len(group) > 0 {
			s.Successors = len(group[0].next)
			s.Follows = followedSets(group[0].next)
		}
		out = append(out, s)
	}
	return out
}

func followedSets(next []*Token) []string {
	seen := make(map[string]struct{})
	for _, t := range next {
		seen[t.Set] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
