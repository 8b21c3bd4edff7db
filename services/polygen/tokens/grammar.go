// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tokens compiles fragment grammars into token graphs.
//
// A Grammar is a list of named sets of literal fragments plus a transition
// table between set names. Compile turns it into a graph of immutable Tokens
// where every token knows which tokens may follow it. A synthetic root token
// with an empty value precedes every chain.
//
// Set order matters: token ids are assigned in set declaration order, and
// wildcard transitions expand to every set in that same order. Loaders keep
// the document order of the sets mapping for that reason.
package tokens

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyGrammar is returned when a grammar declares no sets.
	ErrEmptyGrammar = errors.New("grammar declares no sets")

	// ErrDuplicateSet is returned when two sets share a name.
	ErrDuplicateSet = errors.New("duplicate set name")

	// ErrUnknownSet is returned when a transition targets an undeclared set.
	ErrUnknownSet = errors.New("transition targets unknown set")

	// ErrUnknownGrammar is returned by Builtin for unrecognized names.
	ErrUnknownGrammar = errors.New("unknown grammar")
)

// Set is a named group of interchangeable fragments.
type Set struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Grammar describes the fragment sets and which sets may follow which.
//
// An empty or missing transition list for a set means any set may follow it.
// Transition entries for sets that are not declared are ignored.
type Grammar struct {
	Name        string              `json:"name"`
	Sets        []Set               `json:"sets"`
	Transitions map[string][]string `json:"transitions"`
}

// Validate checks the grammar for structural problems.
//
// Outputs:
//
//	error - Non-nil if the grammar is empty, declares a set twice, or a
//	        declared set transitions to an unknown set.
func (g *Grammar) Validate() error {
	if len(g.Sets) == 0 {
		return ErrEmptyGrammar
	}
	declared := make(map[string]struct{}, len(g.Sets))
	for _, s := range g.Sets {
		if _, ok := declared[s.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateSet, s.Name)
		}
		declared[s.Name] = struct{}{}
	}
	for _, s := range g.Sets {
		for _, next := range g.Transitions[s.Name] {
			if _, ok := declared[next]; !ok {
				return fmt.Errorf("%w: %q -> %q", ErrUnknownSet, s.Name, next)
			}
		}
	}
	return nil
}

// SetNames returns the set names in declaration order.
func (g *Grammar) SetNames() []string {
	names := make([]string, len(g.Sets))
	for i, s := range g.Sets {
		names[i] = s.Name
	}
	return names
}

// NoGrammar returns a copy of g in which every set may follow every set.
func NoGrammar(g Grammar) Grammar {
	out := Grammar{
		Name:        g.Name + "-no-grammar",
		Sets:        make([]Set, len(g.Sets)),
		Transitions: map[string][]string{},
	}
	for i, s := range g.Sets {
		out.Sets[i] = Set{Name: s.Name, Values: append([]string(nil), s.Values...)}
	}
	return out
}
