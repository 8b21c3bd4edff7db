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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTree(t *testing.T) {
	tree := NewTree("root")

	assert.Equal(t, NodeID(0), tree.Root())
	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, NoNode, tree.Parent(tree.Root()))
	assert.False(t, tree.Expanded(tree.Root()))
	assert.Equal(t, 0, tree.Visits(tree.Root()))
}

func TestTree_ExpandIsIdempotent(t *testing.T) {
	tree := NewTree("")
	first := tree.Expand(tree.Root(), []string{"a", "b"})
	second := tree.Expand(tree.Root(), []string{"x", "y", "z"})

	assert.Equal(t, first, second)
	assert.Equal(t, 3, tree.Len())
	assert.Equal(t, "b", tree.Data(first[1]))
	assert.Equal(t, tree.Root(), tree.Parent(first[0]))
}

func TestTree_ExpandEmptyMarksExpanded(t *testing.T) {
	tree := NewTree("")
	children := tree.Expand(tree.Root(), nil)

	assert.Empty(t, children)
	assert.True(t, tree.Expanded(tree.Root()))
}

func TestTree_PathAndDepth(t *testing.T) {
	tree := NewTree("r")
	a := tree.Expand(tree.Root(), []string{"a"})[0]
	b := tree.Expand(a, []string{"b"})[0]

	assert.Equal(t, []NodeID{tree.Root(), a, b}, tree.Path(b))
	assert.Equal(t, 2, tree.Depth(b))
	assert.Equal(t, 0, tree.Depth(tree.Root()))
	assert.Equal(t, tree.Root(), tree.Top(b))
}

func TestTree_ScratchLifecycle(t *testing.T) {
	tree := NewTree("r")
	a := tree.Expand(tree.Root(), []string{"a"})[0]

	s1 := tree.AddScratch(a, "s1")
	s2 := tree.AddScratch(s1, "s2")

	assert.True(t, tree.IsScratch(s2))
	assert.False(t, tree.IsScratch(a))
	assert.Equal(t, []NodeID{tree.Root(), a, s1, s2}, tree.Path(s2))
	assert.Empty(t, tree.Children(a), "scratch nodes are not children")
	assert.Equal(t, []string{"s1", "s2"}, ScratchChain(tree, a, s2))

	assert.Panics(t, func() { tree.Expand(a, []string{"x"}) })

	mark := tree.ScratchMark()
	tree.AddScratch(a, "s3")
	tree.TruncateScratch(mark)
	assert.Equal(t, 4, tree.Len())

	tree.DiscardScratch()
	assert.Equal(t, 2, tree.Len())

	last := Replay(tree, a, []string{"p", "q"})
	assert.Equal(t, "q", tree.Data(last))
	assert.Equal(t, 2, tree.Depth(last)-tree.Depth(a))
}

func TestTree_RerootCompacts(t *testing.T) {
	tree := NewTree("r")
	kids := tree.Expand(tree.Root(), []string{"a", "b"})
	aKids := tree.Expand(kids[0], []string{"aa", "ab"})
	tree.Expand(kids[1], []string{"ba", "bb", "bc"})
	tree.Expand(aKids[1], []string{"aba"})
	tree.Visit(kids[0])
	tree.Visit(kids[0])
	tree.AddScratch(aKids[0], "scratch")

	root := tree.Reroot(kids[0])

	require.Equal(t, NodeID(0), root)
	assert.Equal(t, 4, tree.Len())
	assert.Equal(t, "a", tree.Data(root))
	assert.Equal(t, 2, tree.Visits(root))
	assert.Equal(t, NoNode, tree.Parent(root))

	var values []string
	for _, id := range tree.Subtree(root) {
		values = append(values, tree.Data(id))
		assert.Equal(t, root, tree.Top(id))
	}
	assert.Equal(t, []string{"a", "aa", "ab", "aba"}, values)

	children := tree.Children(root)
	require.Len(t, children, 2)
	assert.Equal(t, root, tree.Parent(children[1]))
	assert.Equal(t, "aba", tree.Data(tree.Children(children[1])[0]))
}

func TestTree_RerootRejectsScratch(t *testing.T) {
	tree := NewTree("r")
	s := tree.AddScratch(tree.Root(), "s")
	assert.Panics(t, func() { tree.Reroot(s) })
}

func TestTree_OutOfRangePanics(t *testing.T) {
	tree := NewTree("r")
	assert.Panics(t, func() { tree.Data(5) })
	assert.Panics(t, func() { tree.Parent(NoNode) })
}

func TestRollout_StopsAtTerminal(t *testing.T) {
	m := &letterModel{alphabet: []string{"x"}, maxLen: 4}
	tree := NewTree(strNode{})

	last := Rollout[strNode, float64](tree, m, tree.Root(), rand.New(rand.NewSource(1)))

	assert.Equal(t, "xxxx", m.payload(tree, last))
	assert.Equal(t, 5, tree.Len())
}
