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

import "fmt"

// NodeID addresses a node inside a Tree.
//
// Ids are only valid for the tree that issued them and only until the next
// Reroot, which renumbers the surviving nodes.
type NodeID int

// NoNode is the parent of a root or detached node.
const NoNode NodeID = -1

type entry[T any] struct {
	parent   NodeID
	children []NodeID
	expanded bool
	visits   int
	data     T
}

// Tree is an arena of search nodes.
//
// Parent and child links are ids into the arena, so detaching a node is a
// plain field update. Rollout nodes live in a scratch region at the end of
// the arena: they link to their parent but are never listed as children,
// and DiscardScratch drops them all at once.
//
// Thread Safety: Not safe for concurrent use. The engine owns the tree for
// the duration of a step.
type Tree[T any] struct {
	nodes       []entry[T]
	root        NodeID
	scratchFrom int
}

// NewTree creates a tree holding a single root node.
func NewTree[T any](rootData T) *Tree[T] {
	t := &Tree[T]{
		nodes: []entry[T]{{parent: NoNode, data: rootData}},
		root:  0,
	}
	t.scratchFrom = len(t.nodes)
	return t
}

// Root returns the current root.
func (t *Tree[T]) Root() NodeID {
	return t.root
}

// Len returns the number of nodes in the arena, scratch nodes included.
func (t *Tree[T]) Len() int {
	return len(t.nodes)
}

// Data returns the payload of a node.
func (t *Tree[T]) Data(id NodeID) T {
	return t.at(id).data
}

// SetData replaces the payload of a node.
func (t *Tree[T]) SetData(id NodeID, data T) {
	t.at(id).data = data
}

// Parent returns the parent of a node, or NoNode.
func (t *Tree[T]) Parent(id NodeID) NodeID {
	return t.at(id).parent
}

// Children returns the children of a node. The slice must not be modified.
func (t *Tree[T]) Children(id NodeID) []NodeID {
	return t.at(id).children
}

// Expanded reports whether the children of a node have been materialized.
func (t *Tree[T]) Expanded(id NodeID) bool {
	return t.at(id).expanded
}

// Visits returns how often a node has been backpropagated through.
func (t *Tree[T]) Visits(id NodeID) int {
	return t.at(id).visits
}

// Visit increments the visit count of a node.
func (t *Tree[T]) Visit(id NodeID) {
	t.at(id).visits++
}

// Expand materializes one child per item. It is a no-op on an expanded node.
//
// Outputs:
//
//	[]NodeID - The children of id, new or existing.
//
// Panics if called while scratch nodes exist, since children must never be
// appended behind the scratch region.
func (t *Tree[T]) Expand(id NodeID, items []T) []NodeID {
	e := t.at(id)
	if e.expanded {
		return e.children
	}
	if t.scratchFrom != len(t.nodes) {
		panic("mcts: expand with live scratch nodes")
	}
	children := make([]NodeID, len(items))
	for i, item := range items {
		children[i] = NodeID(len(t.nodes))
		t.nodes = append(t.nodes, entry[T]{parent: id, data: item})
	}
	// Re-fetch: append may have moved the arena.
	e = t.at(id)
	e.children = children
	e.expanded = true
	t.scratchFrom = len(t.nodes)
	return children
}

// AddScratch appends a rollout node linked to parent.
//
// The node is not listed among parent's children and is removed by the
// next DiscardScratch or Reroot.
func (t *Tree[T]) AddScratch(parent NodeID, data T) NodeID {
	t.at(parent)
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, entry[T]{parent: parent, data: data})
	return id
}

// ScratchMark returns a mark that TruncateScratch can rewind to.
func (t *Tree[T]) ScratchMark() int {
	return len(t.nodes)
}

// TruncateScratch drops scratch nodes created after mark.
func (t *Tree[T]) TruncateScratch(mark int) {
	if mark < t.scratchFrom {
		mark = t.scratchFrom
	}
	if mark < len(t.nodes) {
		clear(t.nodes[mark:])
		t.nodes = t.nodes[:mark]
	}
}

// DiscardScratch drops every scratch node.
func (t *Tree[T]) DiscardScratch() {
	t.TruncateScratch(t.scratchFrom)
}

// IsScratch reports whether id is a rollout node.
func (t *Tree[T]) IsScratch(id NodeID) bool {
	return int(id) >= t.scratchFrom
}

// Depth returns the number of ancestors of a node, excluding itself.
func (t *Tree[T]) Depth(id NodeID) int {
	depth := 0
	for p := t.at(id).parent; p != NoNode; p = t.at(p).parent {
		depth++
	}
	return depth
}

// Path returns the ids from the topmost ancestor down to id.
func (t *Tree[T]) Path(id NodeID) []NodeID {
	var path []NodeID
	for cur := id; cur != NoNode; cur = t.at(cur).parent {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Top returns the topmost ancestor of id.
func (t *Tree[T]) Top(id NodeID) NodeID {
	cur := id
	for p := t.at(cur).parent; p != NoNode; p = t.at(p).parent {
		cur = p
	}
	return cur
}

// Detach clears the parent link of a node.
func (t *Tree[T]) Detach(id NodeID) {
	t.at(id).parent = NoNode
}

// Reroot promotes id to root and drops every node not below it.
//
// Description:
//
//	The new root is detached from its parent, then the arena is compacted to
//	the subtree under it. Surviving nodes are renumbered in breadth-first
//	order, so the new root is always 0. Scratch nodes are dropped.
//
// Inputs:
//
//	id - A non-scratch node of this tree.
//
// Outputs:
//
//	NodeID - The id of the new root after compaction.
func (t *Tree[T]) Reroot(id NodeID) NodeID {
	if t.IsScratch(id) {
		panic("mcts: cannot reroot onto a scratch node")
	}
	t.Detach(id)

	order := t.Subtree(id)
	remap := make(map[NodeID]NodeID, len(order))
	for i, old := range order {
		remap[old] = NodeID(i)
	}

	nodes := make([]entry[T], len(order))
	for i, old := range order {
		e := t.nodes[old]
		if e.parent != NoNode {
			e.parent = remap[e.parent]
		}
		if e.children != nil {
			children := make([]NodeID, len(e.children))
			for j, c := range e.children {
				children[j] = remap[c]
			}
			e.children = children
		}
		nodes[i] = e
	}

	t.nodes = nodes
	t.root = 0
	t.scratchFrom = len(t.nodes)
	return t.root
}

// Subtree returns id and every materialized descendant in breadth-first
// order. Scratch nodes are not included.
func (t *Tree[T]) Subtree(id NodeID) []NodeID {
	order := []NodeID{id}
	for i := 0; i < len(order); i++ {
		order = append(order, t.at(order[i]).children...)
	}
	return order
}

func (t *Tree[T]) at(id NodeID) *entry[T] {
	if id < 0 || int(id) >= len(t.nodes) {
		panic(fmt.Sprintf("mcts: node %d out of range [0,%d)", id, len(t.nodes)))
	}
	return &t.nodes[id]
}
