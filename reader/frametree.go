// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package reader // import "github.com/pensieve-profiler/pensieve-go/reader"

import (
	"cmp"
	"slices"

	"github.com/pensieve-profiler/pensieve-go/records"
)

// frameTree deduplicates call stacks. It is a trie over frame ids stored as
// a flat arena of nodes addressed by records.TraceIndex, so a whole stack is
// identified by the index of its deepest node and stacks sharing a prefix
// share the prefix's node chain. The arena is append-only: an index, once
// issued, stays valid and immutable for the lifetime of the tree.
type frameTree struct {
	nodes []treeNode
}

type treeNode struct {
	frameID records.FrameID
	parent  records.TraceIndex
	// children is kept sorted by frame id for binary search.
	children []treeEdge
}

type treeEdge struct {
	frameID records.FrameID
	index   records.TraceIndex
}

// newFrameTree returns a tree holding only the reserved root node 0, which
// represents the empty stack and is never handed out as a real node.
func newFrameTree() *frameTree {
	return &frameTree{nodes: make([]treeNode, 1)}
}

// indexFor returns the index of the node representing stack, creating any
// missing nodes along the way. The stack is ordered bottom (outermost frame)
// first. The empty stack maps to 0.
func (t *frameTree) indexFor(stack []records.FrameID) records.TraceIndex {
	index := records.TraceIndex(0)
	for _, id := range stack {
		index = t.childOf(index, id)
	}
	return index
}

// indexForWithTop is indexFor for stack with its deepest entry replaced by
// top, leaving stack itself untouched.
func (t *frameTree) indexForWithTop(stack []records.FrameID, top records.FrameID) records.TraceIndex {
	index := t.indexFor(stack[:len(stack)-1])
	return t.childOf(index, top)
}

// childOf returns the child of parent carrying id, appending a fresh node if
// none exists yet.
func (t *frameTree) childOf(parent records.TraceIndex, id records.FrameID) records.TraceIndex {
	children := t.nodes[parent].children
	at, found := slices.BinarySearchFunc(children, id, func(e treeEdge, id records.FrameID) int {
		return cmp.Compare(e.frameID, id)
	})
	if found {
		return children[at].index
	}

	index := records.TraceIndex(len(t.nodes))
	t.nodes = append(t.nodes, treeNode{frameID: id, parent: parent})
	p := &t.nodes[parent]
	p.children = slices.Insert(p.children, at, treeEdge{frameID: id, index: index})
	return index
}

// nodeAt returns the frame id and parent index of the node at index. The
// root and out-of-range indices report ok == false.
func (t *frameTree) nodeAt(index records.TraceIndex) (records.FrameID, records.TraceIndex, bool) {
	if index == 0 || int(index) >= len(t.nodes) {
		return 0, 0, false
	}
	n := &t.nodes[index]
	return n.frameID, n.parent, true
}
