// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package reader // import "github.com/pensieve-profiler/pensieve-go/reader"

import (
	"github.com/pensieve-profiler/pensieve-go/records"
	"github.com/pensieve-profiler/pensieve-go/symbols"
)

// WalkPythonStack materializes the Python stack behind an allocation's trace
// index, deepest frame first, stopping after maxDepth frames. Each frame's
// Lineno is the line that was executing in it: the allocation's line for the
// deepest frame and the call site of the callee for every caller above it.
//
// The walk only reads interned state, so it can run any number of times for
// the same index, after the source is closed, and concurrently with other
// walks. It must not run concurrently with NextAllocation.
func (r *Reader) WalkPythonStack(index records.TraceIndex, maxDepth int) []records.Frame {
	var stack []records.Frame
	lineno := -1
	for index != 0 && len(stack) < maxDepth {
		id, parent, ok := r.tree.nodeAt(index)
		if !ok {
			break
		}
		frame, ok := r.frames.frame(id)
		if !ok {
			// The producer pushed an id it never defined. The frames below
			// it are unknowable, so the walk ends here.
			break
		}
		if lineno >= 0 {
			frame.Lineno = lineno
		}
		stack = append(stack, frame)
		lineno = frame.CallerLineno
		index = parent
	}
	return stack
}

// WalkNativeStack resolves the native stack starting at the given chain
// index, innermost frame first, using the segment mappings of generation
// gen. Inlined functions expand to one frame each, so the result can exceed
// the number of chain entries; maxDepth bounds the chain entries visited,
// not the frames returned, and entries whose address cannot be resolved
// count against it like any other.
//
// Like WalkPythonStack this is a read-only traversal and safe to repeat.
func (r *Reader) WalkNativeStack(index uint64, gen records.Generation, maxDepth int) []symbols.ResolvedFrame {
	var stack []symbols.ResolvedFrame
	for steps := 0; index != 0 && steps < maxDepth; steps++ {
		entry, ok := r.chain.at(index)
		if !ok {
			// Dangling link. Nothing sensible can follow it.
			break
		}
		index = entry.Next
		frames, ok := r.symbols.Resolve(entry.IP, gen)
		if !ok {
			continue
		}
		stack = append(stack, frames...)
	}
	return stack
}
