// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package reader // import "github.com/pensieve-profiler/pensieve-go/reader"

import (
	"fmt"

	"github.com/pensieve-profiler/pensieve-go/records"
)

// stackTracker replays frame push and pop records into one simulated Python
// call stack per thread.
type stackTracker struct {
	stacks map[uint64][]records.FrameID
}

func newStackTracker() *stackTracker {
	return &stackTracker{stacks: make(map[uint64][]records.FrameID)}
}

// push appends id to the stack of tid, creating the stack on first sight of
// the thread.
func (t *stackTracker) push(tid uint64, id records.FrameID) {
	t.stacks[tid] = append(t.stacks[tid], id)
}

// pop removes the deepest entry of the stack of tid. A pop for an unknown
// thread or an already empty stack means the writer and reader disagree
// about the stack state, which is unrecoverable.
func (t *stackTracker) pop(tid uint64) error {
	stack := t.stacks[tid]
	if len(stack) == 0 {
		return fmt.Errorf("%w: frame %s for thread %d with empty stack",
			records.ErrProtocol, records.FramePop, tid)
	}
	t.stacks[tid] = stack[:len(stack)-1]
	return nil
}

// stack returns the current stack of tid, bottom first. Threads that never
// pushed a frame report a nil stack. The returned slice aliases the tracker
// state and must not be retained across further push or pop calls.
func (t *stackTracker) stack(tid uint64) []records.FrameID {
	return t.stacks[tid]
}
