// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package reader // import "github.com/pensieve-profiler/pensieve-go/reader"

import (
	"fmt"

	"github.com/pensieve-profiler/pensieve-go/records"
)

// frameTable maps frame ids to frame contents. Writer-assigned ids are
// write-once. The table also mints ids for precise frames: copies of a
// pushed frame with the line number observed at an allocation, deduplicated
// by content so repeated allocations at the same source line reuse one id.
type frameTable struct {
	frames  map[records.FrameID]records.Frame
	precise map[records.Frame]records.FrameID
	nextID  records.FrameID
}

func newFrameTable() *frameTable {
	return &frameTable{
		frames:  make(map[records.FrameID]records.Frame),
		precise: make(map[records.Frame]records.FrameID),
		nextID:  records.SynthesizedFrameID,
	}
}

// define registers the contents of a writer-assigned frame id. Ids arrive
// before any use and never change, so a redefinition is a corrupt stream, as
// is an id inside the namespace reserved for synthesized frames.
func (t *frameTable) define(id records.FrameID, frame records.Frame) error {
	if id >= records.SynthesizedFrameID {
		return fmt.Errorf("%w: frame id %d in reserved namespace", records.ErrProtocol, id)
	}
	if _, dup := t.frames[id]; dup {
		return fmt.Errorf("%w: duplicate frame id %d", records.ErrProtocol, id)
	}
	t.frames[id] = frame
	return nil
}

// frame returns the contents registered for id.
func (t *frameTable) frame(id records.FrameID) (records.Frame, bool) {
	f, ok := t.frames[id]
	return f, ok
}

// preciseFor returns the id of the precise variant of frame id with its line
// number set to lineno, minting a synthesized id on first sight of that
// combination. The id must already be defined.
func (t *frameTable) preciseFor(id records.FrameID, lineno int) (records.FrameID, error) {
	frame, ok := t.frames[id]
	if !ok {
		return 0, fmt.Errorf("%w: allocation under undefined frame id %d", records.ErrProtocol, id)
	}
	frame.Lineno = lineno

	if preciseID, ok := t.precise[frame]; ok {
		return preciseID, nil
	}
	preciseID := t.nextID
	t.nextID++
	t.precise[frame] = preciseID
	t.frames[preciseID] = frame
	return preciseID, nil
}
