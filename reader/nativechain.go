// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package reader // import "github.com/pensieve-profiler/pensieve-go/reader"

import "github.com/pensieve-profiler/pensieve-go/records"

// nativeChain accumulates native trace index records. Entry n of the stream
// is addressed as n+1 so that 0 can mean "no native trace": each entry links
// to its caller through Next using the same addressing, with 0 terminating
// the chain.
type nativeChain struct {
	frames []records.UnresolvedNativeFrame
}

func (c *nativeChain) append(f records.UnresolvedNativeFrame) {
	c.frames = append(c.frames, f)
}

// at returns the chain entry addressed by index, or ok == false for 0 and
// indices past the end of the chain.
func (c *nativeChain) at(index uint64) (records.UnresolvedNativeFrame, bool) {
	if index == 0 || index > uint64(len(c.frames)) {
		return records.UnresolvedNativeFrame{}, false
	}
	return c.frames[index-1], true
}
