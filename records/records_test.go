// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordTypeString(t *testing.T) {
	assert.Equal(t, "uninitialized", RecordTypeUninitialized.String())
	assert.Equal(t, "allocation", RecordTypeAllocation.String())
	assert.Equal(t, "segment_header", RecordTypeSegmentHeader.String())
	assert.Equal(t, "segment", RecordTypeSegment.String())
	assert.Equal(t, "unknown", RecordType(0xaa).String())
}

func TestFrameActionString(t *testing.T) {
	assert.Equal(t, "push", FramePush.String())
	assert.Equal(t, "pop", FramePop.String())
	assert.Equal(t, "invalid", FrameAction(7).String())
}
