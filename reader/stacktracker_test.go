// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pensieve-profiler/pensieve-go/records"
)

func TestStackTracker(t *testing.T) {
	tracker := newStackTracker()

	assert.Nil(t, tracker.stack(1))

	tracker.push(1, 10)
	tracker.push(1, 11)
	tracker.push(2, 20)
	assert.Equal(t, []records.FrameID{10, 11}, tracker.stack(1))
	assert.Equal(t, []records.FrameID{20}, tracker.stack(2))

	require.NoError(t, tracker.pop(1))
	assert.Equal(t, []records.FrameID{10}, tracker.stack(1))
	assert.Equal(t, []records.FrameID{20}, tracker.stack(2))

	require.NoError(t, tracker.pop(1))
	assert.Empty(t, tracker.stack(1))
}

func TestStackTrackerPopEmpty(t *testing.T) {
	tracker := newStackTracker()

	err := tracker.pop(7)
	require.ErrorIs(t, err, records.ErrProtocol)
	assert.ErrorContains(t, err, "frame pop for thread 7")

	tracker.push(7, 1)
	require.NoError(t, tracker.pop(7))
	err = tracker.pop(7)
	require.ErrorIs(t, err, records.ErrProtocol)
}
