// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamValAppendAndNextID(t *testing.T) {
	s := NewStreamVal()
	id1, err := s.NextID("*", 1000)
	require.NoError(t, err)
	require.Equal(t, StreamID{Ms: 1000, Seq: 0}, id1)
	s.Append(id1, []StreamField{{Field: "f", Value: "v"}})

	id2, err := s.NextID("*", 1000)
	require.NoError(t, err)
	require.Equal(t, StreamID{Ms: 1000, Seq: 1}, id2)
	s.Append(id2, nil)

	require.Equal(t, 2, s.Len())
	require.Equal(t, id2, s.LastID())
}

func TestStreamValNextIDRejectsNonMonotonic(t *testing.T) {
	s := NewStreamVal()
	id1, _ := s.NextID("*", 1000)
	s.Append(id1, nil)

	_, err := s.NextID("500-0", 0)
	require.Error(t, err)

	id3, err := s.NextID("2000-0", 0)
	require.NoError(t, err)
	require.Equal(t, StreamID{Ms: 2000, Seq: 0}, id3)
}

func TestStreamValRangeAndTrim(t *testing.T) {
	s := NewStreamVal()
	var ids []StreamID
	for i := uint64(1); i <= 5; i++ {
		id := StreamID{Ms: i, Seq: 0}
		s.Append(id, []StreamField{{Field: "n", Value: "x"}})
		ids = append(ids, id)
	}
	got := s.Range(MinStreamID, MaxStreamID, 0)
	require.Len(t, got, 5)

	rev := s.RevRange(MinStreamID, MaxStreamID, 2)
	require.Len(t, rev, 2)
	require.Equal(t, ids[4], rev[0].ID)

	removed := s.Trim(3)
	require.Equal(t, 2, removed)
	require.Equal(t, 3, s.Len())
}

func TestStreamValConsumerGroups(t *testing.T) {
	s := NewStreamVal()
	id1, _ := s.NextID("*", 1)
	s.Append(id1, nil)
	id2, _ := s.NextID("*", 2)
	s.Append(id2, nil)

	require.True(t, s.CreateGroup("g1", MinStreamID))
	require.False(t, s.CreateGroup("g1", MinStreamID))

	g, ok := s.Group("g1")
	require.True(t, ok)

	delivered := s.ReadGroup(g, "c1", 10, 5000)
	require.Len(t, delivered, 2)
	require.Len(t, g.Pending, 2)

	acked := s.Ack(g, []StreamID{id1})
	require.Equal(t, 1, acked)
	require.Len(t, g.Pending, 1)

	require.True(t, s.DestroyGroup("g1"))
	require.False(t, s.DestroyGroup("g1"))
}
