// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZSetValSetAndRank(t *testing.T) {
	z := NewZSetVal()
	require.True(t, z.Set("a", 1))
	require.True(t, z.Set("b", 2))
	require.True(t, z.Set("c", 3))
	require.False(t, z.Set("b", 5)) // update, not new

	require.Equal(t, 0, z.Rank("a"))
	require.Equal(t, 2, z.Rank("b")) // now scores a=1,c=3,b=5
	require.Equal(t, -1, z.Rank("zzz"))
}

func TestZSetValRangeByScore(t *testing.T) {
	z := NewZSetVal()
	z.Set("a", 1)
	z.Set("b", 2)
	z.Set("c", 3)

	got := z.RangeByScore(2, 3, false, false)
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].member)
	require.Equal(t, "c", got[1].member)

	got = z.RangeByScore(1, 3, true, true)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].member)
}

func TestZSetValRangeByRankReverse(t *testing.T) {
	z := NewZSetVal()
	z.Set("a", 1)
	z.Set("b", 2)
	z.Set("c", 3)

	got := z.RangeByRank(0, -1, true)
	require.Len(t, got, 3)
	require.Equal(t, "c", got[0].member)
	require.Equal(t, "a", got[2].member)
}

func TestZSetValPopMinMax(t *testing.T) {
	z := NewZSetVal()
	z.Set("a", 1)
	z.Set("b", 2)
	z.Set("c", 3)

	min := z.PopMin(1)
	require.Len(t, min, 1)
	require.Equal(t, "a", min[0].member)

	max := z.PopMax(1)
	require.Len(t, max, 1)
	require.Equal(t, "c", max[0].member)

	require.Equal(t, 1, z.Len())
}

func TestZSetValRangeByLex(t *testing.T) {
	z := NewZSetVal()
	for _, m := range []string{"a", "b", "c", "d"} {
		z.Set(m, 0)
	}
	got := z.RangeByLex("b", "c", false, false, false, false)
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].member)
	require.Equal(t, "c", got[1].member)
}
