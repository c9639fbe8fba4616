// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetValAddRemove(t *testing.T) {
	s := NewSetVal()
	require.True(t, s.Add("a"))
	require.False(t, s.Add("a"))
	require.Equal(t, 1, s.Len())
	require.True(t, s.Has("a"))
	require.True(t, s.Remove("a"))
	require.False(t, s.Remove("a"))
}

func TestSetAlgebra(t *testing.T) {
	a := NewSetVal()
	a.Add("x")
	a.Add("y")
	b := NewSetVal()
	b.Add("y")
	b.Add("z")

	u := Union(a, b)
	require.ElementsMatch(t, []string{"x", "y", "z"}, sortedMembers(u))

	i := Inter(a, b)
	require.Equal(t, []string{"y"}, sortedMembers(i))

	d := Diff(a, b)
	require.Equal(t, []string{"x"}, sortedMembers(d))
}

func sortedMembers(s *SetVal) []string {
	m := s.Members()
	sort.Strings(m)
	return m
}
