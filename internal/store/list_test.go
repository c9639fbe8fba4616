// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListValPushPop(t *testing.T) {
	l := NewListVal()
	l.PushRight([]byte("a"))
	l.PushRight([]byte("b"))
	l.PushLeft([]byte("z"))
	require.Equal(t, 3, l.Len())

	v, ok := l.PopLeft()
	require.True(t, ok)
	require.Equal(t, "z", string(v))

	v, ok = l.PopRight()
	require.True(t, ok)
	require.Equal(t, "b", string(v))

	require.Equal(t, 1, l.Len())
}

func TestListValRangeAndTrim(t *testing.T) {
	l := NewListVal()
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		l.PushRight([]byte(s))
	}
	got := l.Range(1, -2)
	require.Equal(t, []string{"b", "c", "d"}, bytesToStrings(got))

	l.Trim(1, -2)
	require.Equal(t, 3, l.Len())
	require.Equal(t, []string{"b", "c", "d"}, bytesToStrings(l.All()))
}

func TestListValRemoveMatching(t *testing.T) {
	l := NewListVal()
	for _, s := range []string{"a", "x", "a", "x", "a"} {
		l.PushRight([]byte(s))
	}
	removed := l.RemoveMatching(2, []byte("a"))
	require.Equal(t, 2, removed)
	require.Equal(t, []string{"x", "x", "a"}, bytesToStrings(l.All()))
}

func TestListValInsertBeforeAfter(t *testing.T) {
	l := NewListVal()
	l.PushRight([]byte("a"))
	l.PushRight([]byte("c"))
	require.True(t, l.InsertBeforeAfter(true, []byte("c"), []byte("b")))
	require.Equal(t, []string{"a", "b", "c"}, bytesToStrings(l.All()))
	require.False(t, l.InsertBeforeAfter(false, []byte("zzz"), []byte("q")))
}

func bytesToStrings(bs [][]byte) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}
