// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStrictInt64(t *testing.T) {
	ok := []string{"0", "-1", "123", "-123456789"}
	for _, s := range ok {
		_, valid := ParseStrictInt64(s)
		require.True(t, valid, "expected %q to parse", s)
	}
	bad := []string{"", "+1", "01", "1.0", " 1", "1 ", "abc", "--1"}
	for _, s := range bad {
		_, valid := ParseStrictInt64(s)
		require.False(t, valid, "expected %q to be rejected", s)
	}
}

func TestSafeAddInt64Overflow(t *testing.T) {
	_, overflow := SafeAddInt64(minInt64, -1)
	require.True(t, overflow)

	sum, overflow := SafeAddInt64(10, 20)
	require.False(t, overflow)
	require.Equal(t, int64(30), sum)

	_, overflow = SafeAddInt64(1<<62, 1<<62)
	require.True(t, overflow)
}

func TestSafeSubInt64Overflow(t *testing.T) {
	_, overflow := SafeSubInt64(minInt64, 1)
	require.True(t, overflow)

	diff, overflow := SafeSubInt64(10, 3)
	require.False(t, overflow)
	require.Equal(t, int64(7), diff)
}

func TestParseStrictFloat64(t *testing.T) {
	f, ok := ParseStrictFloat64("3.14")
	require.True(t, ok)
	require.InDelta(t, 3.14, f, 1e-9)

	f, ok = ParseStrictFloat64("+inf")
	require.True(t, ok)
	require.True(t, f > 0)

	_, ok = ParseStrictFloat64("nan")
	require.False(t, ok)
}
