// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashValBasics(t *testing.T) {
	h := NewHashVal()
	require.True(t, h.Set("f1", "v1"))
	require.False(t, h.Set("f1", "v2"))

	v, ok := h.Get("f1")
	require.True(t, ok)
	require.Equal(t, "v2", v)

	require.Equal(t, 1, h.Len())
	require.True(t, h.Del("f1"))
	require.False(t, h.Del("f1"))
	require.Equal(t, 0, h.Len())
}
