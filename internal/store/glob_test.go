// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "anything", true},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h[ae]llo", "hello", true},
		{"h[ae]llo", "hillo", false},
		{"h[^ae]llo", "hillo", true},
		{"h[a-c]llo", "hbllo", true},
		{"foo*bar", "foobazbar", true},
		{"foo*bar", "foobaz", false},
		{`\*literal`, "*literal", true},
		{"exact", "exact", true},
		{"exact", "exacter", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, MatchGlob(c.pattern, c.s), "pattern=%q s=%q", c.pattern, c.s)
	}
}
