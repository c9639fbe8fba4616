// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStringOverridesDefaults(t *testing.T) {
	cfg, err := ParseString(`
# comment
port 7000
requirepass hunter2
databases 4
appendonly yes
replicaof 10.0.0.1 6379
unknownfutureoption wat
`)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Port)
	require.Equal(t, "hunter2", cfg.RequirePass)
	require.Equal(t, 4, cfg.Databases)
	require.True(t, cfg.AppendOnly)
	require.Equal(t, "10.0.0.1 6379", cfg.ReplicaOf)
}

func TestEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load(nil, "", nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestAddrFormatting(t *testing.T) {
	cfg := Default()
	cfg.Bind = "0.0.0.0"
	cfg.Port = 6380
	require.Equal(t, "0.0.0.0:6380", cfg.Addr())
}
