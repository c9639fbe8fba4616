// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package script

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/resp"
)

// echoCaller fakes the dispatch bridge: it records every redis.call and
// replies with a canned value per command name.
func echoCaller(replies map[string]resp.Value, calls *[][]string) Caller {
	return func(ctx *dispatch.Context, argv [][]byte) resp.Value {
		call := make([]string, len(argv))
		for i, a := range argv {
			call[i] = string(a)
		}
		*calls = append(*calls, call)
		if v, ok := replies[call[0]]; ok {
			return v
		}
		return resp.OK()
	}
}

func TestEvalReturnsScriptValue(t *testing.T) {
	e := NewEngine(func(*dispatch.Context, [][]byte) resp.Value { return resp.OK() }, 16)

	got, err := e.Eval(nil, `return 42`, "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, resp.Int(42), got)

	got, err = e.Eval(nil, `return "hi"`, "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, resp.BulkFromString("hi"), got)

	got, err = e.Eval(nil, `return [1, "two", null]`, "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, resp.Arr(resp.Int(1), resp.BulkFromString("two"), resp.NullBulk()), got)
}

func TestEvalBindsKeysAndArgv(t *testing.T) {
	var calls [][]string
	e := NewEngine(echoCaller(nil, &calls), 16)

	_, err := e.Eval(nil, `redis.call("SET", KEYS[0], ARGV[0])`, "", []string{"k"}, []string{"v"})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"SET", "k", "v"}}, calls)
}

func TestEvalBridgeErrorPropagates(t *testing.T) {
	var calls [][]string
	replies := map[string]resp.Value{"GET": resp.Err("WRONGTYPE bad")}
	e := NewEngine(echoCaller(replies, &calls), 16)

	_, err := e.Eval(nil, `return redis.call("GET", "k")`, "", nil, nil)
	require.Error(t, err)

	// pcall swallows the error into a table instead of failing the script.
	got, err := e.Eval(nil, `var r = redis.pcall("GET", "k"); return r.err ? "caught" : "missed"`, "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, resp.BulkFromString("caught"), got)
}

func TestScriptCacheLoadExistsFlush(t *testing.T) {
	e := NewEngine(func(*dispatch.Context, [][]byte) resp.Value { return resp.OK() }, 16)

	sha := e.Load(`return 1`)
	require.Equal(t, Sha1Hex(`return 1`), sha)
	require.True(t, e.Exists(sha))

	got, err := e.Eval(nil, "", sha, nil, nil)
	require.NoError(t, err)
	require.Equal(t, resp.Int(1), got)

	e.Flush()
	require.False(t, e.Exists(sha))

	_, err = e.Eval(nil, "", sha, nil, nil)
	require.Error(t, err)
}

func TestEvalCachesBodyItRan(t *testing.T) {
	e := NewEngine(func(*dispatch.Context, [][]byte) resp.Value { return resp.OK() }, 16)
	body := `return 7`
	_, err := e.Eval(nil, body, "", nil, nil)
	require.NoError(t, err)
	require.True(t, e.Exists(Sha1Hex(body)))
}
