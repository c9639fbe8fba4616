// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package script implements EVAL/EVALSHA with a goja JavaScript
// runtime standing in for the reference server's Lua
// sandbox: one fresh goja.Runtime per invocation, a redis.call bridge
// that re-enters the dispatch table, and a SHA1-keyed LRU cache of
// loaded bodies for SCRIPT LOAD/EXISTS/EVALSHA.
package script

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/dop251/goja"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/resp"
)

// Caller re-enters the command dispatcher for redis.call/pcall from
// inside a script body. The server injects a wrapper around
// dispatch.Table.Dispatch (command.BindScriptEngine) that refuses
// FlagNoScript commands, rather than this package importing the
// concrete table wiring.
type Caller func(ctx *dispatch.Context, argv [][]byte) resp.Value

// Engine owns the script-body cache shared by every connection's
// EVAL/EVALSHA/SCRIPT calls.
type Engine struct {
	cache *lru.Cache[string, string]
	call  Caller
}

func NewEngine(call Caller, cacheSize int) *Engine {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, _ := lru.New[string, string](cacheSize)
	return &Engine{cache: c, call: call}
}

func Sha1Hex(body string) string {
	sum := sha1.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Load registers body under its SHA1 digest and returns the digest
// (SCRIPT LOAD, and EVAL's implicit caching of the body it just ran).
func (e *Engine) Load(body string) string {
	sha := Sha1Hex(body)
	e.cache.Add(sha, body)
	return sha
}

func (e *Engine) Exists(sha string) bool {
	_, ok := e.cache.Get(sha)
	return ok
}

func (e *Engine) Flush() { e.cache.Purge() }

func (e *Engine) bodyForSha(sha string) (string, bool) {
	return e.cache.Get(sha)
}

// Eval runs body (or the body cached under sha when body is empty)
// against keys/argv, with redis.call(...) dispatching through ctx.
// FlagNoScript-tagged commands (blocking pops, MULTI/EXEC/SUBSCRIBE,
// and scripting itself) are refused from inside the bridge so a script
// can never re-enter its own transaction machinery.
func (e *Engine) Eval(ctx *dispatch.Context, body string, sha string, keys, argv []string) (resp.Value, error) {
	if body == "" {
		cached, ok := e.bodyForSha(sha)
		if !ok {
			return resp.Value{}, ferrors.New(ferrors.KindErr, "NOSCRIPT No matching script. Please use EVAL.")
		}
		body = cached
	} else {
		e.Load(body)
	}

	vm := goja.New()
	vm.Set("KEYS", keys)
	vm.Set("ARGV", argv)

	redisObj := vm.NewObject()
	bridge := func(call goja.FunctionCall) goja.Value {
		argv := make([][]byte, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			argv = append(argv, []byte(a.String()))
		}
		if len(argv) == 0 {
			panic(vm.NewGoError(fmt.Errorf("ERR redis.call requires at least one argument")))
		}
		out := e.call(ctx, argv)
		if out.Kind == resp.Error {
			panic(vm.NewGoError(fmt.Errorf("%s", out.Str)))
		}
		return vm.ToValue(valueToGoja(out))
	}
	redisObj.Set("call", bridge)
	redisObj.Set("pcall", func(call goja.FunctionCall) (ret goja.Value) {
		defer func() {
			if r := recover(); r != nil {
				ret = vm.ToValue(map[string]any{"err": fmt.Sprint(r)})
			}
		}()
		return bridge(call)
	})
	vm.Set("redis", redisObj)

	// Bodies are written like the reference server's scripts: a
	// statement list ending in an optional top-level return. JavaScript
	// only allows return inside a function, so the body runs wrapped in
	// an immediately-invoked one; a body with no return yields
	// undefined, which converts to a null bulk.
	v, err := vm.RunString("(function(){\n" + body + "\n})()")
	if err != nil {
		return resp.Value{}, ferrors.Errorf(ferrors.KindErr, "Error running script: %s", err.Error())
	}
	return gojaToValue(v), nil
}

func valueToGoja(v resp.Value) any {
	switch v.Kind {
	case resp.SimpleString:
		return v.Str
	case resp.Integer:
		return v.Int
	case resp.Bulk:
		if v.BulkIsNull {
			return nil
		}
		return string(v.Bulk)
	case resp.Array:
		if v.ArrayIsNull {
			return nil
		}
		out := make([]any, len(v.Items))
		for i, it := range v.Items {
			out[i] = valueToGoja(it)
		}
		return out
	default:
		return nil
	}
}

// gojaToValue converts a script's return value back to RESP, following
// the reference server's Lua conversion table as closely as a
// JavaScript value model allows: numbers truncate to integers, strings
// stay bulk strings, arrays recurse, nil/undefined becomes a null bulk.
func gojaToValue(v goja.Value) resp.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return resp.NullBulk()
	}
	exported := v.Export()
	return exportedToValue(exported)
}

func exportedToValue(x any) resp.Value {
	switch t := x.(type) {
	case nil:
		return resp.NullBulk()
	case bool:
		if !t {
			return resp.NullBulk()
		}
		return resp.Int(1)
	case int64:
		return resp.Int(t)
	case float64:
		return resp.Int(int64(t))
	case string:
		return resp.BulkFromString(t)
	case []any:
		items := make([]resp.Value, len(t))
		for i, e := range t {
			items[i] = exportedToValue(e)
		}
		return resp.ArrSlice(items)
	case map[string]any:
		if errMsg, ok := t["err"]; ok {
			return resp.Err(fmt.Sprint(errMsg))
		}
		if okMsg, ok := t["ok"]; ok {
			return resp.Simple(fmt.Sprint(okMsg))
		}
		return resp.NullBulk()
	default:
		return resp.BulkFromString(fmt.Sprint(t))
	}
}
