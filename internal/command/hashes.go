// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import (
	"strings"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/resp"
	"github.com/ferrousdb/ferrous/internal/store"
)

func registerHashes(t *dispatch.Table) {
	t.Register(dispatch.Spec{Name: "HSET", Arity: -4, Flags: dispatch.FlagWrite, Handler: cmdHSet})
	t.Register(dispatch.Spec{Name: "HSETNX", Arity: 4, Flags: dispatch.FlagWrite, Handler: cmdHSetNX})
	t.Register(dispatch.Spec{Name: "HGET", Arity: 3, Flags: dispatch.FlagReadonly, Handler: cmdHGet})
	t.Register(dispatch.Spec{Name: "HDEL", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdHDel})
	t.Register(dispatch.Spec{Name: "HEXISTS", Arity: 3, Flags: dispatch.FlagReadonly, Handler: cmdHExists})
	t.Register(dispatch.Spec{Name: "HLEN", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdHLen})
	t.Register(dispatch.Spec{Name: "HKEYS", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdHKeys})
	t.Register(dispatch.Spec{Name: "HVALS", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdHVals})
	t.Register(dispatch.Spec{Name: "HGETALL", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdHGetAll})
	t.Register(dispatch.Spec{Name: "HMSET", Arity: -4, Flags: dispatch.FlagWrite, Handler: cmdHMSet})
	t.Register(dispatch.Spec{Name: "HMGET", Arity: -3, Flags: dispatch.FlagReadonly, Handler: cmdHMGet})
	t.Register(dispatch.Spec{Name: "HINCRBY", Arity: 4, Flags: dispatch.FlagWrite, Handler: cmdHIncrBy})
	t.Register(dispatch.Spec{Name: "HINCRBYFLOAT", Arity: 4, Flags: dispatch.FlagWrite, Handler: cmdHIncrByFloat})
	t.Register(dispatch.Spec{Name: "HSCAN", Arity: -3, Flags: dispatch.FlagReadonly, Handler: cmdHScan})
}

func cmdHIncrByFloat(ctx *dispatch.Context, args [][]byte) resp.Value {
	delta, ok := store.ParseStrictFloat64(string(args[2]))
	if !ok {
		return resp.Err(ferrors.ErrNotFloat.Error())
	}
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeHash, func() any { return store.NewHashVal() })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		hv := e.Val.(*store.HashVal)
		cur := 0.0
		if s, exists := hv.Get(string(args[1])); exists {
			n, ok := store.ParseStrictFloat64(s)
			if !ok {
				out = resp.Err(ferrors.ErrNotFloat.Error())
				return nil
			}
			cur = n
		}
		sum := cur + delta
		hv.Set(string(args[1]), formatFloat(sum))
		tx.MutateDone(key, e, false)
		out = resp.BulkFromString(formatFloat(sum))
		return nil
	})
	return out
}

// cmdHScan is HSCAN's non-cursor-stable form: since a hash's full field
// set is always materialized in one pass, it returns everything in a
// single page and reports cursor "0" (scan complete), so a full scan
// trivially visits every field present.
func cmdHScan(ctx *dispatch.Context, args [][]byte) resp.Value {
	pattern := "*"
	for i := 2; i < len(args); i++ {
		if strings.EqualFold(string(args[i]), "MATCH") && i+1 < len(args) {
			pattern = string(args[i+1])
			i++
			continue
		}
		if strings.EqualFold(string(args[i]), "COUNT") && i+1 < len(args) {
			i++
			continue
		}
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeHash)
		if err != nil || !ok {
			out = resp.Arr(resp.BulkFromString("0"), resp.ArrSlice(nil))
			return nil
		}
		hv := e.Val.(*store.HashVal)
		var items []resp.Value
		for k, v := range hv.All() {
			if pattern != "*" && !store.MatchGlob(pattern, k) {
				continue
			}
			items = append(items, resp.BulkFromString(k), resp.BulkFromString(v))
		}
		out = resp.Arr(resp.BulkFromString("0"), resp.ArrSlice(items))
		return nil
	})
	return out
}

func cmdHSet(ctx *dispatch.Context, args [][]byte) resp.Value {
	if (len(args)-1)%2 != 0 {
		return resp.Err(ferrors.WrongArity("hset").Error())
	}
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeHash, func() any { return store.NewHashVal() })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		hv := e.Val.(*store.HashVal)
		added := 0
		for i := 1; i < len(args); i += 2 {
			if hv.Set(string(args[i]), string(args[i+1])) {
				added++
			}
		}
		tx.MutateDone(key, e, hv.Len() == 0)
		out = resp.Int(int64(added))
		return nil
	})
	return out
}

func cmdHSetNX(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeHash, func() any { return store.NewHashVal() })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		hv := e.Val.(*store.HashVal)
		if _, exists := hv.Get(string(args[1])); exists {
			out = resp.Int(0)
			return nil
		}
		hv.Set(string(args[1]), string(args[2]))
		tx.MutateDone(key, e, false)
		out = resp.Int(1)
		return nil
	})
	return out
}

func cmdHGet(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeHash)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.NullBulk()
			return nil
		}
		v, exists := e.Val.(*store.HashVal).Get(string(args[1]))
		if !exists {
			out = resp.NullBulk()
			return nil
		}
		out = resp.BulkFromString(v)
		return nil
	})
	return out
}

func cmdHDel(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeHash)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		hv := e.Val.(*store.HashVal)
		removed := 0
		for _, f := range args[1:] {
			if hv.Del(string(f)) {
				removed++
			}
		}
		tx.MutateDone(key, e, hv.Len() == 0)
		out = resp.Int(int64(removed))
		return nil
	})
	return out
}

func cmdHExists(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeHash)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		_, exists := e.Val.(*store.HashVal).Get(string(args[1]))
		if exists {
			out = resp.Int(1)
		} else {
			out = resp.Int(0)
		}
		return nil
	})
	return out
}

func cmdHLen(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeHash)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		out = resp.Int(int64(e.Val.(*store.HashVal).Len()))
		return nil
	})
	return out
}

func cmdHKeys(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeHash)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		out = membersToArr(e.Val.(*store.HashVal).Keys())
		return nil
	})
	return out
}

func cmdHVals(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeHash)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		out = membersToArr(e.Val.(*store.HashVal).Values())
		return nil
	})
	return out
}

func cmdHGetAll(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeHash)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		all := e.Val.(*store.HashVal).All()
		items := make([]resp.Value, 0, len(all)*2)
		for k, v := range all {
			items = append(items, resp.BulkFromString(k), resp.BulkFromString(v))
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

func cmdHMSet(ctx *dispatch.Context, args [][]byte) resp.Value {
	if (len(args)-1)%2 != 0 {
		return resp.Err(ferrors.WrongArity("hmset").Error())
	}
	v := cmdHSet(ctx, args)
	if v.Kind == resp.Error {
		return v
	}
	return resp.OK()
}

func cmdHMGet(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeHash)
		items := make([]resp.Value, len(args)-1)
		if err != nil || !ok {
			for i := range items {
				items[i] = resp.NullBulk()
			}
			out = resp.ArrSlice(items)
			return nil
		}
		hv := e.Val.(*store.HashVal)
		for i, f := range args[1:] {
			v, exists := hv.Get(string(f))
			if !exists {
				items[i] = resp.NullBulk()
				continue
			}
			items[i] = resp.BulkFromString(v)
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

func cmdHIncrBy(ctx *dispatch.Context, args [][]byte) resp.Value {
	delta, ok := store.ParseStrictInt64(string(args[2]))
	if !ok {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeHash, func() any { return store.NewHashVal() })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		hv := e.Val.(*store.HashVal)
		cur := int64(0)
		if s, exists := hv.Get(string(args[1])); exists {
			n, ok := store.ParseStrictInt64(s)
			if !ok {
				out = resp.Err(ferrors.ErrNotInt.Error())
				return nil
			}
			cur = n
		}
		sum, overflow := store.SafeAddInt64(cur, delta)
		if overflow {
			out = resp.Err("ERR increment or decrement would overflow")
			return nil
		}
		hv.Set(string(args[1]), itoaInt64(sum))
		tx.MutateDone(key, e, false)
		out = resp.Int(sum)
		return nil
	})
	return out
}
