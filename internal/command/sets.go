// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import (
	"strings"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/resp"
	"github.com/ferrousdb/ferrous/internal/store"
)

func registerSets(t *dispatch.Table) {
	t.Register(dispatch.Spec{Name: "SADD", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdSAdd})
	t.Register(dispatch.Spec{Name: "SREM", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdSRem})
	t.Register(dispatch.Spec{Name: "SISMEMBER", Arity: 3, Flags: dispatch.FlagReadonly, Handler: cmdSIsMember})
	t.Register(dispatch.Spec{Name: "SCARD", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdSCard})
	t.Register(dispatch.Spec{Name: "SMEMBERS", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdSMembers})
	t.Register(dispatch.Spec{Name: "SUNION", Arity: -2, Flags: dispatch.FlagReadonly, Handler: cmdSUnion})
	t.Register(dispatch.Spec{Name: "SINTER", Arity: -2, Flags: dispatch.FlagReadonly, Handler: cmdSInter})
	t.Register(dispatch.Spec{Name: "SDIFF", Arity: -2, Flags: dispatch.FlagReadonly, Handler: cmdSDiff})
	t.Register(dispatch.Spec{Name: "SUNIONSTORE", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdSUnionStore})
	t.Register(dispatch.Spec{Name: "SINTERSTORE", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdSInterStore})
	t.Register(dispatch.Spec{Name: "SDIFFSTORE", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdSDiffStore})
	t.Register(dispatch.Spec{Name: "SPOP", Arity: -2, Flags: dispatch.FlagWrite, Handler: cmdSPop})
	t.Register(dispatch.Spec{Name: "SRANDMEMBER", Arity: -2, Flags: dispatch.FlagReadonly, Handler: cmdSRandMember})
	t.Register(dispatch.Spec{Name: "SSCAN", Arity: -3, Flags: dispatch.FlagReadonly, Handler: cmdSScan})
}

func cmdSScan(ctx *dispatch.Context, args [][]byte) resp.Value {
	pattern := "*"
	for i := 2; i < len(args); i++ {
		if strings.EqualFold(string(args[i]), "MATCH") && i+1 < len(args) {
			pattern = string(args[i+1])
			i++
			continue
		}
		if strings.EqualFold(string(args[i]), "COUNT") && i+1 < len(args) {
			i++
		}
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeSet)
		if err != nil || !ok {
			out = resp.Arr(resp.BulkFromString("0"), resp.ArrSlice(nil))
			return nil
		}
		sv := e.Val.(*store.SetVal)
		var items []resp.Value
		for _, m := range sv.Members() {
			if pattern != "*" && !store.MatchGlob(pattern, m) {
				continue
			}
			items = append(items, resp.BulkFromString(m))
		}
		out = resp.Arr(resp.BulkFromString("0"), resp.ArrSlice(items))
		return nil
	})
	return out
}

func cmdSRandMember(ctx *dispatch.Context, args [][]byte) resp.Value {
	hasCount := len(args) > 1
	count := 1
	if hasCount {
		n, ok := store.ParseStrictInt64(string(args[1]))
		if !ok {
			return resp.Err(ferrors.ErrNotInt.Error())
		}
		count = int(n)
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			if hasCount {
				out = resp.ArrSlice(nil)
			} else {
				out = resp.NullBulk()
			}
			return nil
		}
		members := e.Val.(*store.SetVal).Members()
		if !hasCount {
			if len(members) == 0 {
				out = resp.NullBulk()
				return nil
			}
			out = resp.BulkFromString(members[0])
			return nil
		}
		if count < 0 {
			// negative count: allow repeats, exactly -count picks
			n := -count
			items := make([]resp.Value, 0, n)
			for i := 0; i < n && len(members) > 0; i++ {
				items = append(items, resp.BulkFromString(members[i%len(members)]))
			}
			out = resp.ArrSlice(items)
			return nil
		}
		if count > len(members) {
			count = len(members)
		}
		out = membersToArr(members[:count])
		return nil
	})
	return out
}

func cmdSAdd(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeSet, func() any { return store.NewSetVal() })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		sv := e.Val.(*store.SetVal)
		added := 0
		for _, m := range args[1:] {
			if sv.Add(string(m)) {
				added++
			}
		}
		tx.MutateDone(key, e, sv.Len() == 0)
		out = resp.Int(int64(added))
		return nil
	})
	return out
}

func cmdSRem(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		sv := e.Val.(*store.SetVal)
		removed := 0
		for _, m := range args[1:] {
			if sv.Remove(string(m)) {
				removed++
			}
		}
		tx.MutateDone(key, e, sv.Len() == 0)
		out = resp.Int(int64(removed))
		return nil
	})
	return out
}

func cmdSIsMember(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok || !e.Val.(*store.SetVal).Has(string(args[1])) {
			out = resp.Int(0)
			return nil
		}
		out = resp.Int(1)
		return nil
	})
	return out
}

func cmdSCard(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		out = resp.Int(int64(e.Val.(*store.SetVal).Len()))
		return nil
	})
	return out
}

func cmdSMembers(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		out = membersToArr(e.Val.(*store.SetVal).Members())
		return nil
	})
	return out
}

func membersToArr(members []string) resp.Value {
	items := make([]resp.Value, len(members))
	for i, m := range members {
		items[i] = resp.BulkFromString(m)
	}
	return resp.ArrSlice(items)
}

func (c *cmdCtx) loadSets(keys [][]byte) []*store.SetVal {
	out := make([]*store.SetVal, len(keys))
	for i, k := range keys {
		e, ok, err := c.tx.LookupTyped(string(k), store.TypeSet)
		if err != nil || !ok {
			out[i] = store.NewSetVal()
			continue
		}
		out[i] = e.Val.(*store.SetVal)
	}
	return out
}

// cmdCtx bundles a Tx for the small set-algebra helpers above, which
// need to look up several keys under one transaction.
type cmdCtx struct {
	tx *store.Tx
}

func setAlgebra(ctx *dispatch.Context, keys [][]byte, combine func(sets []*store.SetVal) *store.SetVal) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		cc := &cmdCtx{tx: tx}
		result := combine(cc.loadSets(keys))
		out = membersToArr(result.Members())
		return nil
	})
	return out
}

func cmdSUnion(ctx *dispatch.Context, args [][]byte) resp.Value {
	return setAlgebra(ctx, args, func(sets []*store.SetVal) *store.SetVal { return store.Union(sets...) })
}

func cmdSInter(ctx *dispatch.Context, args [][]byte) resp.Value {
	return setAlgebra(ctx, args, func(sets []*store.SetVal) *store.SetVal { return store.Inter(sets...) })
}

func cmdSDiff(ctx *dispatch.Context, args [][]byte) resp.Value {
	return setAlgebra(ctx, args, func(sets []*store.SetVal) *store.SetVal { return store.Diff(sets...) })
}

func setAlgebraStore(ctx *dispatch.Context, dest string, keys [][]byte, combine func(sets []*store.SetVal) *store.SetVal) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		cc := &cmdCtx{tx: tx}
		result := combine(cc.loadSets(keys))
		if result.Len() == 0 {
			tx.Delete(dest)
			out = resp.Int(0)
			return nil
		}
		tx.Put(dest, &store.Entry{Val: result, Type: store.TypeSet})
		e, _ := tx.Entry(dest)
		tx.MutateDone(dest, e, false)
		out = resp.Int(int64(result.Len()))
		return nil
	})
	return out
}

func cmdSUnionStore(ctx *dispatch.Context, args [][]byte) resp.Value {
	return setAlgebraStore(ctx, string(args[0]), args[1:], func(sets []*store.SetVal) *store.SetVal { return store.Union(sets...) })
}

func cmdSInterStore(ctx *dispatch.Context, args [][]byte) resp.Value {
	return setAlgebraStore(ctx, string(args[0]), args[1:], func(sets []*store.SetVal) *store.SetVal { return store.Inter(sets...) })
}

func cmdSDiffStore(ctx *dispatch.Context, args [][]byte) resp.Value {
	return setAlgebraStore(ctx, string(args[0]), args[1:], func(sets []*store.SetVal) *store.SetVal { return store.Diff(sets...) })
}

func cmdSPop(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	count := 1
	hasCount := len(args) > 1
	if hasCount {
		n, ok := store.ParseStrictInt64(string(args[1]))
		if !ok || n < 0 {
			return resp.Err("ERR value is out of range, must be positive")
		}
		count = int(n)
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			if hasCount {
				out = resp.ArrSlice(nil)
			} else {
				out = resp.NullBulk()
			}
			return nil
		}
		sv := e.Val.(*store.SetVal)
		var popped []string
		for _, m := range sv.Members() {
			if len(popped) >= count {
				break
			}
			sv.Remove(m)
			popped = append(popped, m)
		}
		tx.MutateDone(key, e, sv.Len() == 0)
		if !hasCount {
			if len(popped) == 0 {
				out = resp.NullBulk()
			} else {
				out = resp.BulkFromString(popped[0])
			}
			return nil
		}
		out = membersToArr(popped)
		return nil
	})
	return out
}
