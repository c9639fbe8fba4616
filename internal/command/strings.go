// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package command implements every command handler group, registered
// into a dispatch.Table by Register.
package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/resp"
	"github.com/ferrousdb/ferrous/internal/store"
)

func registerStrings(t *dispatch.Table) {
	t.Register(dispatch.Spec{Name: "GET", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdGet})
	t.Register(dispatch.Spec{Name: "SET", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdSet})
	t.Register(dispatch.Spec{Name: "SETNX", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdSetNX})
	t.Register(dispatch.Spec{Name: "GETSET", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdGetSet})
	t.Register(dispatch.Spec{Name: "APPEND", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdAppend})
	t.Register(dispatch.Spec{Name: "STRLEN", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdStrlen})
	t.Register(dispatch.Spec{Name: "INCR", Arity: 2, Flags: dispatch.FlagWrite, Handler: cmdIncr})
	t.Register(dispatch.Spec{Name: "DECR", Arity: 2, Flags: dispatch.FlagWrite, Handler: cmdDecr})
	t.Register(dispatch.Spec{Name: "INCRBY", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdIncrBy})
	t.Register(dispatch.Spec{Name: "DECRBY", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdDecrBy})
	t.Register(dispatch.Spec{Name: "GETRANGE", Arity: 4, Flags: dispatch.FlagReadonly, Handler: cmdGetRange})
	t.Register(dispatch.Spec{Name: "SETRANGE", Arity: 4, Flags: dispatch.FlagWrite, Handler: cmdSetRange})
	t.Register(dispatch.Spec{Name: "MGET", Arity: -2, Flags: dispatch.FlagReadonly, Handler: cmdMGet})
	t.Register(dispatch.Spec{Name: "MSET", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdMSet})
	t.Register(dispatch.Spec{Name: "MSETNX", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdMSetNX})
	t.Register(dispatch.Spec{Name: "SETEX", Arity: 4, Flags: dispatch.FlagWrite, Handler: cmdSetEX})
	t.Register(dispatch.Spec{Name: "PSETEX", Arity: 4, Flags: dispatch.FlagWrite, Handler: cmdPSetEX})
	t.Register(dispatch.Spec{Name: "INCRBYFLOAT", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdIncrByFloat})
	t.Register(dispatch.Spec{Name: "GETDEL", Arity: 2, Flags: dispatch.FlagWrite, Handler: cmdGetDel})
	t.Register(dispatch.Spec{Name: "COPY", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdCopy})
}

func setEXCommon(ctx *dispatch.Context, args [][]byte, unit time.Duration) resp.Value {
	n, ok := store.ParseStrictInt64(string(args[1]))
	if !ok || n <= 0 {
		return resp.Err("ERR invalid expire time in 'setex' command")
	}
	key := string(args[0])
	ctx.RunTx(func(tx *store.Tx) error {
		tx.Put(key, &store.Entry{Val: store.NewStringVal(args[2]), Type: store.TypeString})
		e, _ := tx.Entry(key)
		tx.MutateDone(key, e, false)
		tx.SetExpire(key, tx.Now().Add(time.Duration(n)*unit))
		return nil
	})
	return resp.OK()
}

func cmdSetEX(ctx *dispatch.Context, args [][]byte) resp.Value {
	return setEXCommon(ctx, args, time.Second)
}

func cmdPSetEX(ctx *dispatch.Context, args [][]byte) resp.Value {
	return setEXCommon(ctx, args, time.Millisecond)
}

func cmdMSetNX(ctx *dispatch.Context, args [][]byte) resp.Value {
	if len(args)%2 != 0 {
		return resp.Err(ferrors.WrongArity("msetnx").Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		for i := 0; i < len(args); i += 2 {
			if tx.Exists(string(args[i])) {
				out = resp.Int(0)
				return nil
			}
		}
		for i := 0; i < len(args); i += 2 {
			key := string(args[i])
			tx.Put(key, &store.Entry{Val: store.NewStringVal(args[i+1]), Type: store.TypeString})
			e, _ := tx.Entry(key)
			tx.MutateDone(key, e, false)
		}
		out = resp.Int(1)
		return nil
	})
	return out
}

func cmdIncrByFloat(ctx *dispatch.Context, args [][]byte) resp.Value {
	delta, ok := store.ParseStrictFloat64(string(args[1]))
	if !ok {
		return resp.Err(ferrors.ErrNotFloat.Error())
	}
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeString, func() any { return store.NewStringVal([]byte("0")) })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		sv := e.Val.(*store.StringVal)
		cur, ok := store.ParseStrictFloat64(string(sv.Bytes))
		if !ok {
			out = resp.Err(ferrors.ErrNotFloat.Error())
			return nil
		}
		sum := cur + delta
		sv.Bytes = []byte(formatFloat(sum))
		tx.MutateDone(key, e, false)
		out = resp.BulkString(sv.Bytes)
		return nil
	})
	return out
}

func cmdGetDel(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeString)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.NullBulk()
			return nil
		}
		out = resp.BulkString(e.Val.(*store.StringVal).Bytes)
		tx.Delete(key)
		return nil
	})
	return out
}

func cmdCopy(ctx *dispatch.Context, args [][]byte) resp.Value {
	src, dst := string(args[0]), string(args[1])
	replace := false
	for i := 2; i < len(args); i++ {
		if strings.EqualFold(string(args[i]), "REPLACE") {
			replace = true
			continue
		}
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok := tx.Lookup(src)
		if !ok {
			out = resp.Int(0)
			return nil
		}
		if tx.Exists(dst) && !replace {
			out = resp.Int(0)
			return nil
		}
		tx.Put(dst, e.Clone())
		d, _ := tx.Entry(dst)
		tx.MutateDone(dst, d, false)
		if !e.ExpireAt.IsZero() {
			tx.SetExpire(dst, e.ExpireAt)
		}
		out = resp.Int(1)
		return nil
	})
	return out
}

func cmdGet(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeString)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.NullBulk()
			return nil
		}
		out = resp.BulkString(e.Val.(*store.StringVal).Bytes)
		return nil
	})
	return out
}

func cmdSet(ctx *dispatch.Context, args [][]byte) resp.Value {
	key, val := string(args[0]), args[1]
	var nx, xx, keepTTL bool
	var expireDur time.Duration
	hasExpire := false

	for i := 2; i < len(args); i++ {
		opt := strings.ToUpper(string(args[i]))
		switch opt {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "KEEPTTL":
			keepTTL = true
		case "EX", "PX":
			if i+1 >= len(args) {
				return resp.Err(ferrors.ErrSyntax.Error())
			}
			i++
			n, ok := store.ParseStrictInt64(string(args[i]))
			if !ok {
				return resp.Err(ferrors.ErrNotInt.Error())
			}
			hasExpire = true
			if opt == "EX" {
				expireDur = time.Duration(n) * time.Second
			} else {
				expireDur = time.Duration(n) * time.Millisecond
			}
		default:
			return resp.Err(ferrors.ErrSyntax.Error())
		}
	}
	if nx && xx {
		return resp.Err(ferrors.ErrSyntax.Error())
	}

	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		_, exists := tx.Lookup(key)
		if nx && exists {
			out = resp.NullBulk()
			return nil
		}
		if xx && !exists {
			out = resp.NullBulk()
			return nil
		}
		var prevExpire time.Time
		if keepTTL {
			if e, ok := tx.Entry(key); ok {
				prevExpire = e.ExpireAt
			}
		}
		tx.Put(key, &store.Entry{Val: store.NewStringVal(val), Type: store.TypeString})
		e, _ := tx.Entry(key)
		tx.MutateDone(key, e, false)
		if hasExpire {
			tx.SetExpire(key, tx.Now().Add(expireDur))
		} else if keepTTL && !prevExpire.IsZero() {
			tx.SetExpire(key, prevExpire)
		}
		out = resp.OK()
		return nil
	})
	return out
}

func cmdSetNX(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		if tx.Exists(key) {
			out = resp.Int(0)
			return nil
		}
		tx.Put(key, &store.Entry{Val: store.NewStringVal(args[1]), Type: store.TypeString})
		e, _ := tx.Entry(key)
		tx.MutateDone(key, e, false)
		out = resp.Int(1)
		return nil
	})
	return out
}

func cmdGetSet(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeString)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if ok {
			out = resp.BulkString(e.Val.(*store.StringVal).Bytes)
		} else {
			out = resp.NullBulk()
		}
		tx.Put(key, &store.Entry{Val: store.NewStringVal(args[1]), Type: store.TypeString})
		e2, _ := tx.Entry(key)
		tx.MutateDone(key, e2, false)
		return nil
	})
	return out
}

func cmdAppend(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeString, func() any { return store.NewStringVal(nil) })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		sv := e.Val.(*store.StringVal)
		sv.Bytes = append(sv.Bytes, args[1]...)
		tx.MutateDone(key, e, false)
		out = resp.Int(int64(len(sv.Bytes)))
		return nil
	})
	return out
}

func cmdStrlen(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeString)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		out = resp.Int(int64(len(e.Val.(*store.StringVal).Bytes)))
		return nil
	})
	return out
}

func cmdIncr(ctx *dispatch.Context, args [][]byte) resp.Value { return incrBy(ctx, args[0], 1) }
func cmdDecr(ctx *dispatch.Context, args [][]byte) resp.Value { return incrBy(ctx, args[0], -1) }

func cmdIncrBy(ctx *dispatch.Context, args [][]byte) resp.Value {
	n, ok := store.ParseStrictInt64(string(args[1]))
	if !ok {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	return incrBy(ctx, args[0], n)
}

func cmdDecrBy(ctx *dispatch.Context, args [][]byte) resp.Value {
	n, ok := store.ParseStrictInt64(string(args[1]))
	if !ok {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	return incrBy(ctx, args[0], -n)
}

func incrBy(ctx *dispatch.Context, keyB []byte, delta int64) resp.Value {
	key := string(keyB)
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeString, func() any { return store.NewStringVal([]byte("0")) })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		sv := e.Val.(*store.StringVal)
		cur, ok := store.ParseStrictInt64(string(sv.Bytes))
		if !ok {
			out = resp.Err(ferrors.ErrNotInt.Error())
			return nil
		}
		sum, overflow := store.SafeAddInt64(cur, delta)
		if overflow {
			out = resp.Err("ERR increment or decrement would overflow")
			return nil
		}
		sv.Bytes = []byte(strconv.FormatInt(sum, 10))
		tx.MutateDone(key, e, false)
		out = resp.Int(sum)
		return nil
	})
	return out
}

func cmdGetRange(ctx *dispatch.Context, args [][]byte) resp.Value {
	start, ok1 := store.ParseStrictInt64(string(args[1]))
	end, ok2 := store.ParseStrictInt64(string(args[2]))
	if !ok1 || !ok2 {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeString)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.BulkFromString("")
			return nil
		}
		b := e.Val.(*store.StringVal).Bytes
		n := len(b)
		s := store.NormalizeIndex(int(start), n)
		en := store.NormalizeIndex(int(end), n)
		if s < 0 {
			s = 0
		}
		if en >= n {
			en = n - 1
		}
		if n == 0 || s > en || s >= n {
			out = resp.BulkFromString("")
			return nil
		}
		out = resp.BulkString(append([]byte(nil), b[s:en+1]...))
		return nil
	})
	return out
}

func cmdSetRange(ctx *dispatch.Context, args [][]byte) resp.Value {
	offset, ok := store.ParseStrictInt64(string(args[1]))
	if !ok || offset < 0 {
		return resp.Err("ERR offset is out of range")
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(string(args[0]), store.TypeString, func() any { return store.NewStringVal(nil) })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		sv := e.Val.(*store.StringVal)
		need := int(offset) + len(args[2])
		if len(sv.Bytes) < need {
			grown := make([]byte, need)
			copy(grown, sv.Bytes)
			sv.Bytes = grown
		}
		copy(sv.Bytes[offset:], args[2])
		tx.MutateDone(string(args[0]), e, false)
		out = resp.Int(int64(len(sv.Bytes)))
		return nil
	})
	return out
}

func cmdMGet(ctx *dispatch.Context, args [][]byte) resp.Value {
	items := make([]resp.Value, len(args))
	ctx.RunTx(func(tx *store.Tx) error {
		for i, k := range args {
			e, ok, err := tx.LookupTyped(string(k), store.TypeString)
			if err != nil || !ok {
				items[i] = resp.NullBulk()
				continue
			}
			items[i] = resp.BulkString(e.Val.(*store.StringVal).Bytes)
		}
		return nil
	})
	return resp.ArrSlice(items)
}

func cmdMSet(ctx *dispatch.Context, args [][]byte) resp.Value {
	if len(args)%2 != 0 {
		return resp.Err(ferrors.WrongArity("mset").Error())
	}
	ctx.RunTx(func(tx *store.Tx) error {
		for i := 0; i < len(args); i += 2 {
			key := string(args[i])
			tx.Put(key, &store.Entry{Val: store.NewStringVal(args[i+1]), Type: store.TypeString})
			e, _ := tx.Entry(key)
			tx.MutateDone(key, e, false)
		}
		return nil
	})
	return resp.OK()
}
