// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

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

func registerLists(t *dispatch.Table) {
	t.Register(dispatch.Spec{Name: "LPUSH", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdLPush})
	t.Register(dispatch.Spec{Name: "RPUSH", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdRPush})
	t.Register(dispatch.Spec{Name: "LPOP", Arity: -2, Flags: dispatch.FlagWrite, Handler: cmdLPop})
	t.Register(dispatch.Spec{Name: "RPOP", Arity: -2, Flags: dispatch.FlagWrite, Handler: cmdRPop})
	t.Register(dispatch.Spec{Name: "LLEN", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdLLen})
	t.Register(dispatch.Spec{Name: "LRANGE", Arity: 4, Flags: dispatch.FlagReadonly, Handler: cmdLRange})
	t.Register(dispatch.Spec{Name: "LINDEX", Arity: 3, Flags: dispatch.FlagReadonly, Handler: cmdLIndex})
	t.Register(dispatch.Spec{Name: "LSET", Arity: 4, Flags: dispatch.FlagWrite, Handler: cmdLSet})
	t.Register(dispatch.Spec{Name: "LTRIM", Arity: 4, Flags: dispatch.FlagWrite, Handler: cmdLTrim})
	t.Register(dispatch.Spec{Name: "LREM", Arity: 4, Flags: dispatch.FlagWrite, Handler: cmdLRem})
	t.Register(dispatch.Spec{Name: "LINSERT", Arity: 5, Flags: dispatch.FlagWrite, Handler: cmdLInsert})
	t.Register(dispatch.Spec{Name: "BLPOP", Arity: -3, Flags: dispatch.FlagWrite | dispatch.FlagBlocking | dispatch.FlagNoScript, Handler: cmdBLPop})
	t.Register(dispatch.Spec{Name: "BRPOP", Arity: -3, Flags: dispatch.FlagWrite | dispatch.FlagBlocking | dispatch.FlagNoScript, Handler: cmdBRPop})
	t.Register(dispatch.Spec{Name: "LPUSHX", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdLPushX})
	t.Register(dispatch.Spec{Name: "RPUSHX", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdRPushX})
	t.Register(dispatch.Spec{Name: "RPOPLPUSH", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdRPopLPush})
	t.Register(dispatch.Spec{Name: "BRPOPLPUSH", Arity: 4, Flags: dispatch.FlagWrite | dispatch.FlagBlocking | dispatch.FlagNoScript, Handler: cmdBRPopLPush})
}

func pushXCommon(ctx *dispatch.Context, key string, values [][]byte, left bool) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeList)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		lv := e.Val.(*store.ListVal)
		for _, v := range values {
			if left {
				lv.PushLeft(v)
			} else {
				lv.PushRight(v)
			}
		}
		tx.MutateDone(key, e, lv.Len() == 0)
		out = resp.Int(int64(lv.Len()))
		return nil
	})
	return out
}

func cmdLPushX(ctx *dispatch.Context, args [][]byte) resp.Value {
	return pushXCommon(ctx, string(args[0]), args[1:], true)
}

func cmdRPushX(ctx *dispatch.Context, args [][]byte) resp.Value {
	return pushXCommon(ctx, string(args[0]), args[1:], false)
}

// rpopLPushCommon implements RPOPLPUSH/BRPOPLPUSH's non-blocking fast
// path: pop the tail of src and push it to the head of dst atomically
// under one database acquisition.
func rpopLPushCommon(ctx *dispatch.Context, src, dst string) (resp.Value, bool) {
	var out resp.Value
	var popped bool
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(src, store.TypeList)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.NullBulk()
			return nil
		}
		lv := e.Val.(*store.ListVal)
		v, got := lv.PopRight()
		if !got {
			out = resp.NullBulk()
			return nil
		}
		tx.MutateDone(src, e, lv.Len() == 0)
		if _, err := tx.PushList(dst, true, [][]byte{v}); err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		out = resp.BulkString(v)
		popped = true
		return nil
	})
	return out, popped
}

func cmdRPopLPush(ctx *dispatch.Context, args [][]byte) resp.Value {
	out, _ := rpopLPushCommon(ctx, string(args[0]), string(args[1]))
	return out
}

// cmdBRPopLPush blocks on src the way BRPOP does, then relays into dst
// once an element becomes available. The immediate pop-and-relay
// attempt and the fallback waiter park run inside one database
// acquisition, so a concurrent push can never land in src between the
// failed attempt and the waiter's registration.
func cmdBRPopLPush(ctx *dispatch.Context, args [][]byte) resp.Value {
	src, dst := string(args[0]), string(args[1])
	timeoutSec, ok := store.ParseStrictFloat64(string(args[2]))
	if !ok || timeoutSec < 0 {
		return resp.Err("ERR timeout is not a float or out of range")
	}

	var out resp.Value
	var popped bool
	var waiter *store.BlockWaiter
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(src, store.TypeList)
		if err != nil {
			out = resp.Err(err.Error())
			popped = true
			return nil
		}
		if ok {
			lv := e.Val.(*store.ListVal)
			if v, got := lv.PopRight(); got {
				tx.MutateDone(src, e, lv.Len() == 0)
				if _, err := tx.PushList(dst, true, [][]byte{v}); err != nil {
					out = resp.Err(err.Error())
				} else {
					out = resp.BulkString(v)
				}
				popped = true
				return nil
			}
		}
		// Inside EXEC/a script, blocking commands never actually block:
		// there is no other client to wake them and the database is
		// held for the whole queued vector, so leave waiter nil and
		// degrade to the immediate-only reply.
		if ctx.ActiveTx == nil {
			waiter = store.NewBlockWaiter([]string{src})
			tx.ParkWaiter(waiter)
		}
		return nil
	})
	if popped {
		return out
	}
	if waiter == nil {
		return resp.NullBulk()
	}

	db := ctx.DB()
	var timeoutCh <-chan time.Time
	if timeoutSec > 0 {
		timer := time.NewTimer(time.Duration(timeoutSec * float64(time.Second)))
		defer timer.Stop()
		timeoutCh = timer.C
	}

	relay := func(v []byte) resp.Value {
		db.Do(func(tx *store.Tx) error {
			_, err := tx.PushList(dst, true, [][]byte{v})
			return err
		})
		return resp.BulkString(v)
	}
	select {
	case res := <-waiter.Result:
		return relay(res.Value)
	case <-timeoutCh:
		if waiter.Claim() {
			db.Do(func(tx *store.Tx) error {
				tx.CancelWaiter(waiter)
				return nil
			})
			return resp.NullBulk()
		}
		// A push won the claim race; relay the in-flight element instead
		// of dropping it.
		res := <-waiter.Result
		return relay(res.Value)
	case <-ctx.Closing:
		if waiter.Claim() {
			db.Do(func(tx *store.Tx) error {
				tx.CancelWaiter(waiter)
				return nil
			})
			return resp.NullBulk()
		}
		res := <-waiter.Result
		return relay(res.Value)
	}
}

func pushCommon(ctx *dispatch.Context, key string, values [][]byte, left bool) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		delivered, err := tx.PushList(key, left, values)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		// Elements claimed by parked waiters never touch the list, but
		// the reply still counts them: the client pushed them and they
		// reached a consumer.
		length := int64(delivered)
		if e, _, _ := tx.LookupTyped(key, store.TypeList); e != nil {
			length += int64(e.Val.(*store.ListVal).Len())
		}
		out = resp.Int(length)
		return nil
	})
	return out
}

func cmdLPush(ctx *dispatch.Context, args [][]byte) resp.Value {
	return pushCommon(ctx, string(args[0]), args[1:], true)
}

func cmdRPush(ctx *dispatch.Context, args [][]byte) resp.Value {
	return pushCommon(ctx, string(args[0]), args[1:], false)
}

func popCommon(ctx *dispatch.Context, args [][]byte, left bool) resp.Value {
	key := string(args[0])
	count := 1
	hasCount := false
	if len(args) > 1 {
		n, ok := store.ParseStrictInt64(string(args[1]))
		if !ok || n < 0 {
			return resp.Err(ferrors.ErrNotInt.Error())
		}
		count = int(n)
		hasCount = true
	}

	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeList)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			if hasCount {
				out = resp.NullArray()
			} else {
				out = resp.NullBulk()
			}
			return nil
		}
		lv := e.Val.(*store.ListVal)
		var popped [][]byte
		for i := 0; i < count; i++ {
			var v []byte
			var got bool
			if left {
				v, got = lv.PopLeft()
			} else {
				v, got = lv.PopRight()
			}
			if !got {
				break
			}
			popped = append(popped, v)
		}
		tx.MutateDone(key, e, lv.Len() == 0)
		if !hasCount {
			if len(popped) == 0 {
				out = resp.NullBulk()
			} else {
				out = resp.BulkString(popped[0])
			}
			return nil
		}
		items := make([]resp.Value, len(popped))
		for i, p := range popped {
			items[i] = resp.BulkString(p)
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

func cmdLPop(ctx *dispatch.Context, args [][]byte) resp.Value { return popCommon(ctx, args, true) }
func cmdRPop(ctx *dispatch.Context, args [][]byte) resp.Value { return popCommon(ctx, args, false) }

func cmdLLen(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeList)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		out = resp.Int(int64(e.Val.(*store.ListVal).Len()))
		return nil
	})
	return out
}

func cmdLRange(ctx *dispatch.Context, args [][]byte) resp.Value {
	start, ok1 := strconv.Atoi(string(args[1]))
	stop, ok2 := strconv.Atoi(string(args[2]))
	if ok1 != nil || ok2 != nil {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeList)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		got := e.Val.(*store.ListVal).Range(start, stop)
		items := make([]resp.Value, len(got))
		for i, b := range got {
			items[i] = resp.BulkString(b)
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

func cmdLIndex(ctx *dispatch.Context, args [][]byte) resp.Value {
	idx, ok := strconv.Atoi(string(args[1]))
	if ok != nil {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, exists, err := tx.LookupTyped(string(args[0]), store.TypeList)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !exists {
			out = resp.NullBulk()
			return nil
		}
		v, ok := e.Val.(*store.ListVal).At(idx)
		if !ok {
			out = resp.NullBulk()
			return nil
		}
		out = resp.BulkString(v)
		return nil
	})
	return out
}

func cmdLSet(ctx *dispatch.Context, args [][]byte) resp.Value {
	idx, ok := strconv.Atoi(string(args[1]))
	if ok != nil {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, exists, err := tx.LookupTyped(string(args[0]), store.TypeList)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !exists {
			out = resp.Err("ERR no such key")
			return nil
		}
		if !e.Val.(*store.ListVal).Set(idx, args[2]) {
			out = resp.Err("ERR index out of range")
			return nil
		}
		tx.MutateDone(string(args[0]), e, false)
		out = resp.OK()
		return nil
	})
	return out
}

func cmdLTrim(ctx *dispatch.Context, args [][]byte) resp.Value {
	start, ok1 := strconv.Atoi(string(args[1]))
	stop, ok2 := strconv.Atoi(string(args[2]))
	if ok1 != nil || ok2 != nil {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	ctx.RunTx(func(tx *store.Tx) error {
		e, exists, err := tx.LookupTyped(string(args[0]), store.TypeList)
		if err != nil || !exists {
			return nil
		}
		lv := e.Val.(*store.ListVal)
		lv.Trim(start, stop)
		tx.MutateDone(string(args[0]), e, lv.Len() == 0)
		return nil
	})
	return resp.OK()
}

func cmdLRem(ctx *dispatch.Context, args [][]byte) resp.Value {
	count, ok := strconv.Atoi(string(args[1]))
	if ok != nil {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, exists, err := tx.LookupTyped(string(args[0]), store.TypeList)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !exists {
			out = resp.Int(0)
			return nil
		}
		lv := e.Val.(*store.ListVal)
		removed := lv.RemoveMatching(count, args[2])
		tx.MutateDone(string(args[0]), e, lv.Len() == 0)
		out = resp.Int(int64(removed))
		return nil
	})
	return out
}

func cmdLInsert(ctx *dispatch.Context, args [][]byte) resp.Value {
	var before bool
	switch strings.ToUpper(string(args[1])) {
	case "BEFORE":
		before = true
	case "AFTER":
		before = false
	default:
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, exists, err := tx.LookupTyped(string(args[0]), store.TypeList)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !exists {
			out = resp.Int(0)
			return nil
		}
		lv := e.Val.(*store.ListVal)
		if !lv.InsertBeforeAfter(before, args[2], args[3]) {
			out = resp.Int(-1)
			return nil
		}
		tx.MutateDone(string(args[0]), e, false)
		out = resp.Int(int64(lv.Len()))
		return nil
	})
	return out
}

func cmdBLPop(ctx *dispatch.Context, args [][]byte) resp.Value { return blockingPop(ctx, args, true) }
func cmdBRPop(ctx *dispatch.Context, args [][]byte) resp.Value { return blockingPop(ctx, args, false) }

// blockingPop implements BLPOP/BRPOP: try every key for an immediate
// pop first, and if none has data, park a BlockWaiter under every key
// both the attempt and the park happen inside the same database
// acquisition, so a push from another connection can never land
// between the failed attempt and the waiter's registration. It then
// waits for either a matching push, the timeout, or connection
// teardown to claim it, whichever happens first.
func blockingPop(ctx *dispatch.Context, args [][]byte, left bool) resp.Value {
	keys := make([]string, len(args)-1)
	for i := 0; i < len(args)-1; i++ {
		keys[i] = string(args[i])
	}
	timeoutSec, ok := store.ParseStrictFloat64(string(args[len(args)-1]))
	if !ok || timeoutSec < 0 {
		return resp.Err("ERR timeout is not a float or out of range")
	}

	var immKey string
	var immVal []byte
	var immOK bool
	var waiter *store.BlockWaiter
	ctx.RunTx(func(tx *store.Tx) error {
		immKey, immVal, immOK = tx.TryPopForBlock(keys, left)
		if immOK {
			return nil
		}
		// Inside EXEC/a script there is no other client to wake this
		// waiter, and the database is held for the whole queued vector:
		// leave waiter nil and degrade to the immediate-only reply.
		if ctx.ActiveTx == nil {
			waiter = store.NewBlockWaiter(keys)
			tx.ParkWaiter(waiter)
		}
		return nil
	})
	if immOK {
		return resp.Arr(resp.BulkFromString(immKey), resp.BulkString(immVal))
	}
	if waiter == nil {
		return resp.NullArray()
	}

	db := ctx.DB()
	var timeoutCh <-chan time.Time
	if timeoutSec > 0 {
		timer := time.NewTimer(time.Duration(timeoutSec * float64(time.Second)))
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-waiter.Result:
		return resp.Arr(resp.BulkFromString(res.Key), resp.BulkString(res.Value))
	case <-timeoutCh:
		if waiter.Claim() {
			db.Do(func(tx *store.Tx) error {
				tx.CancelWaiter(waiter)
				return nil
			})
			return resp.NullArray()
		}
		// A push won the claim race: the element is already in flight,
		// so deliver it rather than dropping what the pusher was told
		// reached a waiter.
		res := <-waiter.Result
		return resp.Arr(resp.BulkFromString(res.Key), resp.BulkString(res.Value))
	case <-ctx.Closing:
		if waiter.Claim() {
			db.Do(func(tx *store.Tx) error {
				tx.CancelWaiter(waiter)
				return nil
			})
			return resp.NullArray()
		}
		res := <-waiter.Result
		return resp.Arr(resp.BulkFromString(res.Key), resp.BulkString(res.Value))
	}
}
