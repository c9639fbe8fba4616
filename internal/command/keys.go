// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import (
	"crypto/rand"
	"encoding/binary"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/resp"
	"github.com/ferrousdb/ferrous/internal/store"
)

func registerKeys(t *dispatch.Table) {
	t.Register(dispatch.Spec{Name: "DEL", Arity: -2, Flags: dispatch.FlagWrite, Handler: cmdDel})
	t.Register(dispatch.Spec{Name: "UNLINK", Arity: -2, Flags: dispatch.FlagWrite, Handler: cmdDel})
	t.Register(dispatch.Spec{Name: "EXISTS", Arity: -2, Flags: dispatch.FlagReadonly, Handler: cmdExists})
	t.Register(dispatch.Spec{Name: "EXPIRE", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdExpire})
	t.Register(dispatch.Spec{Name: "PEXPIRE", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdPExpire})
	t.Register(dispatch.Spec{Name: "EXPIREAT", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdExpireAt})
	t.Register(dispatch.Spec{Name: "PEXPIREAT", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdPExpireAt})
	t.Register(dispatch.Spec{Name: "TTL", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdTTL})
	t.Register(dispatch.Spec{Name: "PTTL", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdPTTL})
	t.Register(dispatch.Spec{Name: "PERSIST", Arity: 2, Flags: dispatch.FlagWrite, Handler: cmdPersist})
	t.Register(dispatch.Spec{Name: "TYPE", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdType})
	t.Register(dispatch.Spec{Name: "KEYS", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdKeys})
	t.Register(dispatch.Spec{Name: "SCAN", Arity: -2, Flags: dispatch.FlagReadonly, Handler: cmdScan})
	t.Register(dispatch.Spec{Name: "RENAME", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdRename})
	t.Register(dispatch.Spec{Name: "RENAMENX", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdRenameNX})
	t.Register(dispatch.Spec{Name: "RANDOMKEY", Arity: 1, Flags: dispatch.FlagReadonly, Handler: cmdRandomKey})
	t.Register(dispatch.Spec{Name: "FLUSHDB", Arity: -1, Flags: dispatch.FlagWrite | dispatch.FlagAdmin, Handler: cmdFlushDB})
	t.Register(dispatch.Spec{Name: "FLUSHALL", Arity: -1, Flags: dispatch.FlagWrite | dispatch.FlagAdmin, Handler: cmdFlushAll})
	t.Register(dispatch.Spec{Name: "DBSIZE", Arity: 1, Flags: dispatch.FlagReadonly, Handler: cmdDBSize})
	t.Register(dispatch.Spec{Name: "SWAPDB", Arity: 3, Flags: dispatch.FlagWrite | dispatch.FlagAdmin, Handler: cmdSwapDB})
	t.Register(dispatch.Spec{Name: "MOVE", Arity: 3, Flags: dispatch.FlagWrite, Handler: cmdMove})
}

func cmdDel(ctx *dispatch.Context, args [][]byte) resp.Value {
	var n int64
	ctx.RunTx(func(tx *store.Tx) error {
		for _, k := range args {
			if tx.Delete(string(k)) {
				n++
			}
		}
		return nil
	})
	return resp.Int(n)
}

func cmdExists(ctx *dispatch.Context, args [][]byte) resp.Value {
	var n int64
	ctx.RunTx(func(tx *store.Tx) error {
		for _, k := range args {
			if tx.Exists(string(k)) {
				n++
			}
		}
		return nil
	})
	return resp.Int(n)
}

func cmdExpire(ctx *dispatch.Context, args [][]byte) resp.Value {
	n, ok := store.ParseStrictInt64(string(args[1]))
	if !ok {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		existed, _ := tx.SetExpire(key, tx.Now().Add(time.Duration(n)*time.Second))
		out = resp.Int(0)
		if existed {
			out = resp.Int(1)
		}
		return nil
	})
	return out
}

func cmdPExpire(ctx *dispatch.Context, args [][]byte) resp.Value {
	n, ok := store.ParseStrictInt64(string(args[1]))
	if !ok {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		existed, _ := tx.SetExpire(key, tx.Now().Add(time.Duration(n)*time.Millisecond))
		out = resp.Int(0)
		if existed {
			out = resp.Int(1)
		}
		return nil
	})
	return out
}

func cmdExpireAt(ctx *dispatch.Context, args [][]byte) resp.Value {
	n, ok := store.ParseStrictInt64(string(args[1]))
	if !ok {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	return expireAtReply(ctx, string(args[0]), time.Unix(n, 0))
}

func cmdPExpireAt(ctx *dispatch.Context, args [][]byte) resp.Value {
	n, ok := store.ParseStrictInt64(string(args[1]))
	if !ok {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	return expireAtReply(ctx, string(args[0]), time.UnixMilli(n))
}

func expireAtReply(ctx *dispatch.Context, key string, at time.Time) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		existed, _ := tx.SetExpire(key, at)
		out = resp.Int(0)
		if existed {
			out = resp.Int(1)
		}
		return nil
	})
	return out
}

func cmdTTL(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		ttl, hasExp, exists := tx.TTL(string(args[0]))
		out = ttlReply(ttl, hasExp, exists, time.Second)
		return nil
	})
	return out
}

func cmdPTTL(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		ttl, hasExp, exists := tx.TTL(string(args[0]))
		out = ttlReply(ttl, hasExp, exists, time.Millisecond)
		return nil
	})
	return out
}

func ttlReply(ttl time.Duration, hasExpiry, exists bool, unit time.Duration) resp.Value {
	if !exists {
		return resp.Int(-2)
	}
	if !hasExpiry {
		return resp.Int(-1)
	}
	return resp.Int(int64(ttl / unit))
}

func cmdPersist(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		if tx.Persist(string(args[0])) {
			out = resp.Int(1)
		} else {
			out = resp.Int(0)
		}
		return nil
	})
	return out
}

func cmdType(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok := tx.Lookup(string(args[0]))
		if !ok {
			out = resp.Simple("none")
			return nil
		}
		out = resp.Simple(e.Type.String())
		return nil
	})
	return out
}

func cmdKeys(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		keys := tx.Keys(string(args[0]))
		items := make([]resp.Value, len(keys))
		for i, k := range keys {
			items[i] = resp.BulkFromString(k)
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

func cmdRename(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		if !tx.Rename(string(args[0]), string(args[1])) {
			out = resp.Err("ERR no such key")
			return nil
		}
		out = resp.OK()
		return nil
	})
	return out
}

func cmdRenameNX(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		if !tx.Exists(string(args[0])) {
			out = resp.Err("ERR no such key")
			return nil
		}
		if tx.Exists(string(args[1])) {
			out = resp.Int(0)
			return nil
		}
		tx.Rename(string(args[0]), string(args[1]))
		out = resp.Int(1)
		return nil
	})
	return out
}

func cmdRandomKey(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		k, ok := tx.RandomKey()
		if !ok {
			out = resp.NullBulk()
			return nil
		}
		out = resp.BulkFromString(k)
		return nil
	})
	return out
}

func cmdFlushDB(ctx *dispatch.Context, args [][]byte) resp.Value {
	ctx.RunTx(func(tx *store.Tx) error {
		tx.FlushDB()
		return nil
	})
	return resp.OK()
}

func cmdFlushAll(ctx *dispatch.Context, args [][]byte) resp.Value {
	for i := 0; i < ctx.Keyspace.Count(); i++ {
		if i == ctx.DBIndex {
			// Already held for the duration of this command (or, inside
			// EXEC, for the whole queued vector): reuse it rather than
			// re-locking the same database.
			ctx.RunTx(func(tx *store.Tx) error {
				tx.FlushDB()
				return nil
			})
			continue
		}
		ctx.Keyspace.DB(i).Do(func(tx *store.Tx) error {
			tx.FlushDB()
			return nil
		})
	}
	return resp.OK()
}

func cmdDBSize(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		out = resp.Int(int64(tx.DBSize()))
		return nil
	})
	return out
}

func cmdSwapDB(ctx *dispatch.Context, args [][]byte) resp.Value {
	a, ok1 := strconv.Atoi(string(args[0]))
	b, ok2 := strconv.Atoi(string(args[1]))
	if ok1 != nil || ok2 != nil {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	if !ctx.Keyspace.SwapDB(a, b) {
		return resp.Err("ERR DB index is out of range")
	}
	return resp.OK()
}

// cmdMove relocates a key into another database. Like SWAPDB it locks
// both databases directly in fixed index order, so it shares SWAPDB's
// restriction against naming the selected database from inside an
// EXEC/EVAL acquisition.
func cmdMove(ctx *dispatch.Context, args [][]byte) resp.Value {
	dst, err := strconv.Atoi(string(args[1]))
	if err != nil {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	moved, merr := ctx.Keyspace.Move(ctx.DBIndex, dst, string(args[0]))
	if merr != nil {
		return resp.Err(merr.Error())
	}
	if moved {
		return resp.Int(1)
	}
	return resp.Int(0)
}

// scanCursors is the opaque-cursor registry backing the monotonic
// snapshot SCAN implementation: the first call of a sweep (cursor "0")
// takes a sorted snapshot of matching keys and stores the remainder
// under a fresh token; subsequent calls page through that snapshot
// regardless of concurrent mutation, matching the reference server's
// "keys present for the whole scan are guaranteed to be returned"
// contract without needing reverse-binary bucket iteration.
var scanCursors sync.Map // token string -> []string remaining keys

func newCursorToken() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	n := binary.BigEndian.Uint64(b[:])
	if n == 0 {
		n = 1
	}
	return strconv.FormatUint(n, 10)
}

func cmdScan(ctx *dispatch.Context, args [][]byte) resp.Value {
	cursor := string(args[0])
	pattern := "*"
	count := 10
	typeFilter := ""
	for i := 1; i < len(args); i++ {
		opt := strings.ToUpper(string(args[i]))
		switch opt {
		case "MATCH":
			i++
			if i >= len(args) {
				return resp.Err(ferrors.ErrSyntax.Error())
			}
			pattern = string(args[i])
		case "COUNT":
			i++
			if i >= len(args) {
				return resp.Err(ferrors.ErrSyntax.Error())
			}
			n, ok := store.ParseStrictInt64(string(args[i]))
			if !ok || n <= 0 {
				return resp.Err(ferrors.ErrNotInt.Error())
			}
			count = int(n)
		case "TYPE":
			i++
			if i >= len(args) {
				return resp.Err(ferrors.ErrSyntax.Error())
			}
			typeFilter = strings.ToLower(string(args[i]))
		default:
			return resp.Err(ferrors.ErrSyntax.Error())
		}
	}

	var remaining []string
	if cursor == "0" {
		ctx.RunTx(func(tx *store.Tx) error {
			remaining = tx.Keys("*")
			return nil
		})
		sort.Strings(remaining)
	} else {
		v, ok := scanCursors.Load(cursor)
		if !ok {
			return resp.ArrSlice([]resp.Value{resp.BulkFromString("0"), resp.ArrSlice(nil)})
		}
		remaining = v.([]string)
		scanCursors.Delete(cursor)
	}

	page := remaining
	if len(page) > count {
		page = page[:count]
	}
	remaining = remaining[len(page):]

	var nextCursor string
	if len(remaining) == 0 {
		nextCursor = "0"
	} else {
		nextCursor = newCursorToken()
		scanCursors.Store(nextCursor, remaining)
	}

	var items []resp.Value
	var existsNow map[string]bool
	var typeNow map[string]string
	ctx.RunTx(func(tx *store.Tx) error {
		existsNow = make(map[string]bool, len(page))
		typeNow = make(map[string]string, len(page))
		for _, k := range page {
			e, ok := tx.Lookup(k)
			existsNow[k] = ok
			if ok {
				typeNow[k] = e.Type.String()
			}
		}
		return nil
	})
	for _, k := range page {
		if !existsNow[k] || (pattern != "*" && !store.MatchGlob(pattern, k)) {
			continue
		}
		if typeFilter != "" && !strings.EqualFold(typeNow[k], typeFilter) {
			continue
		}
		items = append(items, resp.BulkFromString(k))
	}
	return resp.ArrSlice([]resp.Value{resp.BulkFromString(nextCursor), resp.ArrSlice(items)})
}
