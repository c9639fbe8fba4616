// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import (
	"strconv"
	"strings"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/resp"
	"github.com/ferrousdb/ferrous/internal/store"
)

func registerStreams(t *dispatch.Table) {
	t.Register(dispatch.Spec{Name: "XADD", Arity: -5, Flags: dispatch.FlagWrite, Handler: cmdXAdd})
	t.Register(dispatch.Spec{Name: "XLEN", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdXLen})
	t.Register(dispatch.Spec{Name: "XRANGE", Arity: -4, Flags: dispatch.FlagReadonly, Handler: cmdXRange})
	t.Register(dispatch.Spec{Name: "XREVRANGE", Arity: -4, Flags: dispatch.FlagReadonly, Handler: cmdXRevRange})
	t.Register(dispatch.Spec{Name: "XTRIM", Arity: -4, Flags: dispatch.FlagWrite, Handler: cmdXTrim})
	t.Register(dispatch.Spec{Name: "XDEL", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdXDel})
	t.Register(dispatch.Spec{Name: "XGROUP", Arity: -4, Flags: dispatch.FlagWrite, Handler: cmdXGroup})
	t.Register(dispatch.Spec{Name: "XREADGROUP", Arity: -7, Flags: dispatch.FlagWrite, Handler: cmdXReadGroup})
	t.Register(dispatch.Spec{Name: "XACK", Arity: -4, Flags: dispatch.FlagWrite, Handler: cmdXAck})
	t.Register(dispatch.Spec{Name: "XREAD", Arity: -4, Flags: dispatch.FlagReadonly, Handler: cmdXRead})
	t.Register(dispatch.Spec{Name: "XPENDING", Arity: -3, Flags: dispatch.FlagReadonly, Handler: cmdXPending})
	t.Register(dispatch.Spec{Name: "XCLAIM", Arity: -6, Flags: dispatch.FlagWrite, Handler: cmdXClaim})
	t.Register(dispatch.Spec{Name: "XINFO", Arity: -3, Flags: dispatch.FlagReadonly, Handler: cmdXInfo})
}

// cmdXRead implements the non-blocking form of XREAD STREAMS key... id...
// The BLOCK option is not supported; only the immediate read is.
func cmdXRead(ctx *dispatch.Context, args [][]byte) resp.Value {
	i := 0
	count := 0
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "COUNT":
			n, ok := strconv.Atoi(string(args[i+1]))
			if ok != nil {
				return resp.Err(ferrors.ErrNotInt.Error())
			}
			count = n
			i += 2
		case "BLOCK":
			i += 2 // accepted syntactically, treated as zero wait
		case "STREAMS":
			i++
		default:
			return resp.Err(ferrors.ErrSyntax.Error())
		}
		if i < len(args) && strings.EqualFold(string(args[i-1]), "STREAMS") {
			break
		}
	}
	rest := args[i:]
	if len(rest)%2 != 0 || len(rest) == 0 {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	n := len(rest) / 2
	keys, ids := rest[:n], rest[n:]

	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		var results []resp.Value
		for idx, k := range keys {
			e, ok, err := tx.LookupTyped(string(k), store.TypeStream)
			if err != nil || !ok {
				continue
			}
			sv := e.Val.(*store.StreamVal)
			fromID, idErr := store.ParseStreamID(string(ids[idx]), 0)
			if string(ids[idx]) == "$" {
				fromID = sv.LastID()
			} else if idErr != nil {
				out = resp.Err("ERR Invalid stream ID specified as stream command argument")
				return nil
			}
			from := fromID
			from.Seq++
			entries := sv.Range(from, store.MaxStreamID, count)
			if len(entries) == 0 {
				continue
			}
			results = append(results, resp.Arr(resp.BulkFromString(string(k)), streamEntriesToValue(entries)))
		}
		if results == nil {
			out = resp.NullArray()
			return nil
		}
		out = resp.ArrSlice(results)
		return nil
	})
	return out
}

// cmdXPending implements the summary form of XPENDING key group.
func cmdXPending(ctx *dispatch.Context, args [][]byte) resp.Value {
	key, group := string(args[0]), string(args[1])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeStream)
		if err != nil || !ok {
			out = resp.Err("NOGROUP No such key '" + key + "' or consumer group '" + group + "'")
			return nil
		}
		sv := e.Val.(*store.StreamVal)
		g, gok := sv.Group(group)
		if !gok {
			out = resp.Err("NOGROUP No such key '" + key + "' or consumer group '" + group + "'")
			return nil
		}
		count, lo, hi, any := sv.Pending(g)
		if !any {
			out = resp.Arr(resp.Int(0), resp.NullBulk(), resp.NullBulk(), resp.NullArray())
			return nil
		}
		out = resp.Arr(resp.Int(int64(count)), resp.BulkFromString(lo.String()), resp.BulkFromString(hi.String()), resp.NullArray())
		return nil
	})
	return out
}

// cmdXClaim implements the common single-ID XCLAIM case (no FORCE/
// JUSTID).
func cmdXClaim(ctx *dispatch.Context, args [][]byte) resp.Value {
	key, group, consumer := string(args[0]), string(args[1]), string(args[2])
	// args[3] is min-idle-time, accepted but unused by this mirror.
	id, err := store.ParseStreamID(string(args[4]), 0)
	if err != nil {
		return resp.Err("ERR Invalid stream ID specified as stream command argument")
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, lerr := tx.LookupTyped(key, store.TypeStream)
		if lerr != nil || !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		sv := e.Val.(*store.StreamVal)
		g, gok := sv.Group(group)
		if !gok {
			out = resp.Err("NOGROUP No such key '" + key + "' or consumer group '" + group + "'")
			return nil
		}
		entry, claimed := sv.Claim(g, id, consumer, tx.Now().UnixMilli())
		if !claimed {
			out = resp.ArrSlice(nil)
			return nil
		}
		out = streamEntriesToValue([]store.StreamEntry{entry})
		return nil
	})
	return out
}

// cmdXInfo implements XINFO STREAM key and XINFO GROUPS key.
func cmdXInfo(ctx *dispatch.Context, args [][]byte) resp.Value {
	sub := strings.ToUpper(string(args[0]))
	key := string(args[1])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeStream)
		if err != nil || !ok {
			out = resp.Err("ERR no such key")
			return nil
		}
		sv := e.Val.(*store.StreamVal)
		switch sub {
		case "STREAM":
			out = resp.Arr(
				resp.BulkFromString("length"), resp.Int(int64(sv.Len())),
				resp.BulkFromString("last-generated-id"), resp.BulkFromString(sv.LastID().String()),
				resp.BulkFromString("groups"), resp.Int(int64(len(sv.GroupNames()))),
			)
		case "GROUPS":
			var items []resp.Value
			for _, name := range sv.GroupNames() {
				g, _ := sv.Group(name)
				_, _, _, any := sv.Pending(g)
				pendingCount := 0
				if any {
					pendingCount, _, _, _ = sv.Pending(g)
				}
				items = append(items, resp.Arr(
					resp.BulkFromString("name"), resp.BulkFromString(name),
					resp.BulkFromString("consumers"), resp.Int(int64(len(g.Consumers))),
					resp.BulkFromString("pending"), resp.Int(int64(pendingCount)),
					resp.BulkFromString("last-delivered-id"), resp.BulkFromString(g.LastDelivered.String()),
				))
			}
			out = resp.ArrSlice(items)
		default:
			out = resp.Err(ferrors.ErrSyntax.Error())
		}
		return nil
	})
	return out
}

func cmdXAdd(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	idSpec := string(args[1])
	i := 2
	maxLen := -1
	if strings.EqualFold(idSpec, "MAXLEN") {
		// XADD key MAXLEN [~|=] count ID field value ...
		j := 2
		if j < len(args) && (string(args[j]) == "~" || string(args[j]) == "=") {
			j++
		}
		n, ok := strconv.Atoi(string(args[j]))
		if ok != nil {
			return resp.Err(ferrors.ErrNotInt.Error())
		}
		maxLen = n
		idSpec = string(args[j+1])
		i = j + 2
	}
	if (len(args)-i)%2 != 0 || len(args)-i == 0 {
		return resp.Err(ferrors.ErrSyntax.Error())
	}

	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeStream, func() any { return store.NewStreamVal() })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		sv := e.Val.(*store.StreamVal)
		id, idErr := sv.NextID(idSpec, uint64(tx.Now().UnixMilli()))
		if idErr != nil {
			out = resp.Err("ERR " + idErr.Error())
			return nil
		}
		fields := make([]store.StreamField, 0, (len(args)-i)/2)
		for p := i; p < len(args); p += 2 {
			fields = append(fields, store.StreamField{Field: string(args[p]), Value: string(args[p+1])})
		}
		sv.Append(id, fields)
		if maxLen >= 0 {
			sv.Trim(maxLen)
		}
		tx.MutateDone(key, e, false)
		out = resp.BulkFromString(id.String())
		return nil
	})
	return out
}

func cmdXLen(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeStream)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		out = resp.Int(int64(e.Val.(*store.StreamVal).Len()))
		return nil
	})
	return out
}

func streamEntriesToValue(entries []store.StreamEntry) resp.Value {
	items := make([]resp.Value, len(entries))
	for i, e := range entries {
		fields := make([]resp.Value, 0, len(e.Fields)*2)
		for _, f := range e.Fields {
			fields = append(fields, resp.BulkFromString(f.Field), resp.BulkFromString(f.Value))
		}
		items[i] = resp.Arr(resp.BulkFromString(e.ID.String()), resp.ArrSlice(fields))
	}
	return resp.ArrSlice(items)
}

func rangeCommon(ctx *dispatch.Context, args [][]byte, reverse bool) resp.Value {
	fromSpec, toSpec := string(args[1]), string(args[2])
	if reverse {
		fromSpec, toSpec = toSpec, fromSpec
	}
	from, err1 := store.ParseStreamID(fromSpec, 0)
	to, err2 := store.ParseStreamID(toSpec, ^uint64(0))
	if err1 != nil || err2 != nil {
		return resp.Err("ERR Invalid stream ID specified as stream command argument")
	}
	count := 0
	if len(args) > 4 && strings.EqualFold(string(args[3]), "COUNT") {
		n, ok := strconv.Atoi(string(args[4]))
		if ok != nil {
			return resp.Err(ferrors.ErrNotInt.Error())
		}
		count = n
	}

	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeStream)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		sv := e.Val.(*store.StreamVal)
		var entries []store.StreamEntry
		if reverse {
			entries = sv.RevRange(from, to, count)
		} else {
			entries = sv.Range(from, to, count)
		}
		out = streamEntriesToValue(entries)
		return nil
	})
	return out
}

func cmdXRange(ctx *dispatch.Context, args [][]byte) resp.Value    { return rangeCommon(ctx, args, false) }
func cmdXRevRange(ctx *dispatch.Context, args [][]byte) resp.Value { return rangeCommon(ctx, args, true) }

func cmdXTrim(ctx *dispatch.Context, args [][]byte) resp.Value {
	if !strings.EqualFold(string(args[1]), "MAXLEN") {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	i := 2
	if i < len(args) && (string(args[i]) == "~" || string(args[i]) == "=") {
		i++
	}
	n, ok := strconv.Atoi(string(args[i]))
	if ok != nil {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, exists, err := tx.LookupTyped(string(args[0]), store.TypeStream)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !exists {
			out = resp.Int(0)
			return nil
		}
		removed := e.Val.(*store.StreamVal).Trim(n)
		tx.MutateDone(string(args[0]), e, false)
		out = resp.Int(int64(removed))
		return nil
	})
	return out
}

func cmdXDel(ctx *dispatch.Context, args [][]byte) resp.Value {
	ids := make([]store.StreamID, 0, len(args)-1)
	for _, a := range args[1:] {
		id, err := store.ParseStreamID(string(a), 0)
		if err != nil {
			return resp.Err("ERR Invalid stream ID specified as stream command argument")
		}
		ids = append(ids, id)
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, exists, err := tx.LookupTyped(string(args[0]), store.TypeStream)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !exists {
			out = resp.Int(0)
			return nil
		}
		removed := e.Val.(*store.StreamVal).DeleteIDs(ids)
		tx.MutateDone(string(args[0]), e, false)
		out = resp.Int(int64(removed))
		return nil
	})
	return out
}

func cmdXGroup(ctx *dispatch.Context, args [][]byte) resp.Value {
	sub := strings.ToUpper(string(args[0]))
	key := string(args[1])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		switch sub {
		case "CREATE":
			e, err := tx.GetOrCreate(key, store.TypeStream, func() any { return store.NewStreamVal() })
			if err != nil {
				out = resp.Err(err.Error())
				return nil
			}
			sv := e.Val.(*store.StreamVal)
			start, idErr := store.ParseStreamID(string(args[3]), 0)
			if string(args[3]) == "$" {
				start = sv.LastID()
			} else if idErr != nil {
				out = resp.Err("ERR Invalid stream ID specified as stream command argument")
				return nil
			}
			if !sv.CreateGroup(string(args[2]), start) {
				out = resp.Err("BUSYGROUP Consumer Group name already exists")
				return nil
			}
			out = resp.OK()
		case "DESTROY":
			e, ok, err := tx.LookupTyped(key, store.TypeStream)
			if err != nil || !ok {
				out = resp.Int(0)
				return nil
			}
			if e.Val.(*store.StreamVal).DestroyGroup(string(args[2])) {
				out = resp.Int(1)
			} else {
				out = resp.Int(0)
			}
		default:
			out = resp.Err(ferrors.ErrSyntax.Error())
		}
		return nil
	})
	return out
}

// cmdXReadGroup implements the non-blocking form of XREADGROUP GROUP g c
// [COUNT n] STREAMS key id. Only ">" (new entries) is supported as the
// read position.
func cmdXReadGroup(ctx *dispatch.Context, args [][]byte) resp.Value {
	if !strings.EqualFold(string(args[0]), "GROUP") {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	group, consumer := string(args[1]), string(args[2])
	i := 3
	count := 0
	if i < len(args) && strings.EqualFold(string(args[i]), "COUNT") {
		n, ok := strconv.Atoi(string(args[i+1]))
		if ok != nil {
			return resp.Err(ferrors.ErrNotInt.Error())
		}
		count = n
		i += 2
	}
	if i >= len(args) || !strings.EqualFold(string(args[i]), "STREAMS") {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	i++
	rest := args[i:]
	if len(rest)%2 != 0 {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	n := len(rest) / 2
	keys := rest[:n]

	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		var results []resp.Value
		for _, k := range keys {
			e, ok, err := tx.LookupTyped(string(k), store.TypeStream)
			if err != nil || !ok {
				continue
			}
			sv := e.Val.(*store.StreamVal)
			g, gok := sv.Group(group)
			if !gok {
				out = resp.Err("NOGROUP No such consumer group " + group + " for key name " + string(k))
				return nil
			}
			delivered := sv.ReadGroup(g, consumer, count, tx.Now().UnixMilli())
			results = append(results, resp.Arr(resp.BulkFromString(string(k)), streamEntriesToValue(delivered)))
		}
		if results == nil {
			out = resp.NullArray()
			return nil
		}
		out = resp.ArrSlice(results)
		return nil
	})
	return out
}

func cmdXAck(ctx *dispatch.Context, args [][]byte) resp.Value {
	key, group := string(args[0]), string(args[1])
	ids := make([]store.StreamID, 0, len(args)-2)
	for _, a := range args[2:] {
		id, err := store.ParseStreamID(string(a), 0)
		if err != nil {
			return resp.Err("ERR Invalid stream ID specified as stream command argument")
		}
		ids = append(ids, id)
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeStream)
		if err != nil || !ok {
			out = resp.Int(0)
			return nil
		}
		sv := e.Val.(*store.StreamVal)
		g, gok := sv.Group(group)
		if !gok {
			out = resp.Int(0)
			return nil
		}
		out = resp.Int(int64(sv.Ack(g, ids)))
		return nil
	})
	return out
}
