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

func registerZSets(t *dispatch.Table) {
	t.Register(dispatch.Spec{Name: "ZADD", Arity: -4, Flags: dispatch.FlagWrite, Handler: cmdZAdd})
	t.Register(dispatch.Spec{Name: "ZSCORE", Arity: 3, Flags: dispatch.FlagReadonly, Handler: cmdZScore})
	t.Register(dispatch.Spec{Name: "ZREM", Arity: -3, Flags: dispatch.FlagWrite, Handler: cmdZRem})
	t.Register(dispatch.Spec{Name: "ZCARD", Arity: 2, Flags: dispatch.FlagReadonly, Handler: cmdZCard})
	t.Register(dispatch.Spec{Name: "ZRANGE", Arity: -4, Flags: dispatch.FlagReadonly, Handler: cmdZRange})
	t.Register(dispatch.Spec{Name: "ZREVRANGE", Arity: -4, Flags: dispatch.FlagReadonly, Handler: cmdZRevRange})
	t.Register(dispatch.Spec{Name: "ZRANGEBYSCORE", Arity: -4, Flags: dispatch.FlagReadonly, Handler: cmdZRangeByScore})
	t.Register(dispatch.Spec{Name: "ZRANK", Arity: 3, Flags: dispatch.FlagReadonly, Handler: cmdZRank})
	t.Register(dispatch.Spec{Name: "ZINCRBY", Arity: 4, Flags: dispatch.FlagWrite, Handler: cmdZIncrBy})
	t.Register(dispatch.Spec{Name: "ZPOPMIN", Arity: -2, Flags: dispatch.FlagWrite, Handler: cmdZPopMin})
	t.Register(dispatch.Spec{Name: "ZPOPMAX", Arity: -2, Flags: dispatch.FlagWrite, Handler: cmdZPopMax})
	t.Register(dispatch.Spec{Name: "ZCOUNT", Arity: 4, Flags: dispatch.FlagReadonly, Handler: cmdZCount})
	t.Register(dispatch.Spec{Name: "ZREVRANK", Arity: 3, Flags: dispatch.FlagReadonly, Handler: cmdZRevRank})
	t.Register(dispatch.Spec{Name: "ZRANGEBYLEX", Arity: -4, Flags: dispatch.FlagReadonly, Handler: cmdZRangeByLex})
	t.Register(dispatch.Spec{Name: "ZREVRANGEBYSCORE", Arity: -4, Flags: dispatch.FlagReadonly, Handler: cmdZRevRangeByScore})
	t.Register(dispatch.Spec{Name: "ZSCAN", Arity: -3, Flags: dispatch.FlagReadonly, Handler: cmdZScan})
}

func cmdZRevRank(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.NullBulk()
			return nil
		}
		zv := e.Val.(*store.ZSetVal)
		rank := zv.Rank(string(args[1]))
		if rank < 0 {
			out = resp.NullBulk()
			return nil
		}
		out = resp.Int(int64(zv.Len() - 1 - rank))
		return nil
	})
	return out
}

func parseLexBound(s string) (val string, excl, inf bool, ok bool) {
	switch s {
	case "-", "+":
		return "", false, true, true
	}
	if len(s) == 0 {
		return "", false, false, false
	}
	switch s[0] {
	case '[':
		return s[1:], false, false, true
	case '(':
		return s[1:], true, false, true
	default:
		return "", false, false, false
	}
}

func cmdZRangeByLex(ctx *dispatch.Context, args [][]byte) resp.Value {
	min, minExcl, minInf, ok1 := parseLexBound(string(args[1]))
	max, maxExcl, maxInf, ok2 := parseLexBound(string(args[2]))
	if !ok1 || !ok2 {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		got := e.Val.(*store.ZSetVal).RangeByLex(min, max, minExcl, maxExcl, minInf, maxInf)
		items := make([]resp.Value, len(got))
		for i, it := range got {
			items[i] = resp.BulkFromString(it.Member())
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

func cmdZRevRangeByScore(ctx *dispatch.Context, args [][]byte) resp.Value {
	max, maxExcl, ok1 := parseScoreBound(string(args[1]))
	min, minExcl, ok2 := parseScoreBound(string(args[2]))
	if !ok1 || !ok2 {
		return resp.Err(ferrors.ErrMinMaxFloat.Error())
	}
	withScores := len(args) > 3 && strings.EqualFold(string(args[3]), "WITHSCORES")
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		got := e.Val.(*store.ZSetVal).RangeByScore(min, max, minExcl, maxExcl)
		var items []resp.Value
		for i := len(got) - 1; i >= 0; i-- {
			items = append(items, resp.BulkFromString(got[i].Member()))
			if withScores {
				items = append(items, resp.BulkFromString(formatFloat(got[i].Score())))
			}
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

// cmdZScan mirrors cmdHScan's single-page, cursor-"0" implementation.
func cmdZScan(ctx *dispatch.Context, args [][]byte) resp.Value {
	pattern := "*"
	for i := 2; i < len(args); i++ {
		if strings.EqualFold(string(args[i]), "MATCH") && i+1 < len(args) {
			pattern = string(args[i+1])
			i++
		}
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil || !ok {
			out = resp.Arr(resp.BulkFromString("0"), resp.ArrSlice(nil))
			return nil
		}
		zv := e.Val.(*store.ZSetVal)
		var items []resp.Value
		for _, it := range zv.RangeByRank(0, -1, false) {
			if pattern != "*" && !store.MatchGlob(pattern, it.Member()) {
				continue
			}
			items = append(items, resp.BulkFromString(it.Member()), resp.BulkFromString(formatFloat(it.Score())))
		}
		out = resp.Arr(resp.BulkFromString("0"), resp.ArrSlice(items))
		return nil
	})
	return out
}

func parseScoreBound(s string) (val float64, excl bool, ok bool) {
	if len(s) > 0 && s[0] == '(' {
		excl = true
		s = s[1:]
	}
	val, ok = store.ParseStrictFloat64(s)
	return
}

func cmdZAdd(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	i := 1
	var ch, incr, nx, xx, gt, lt bool
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "CH":
			ch = true
		case "INCR":
			incr = true
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "GT":
			gt = true
		case "LT":
			lt = true
		default:
			goto parsedOpts
		}
		i++
	}
parsedOpts:
	if (len(args)-i)%2 != 0 || len(args)-i == 0 {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	if nx && (xx || gt || lt) {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	if gt && lt {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	if incr && len(args)-i != 2 {
		return resp.Err("ERR INCR option supports a single increment-element pair")
	}

	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeZSet, func() any { return store.NewZSetVal() })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		zv := e.Val.(*store.ZSetVal)
		added, changed := 0, 0
		var lastScore float64
		var skippedIncr bool
		for p := i; p < len(args); p += 2 {
			score, ok := store.ParseStrictFloat64(string(args[p]))
			if !ok {
				out = resp.Err(ferrors.ErrNotFloat.Error())
				return nil
			}
			member := string(args[p+1])
			old, exists := zv.Score(member)
			if nx && exists {
				continue
			}
			if xx && !exists {
				continue
			}
			if incr {
				if exists {
					score += old
				}
			}
			if exists && gt && score <= old {
				skippedIncr = true
				continue
			}
			if exists && lt && score >= old {
				skippedIncr = true
				continue
			}
			isNew := zv.Set(member, score)
			lastScore = score
			if isNew {
				added++
			}
			changed++
		}
		tx.MutateDone(key, e, zv.Len() == 0)
		if incr {
			if skippedIncr || changed == 0 {
				out = resp.NullBulk()
			} else {
				out = resp.BulkFromString(formatFloat(lastScore))
			}
			return nil
		}
		if ch {
			out = resp.Int(int64(changed))
		} else {
			out = resp.Int(int64(added))
		}
		return nil
	})
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func cmdZScore(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.NullBulk()
			return nil
		}
		s, exists := e.Val.(*store.ZSetVal).Score(string(args[1]))
		if !exists {
			out = resp.NullBulk()
			return nil
		}
		out = resp.BulkFromString(formatFloat(s))
		return nil
	})
	return out
}

func cmdZRem(ctx *dispatch.Context, args [][]byte) resp.Value {
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(key, store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		zv := e.Val.(*store.ZSetVal)
		removed := 0
		for _, m := range args[1:] {
			if zv.Remove(string(m)) {
				removed++
			}
		}
		tx.MutateDone(key, e, zv.Len() == 0)
		out = resp.Int(int64(removed))
		return nil
	})
	return out
}

func cmdZCard(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		out = resp.Int(int64(e.Val.(*store.ZSetVal).Len()))
		return nil
	})
	return out
}

func zrangeCommon(ctx *dispatch.Context, args [][]byte, reverse bool) resp.Value {
	start, ok1 := strconv.Atoi(string(args[1]))
	stop, ok2 := strconv.Atoi(string(args[2]))
	if ok1 != nil || ok2 != nil {
		return resp.Err(ferrors.ErrNotInt.Error())
	}
	withScores := len(args) > 3 && strings.EqualFold(string(args[3]), "WITHSCORES")

	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		got := e.Val.(*store.ZSetVal).RangeByRank(start, stop, reverse)
		var items []resp.Value
		for _, it := range got {
			items = append(items, resp.BulkFromString(it.Member()))
			if withScores {
				items = append(items, resp.BulkFromString(formatFloat(it.Score())))
			}
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

func cmdZRange(ctx *dispatch.Context, args [][]byte) resp.Value {
	return zrangeCommon(ctx, args, false)
}

func cmdZRevRange(ctx *dispatch.Context, args [][]byte) resp.Value {
	return zrangeCommon(ctx, args, true)
}

func cmdZRangeByScore(ctx *dispatch.Context, args [][]byte) resp.Value {
	min, minExcl, ok1 := parseScoreBound(string(args[1]))
	max, maxExcl, ok2 := parseScoreBound(string(args[2]))
	if !ok1 || !ok2 {
		return resp.Err(ferrors.ErrMinMaxFloat.Error())
	}
	withScores := len(args) > 3 && strings.EqualFold(string(args[3]), "WITHSCORES")

	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		got := e.Val.(*store.ZSetVal).RangeByScore(min, max, minExcl, maxExcl)
		var items []resp.Value
		for _, it := range got {
			items = append(items, resp.BulkFromString(it.Member()))
			if withScores {
				items = append(items, resp.BulkFromString(formatFloat(it.Score())))
			}
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

func cmdZCount(ctx *dispatch.Context, args [][]byte) resp.Value {
	min, minExcl, ok1 := parseScoreBound(string(args[1]))
	max, maxExcl, ok2 := parseScoreBound(string(args[2]))
	if !ok1 || !ok2 {
		return resp.Err(ferrors.ErrMinMaxFloat.Error())
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.Int(0)
			return nil
		}
		out = resp.Int(int64(e.Val.(*store.ZSetVal).Count(min, max, minExcl, maxExcl)))
		return nil
	})
	return out
}

func cmdZRank(ctx *dispatch.Context, args [][]byte) resp.Value {
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.NullBulk()
			return nil
		}
		rank := e.Val.(*store.ZSetVal).Rank(string(args[1]))
		if rank < 0 {
			out = resp.NullBulk()
			return nil
		}
		out = resp.Int(int64(rank))
		return nil
	})
	return out
}

func cmdZIncrBy(ctx *dispatch.Context, args [][]byte) resp.Value {
	delta, ok := store.ParseStrictFloat64(string(args[1]))
	if !ok {
		return resp.Err(ferrors.ErrNotFloat.Error())
	}
	key := string(args[0])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, err := tx.GetOrCreate(key, store.TypeZSet, func() any { return store.NewZSetVal() })
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		zv := e.Val.(*store.ZSetVal)
		member := string(args[2])
		cur, _ := zv.Score(member)
		newScore := cur + delta
		zv.Set(member, newScore)
		tx.MutateDone(key, e, false)
		out = resp.BulkFromString(formatFloat(newScore))
		return nil
	})
	return out
}

func zpopCommon(ctx *dispatch.Context, args [][]byte, max bool) resp.Value {
	count := 1
	if len(args) > 1 {
		n, ok := store.ParseStrictInt64(string(args[1]))
		if !ok || n < 0 {
			return resp.Err(ferrors.ErrNotInt.Error())
		}
		count = int(n)
	}
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok, err := tx.LookupTyped(string(args[0]), store.TypeZSet)
		if err != nil {
			out = resp.Err(err.Error())
			return nil
		}
		if !ok {
			out = resp.ArrSlice(nil)
			return nil
		}
		zv := e.Val.(*store.ZSetVal)
		var popped []struct {
			member string
			score  float64
		}
		if max {
			for _, it := range zv.PopMax(count) {
				popped = append(popped, struct {
					member string
					score  float64
				}{it.Member(), it.Score()})
			}
		} else {
			for _, it := range zv.PopMin(count) {
				popped = append(popped, struct {
					member string
					score  float64
				}{it.Member(), it.Score()})
			}
		}
		tx.MutateDone(string(args[0]), e, zv.Len() == 0)
		items := make([]resp.Value, 0, len(popped)*2)
		for _, p := range popped {
			items = append(items, resp.BulkFromString(p.member), resp.BulkFromString(formatFloat(p.score)))
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

func cmdZPopMin(ctx *dispatch.Context, args [][]byte) resp.Value { return zpopCommon(ctx, args, false) }
func cmdZPopMax(ctx *dispatch.Context, args [][]byte) resp.Value { return zpopCommon(ctx, args, true) }
