// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import (
	"sort"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/resp"
	"github.com/ferrousdb/ferrous/internal/store"
)

// globalTable is set by registerTransactions so MULTI/EXEC can re-enter dispatch for each
// queued command without an import cycle (command -> dispatch already
// exists; dispatch must not import command back).
var globalTable *dispatch.Table

func registerTransactions(t *dispatch.Table) {
	globalTable = t
	t.Register(dispatch.Spec{Name: "MULTI", Arity: 1, Flags: dispatch.FlagNoScript, Handler: cmdMulti})
	t.Register(dispatch.Spec{Name: "EXEC", Arity: 1, Flags: dispatch.FlagNoScript, Handler: cmdExec})
	t.Register(dispatch.Spec{Name: "DISCARD", Arity: 1, Flags: dispatch.FlagNoScript, Handler: cmdDiscard})
	t.Register(dispatch.Spec{Name: "WATCH", Arity: -2, Flags: dispatch.FlagTxUnsafe | dispatch.FlagNoScript, Handler: cmdWatch})
	t.Register(dispatch.Spec{Name: "UNWATCH", Arity: 1, Flags: dispatch.FlagNoScript, Handler: cmdUnwatch})
}

func cmdMulti(ctx *dispatch.Context, args [][]byte) resp.Value {
	if ctx.Tx.InMulti {
		return resp.Err("ERR MULTI calls can not be nested")
	}
	ctx.Tx.InMulti = true
	ctx.Tx.Aborted = false
	ctx.Tx.Queue = nil
	ctx.State = dispatch.StateTx
	return resp.OK()
}

func cmdDiscard(ctx *dispatch.Context, args [][]byte) resp.Value {
	if !ctx.Tx.InMulti {
		return resp.Err("ERR DISCARD without MULTI")
	}
	unwatchAll(ctx)
	ctx.Tx.Reset()
	ctx.State = dispatch.StateReady
	return resp.OK()
}

// acquireSortedDBs locks each of indices (already deduplicated) in
// ascending order, nesting one Database.Do per index, then invokes fn
// with every acquired Tx keyed by its database index. Cross-database
// commands must always lock in the same fixed order, or two
// connections touching the same pair of databases from opposite ends
// could deadlock against each other.
func acquireSortedDBs(ks *store.Keyspace, indices []int, fn func(map[int]*store.Tx) error) error {
	acquired := make(map[int]*store.Tx, len(indices))
	var acquire func(i int) error
	acquire = func(i int) error {
		if i == len(indices) {
			return fn(acquired)
		}
		idx := indices[i]
		return ks.DB(idx).Do(func(tx *store.Tx) error {
			acquired[idx] = tx
			return acquire(i + 1)
		})
	}
	return acquire(0)
}

func cmdExec(ctx *dispatch.Context, args [][]byte) resp.Value {
	if !ctx.Tx.InMulti {
		return resp.Err("ERR EXEC without MULTI")
	}
	aborted := ctx.Tx.Aborted
	queue := ctx.Tx.Queue
	watches := ctx.Tx.Watches
	unwatchAll(ctx)
	ctx.Tx.Reset()
	ctx.State = dispatch.StateReady

	if aborted {
		return resp.Err(ferrors.ErrExecAbort.Error())
	}

	// A WATCH recorded against one database must be re-checked against
	// that same database even if the connection has since SELECTed a
	// different one, so every distinct database a mark came from is
	// locked alongside the currently selected one.
	dbSet := map[int]bool{ctx.DBIndex: true}
	for _, w := range watches {
		dbSet[w.DBIndex] = true
	}
	dbIndices := make([]int, 0, len(dbSet))
	for idx := range dbSet {
		dbIndices = append(dbIndices, idx)
	}
	sort.Ints(dbIndices)

	var out resp.Value
	acquireSortedDBs(ctx.Keyspace, dbIndices, func(txs map[int]*store.Tx) error {
		for _, w := range watches {
			if !txs[w.DBIndex].CheckWatch(w) {
				out = resp.NullArray()
				return nil
			}
		}
		// The whole queued vector runs under the selected database's
		// single acquisition; nested handlers reuse it via ctx.RunTx
		// instead of re-locking the database.
		ctx.ActiveTx = txs[ctx.DBIndex]
		defer func() { ctx.ActiveTx = nil }()
		items := make([]resp.Value, len(queue))
		for i, q := range queue {
			items[i] = globalTable.Dispatch(ctx, q.Argv)
		}
		out = resp.ArrSlice(items)
		return nil
	})
	return out
}

func cmdWatch(ctx *dispatch.Context, args [][]byte) resp.Value {
	if ctx.Tx.InMulti {
		return resp.Err("ERR WATCH inside MULTI is not allowed")
	}
	ctx.DB().Do(func(tx *store.Tx) error {
		for _, k := range args {
			mark := tx.Watch(ctx.ConnID, string(k))
			mark.DBIndex = ctx.DBIndex
			ctx.Tx.Watches = append(ctx.Tx.Watches, mark)
		}
		return nil
	})
	return resp.OK()
}

func cmdUnwatch(ctx *dispatch.Context, args [][]byte) resp.Value {
	unwatchAll(ctx)
	return resp.OK()
}

// unwatchAll clears every mark this connection holds, releasing each
// against the database it was actually recorded in rather than
// whichever database happens to be selected now.
func unwatchAll(ctx *dispatch.Context) {
	if len(ctx.Tx.Watches) == 0 {
		return
	}
	byDB := make(map[int][]string)
	for _, w := range ctx.Tx.Watches {
		byDB[w.DBIndex] = append(byDB[w.DBIndex], w.Key)
	}
	for idx, keys := range byDB {
		ctx.Keyspace.DB(idx).Do(func(tx *store.Tx) error {
			for _, k := range keys {
				tx.Unwatch(ctx.ConnID, k)
			}
			return nil
		})
	}
	ctx.Tx.ClearWatches()
}
