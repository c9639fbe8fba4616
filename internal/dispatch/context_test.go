// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package dispatch

import (
	"testing"
	"time"

	"github.com/ferrousdb/ferrous/internal/pubsub"
	"github.com/ferrousdb/ferrous/internal/resp"
	"github.com/ferrousdb/ferrous/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	ks := store.NewKeyspace(1, store.NewFakeClock(time.Unix(1000, 0)))
	srv := NewServerInfo("test", "", 1)
	return NewContext(1, ks, pubsub.NewHub(), srv)
}

func TestRunTxAcquiresDatabaseWhenNoActiveTx(t *testing.T) {
	ctx := newTestContext(t)
	var sawTx *store.Tx
	err := ctx.RunTx(func(tx *store.Tx) error {
		sawTx = tx
		tx.Put("k", &store.Entry{Val: store.NewStringVal([]byte("v")), Type: store.TypeString})
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, sawTx)
}

func TestRunTxReusesActiveTxInsteadOfReacquiring(t *testing.T) {
	ctx := newTestContext(t)
	done := make(chan struct{})
	ctx.DB().Do(func(tx *store.Tx) error {
		ctx.ActiveTx = tx
		defer func() { ctx.ActiveTx = nil }()
		// A nested RunTx call must reuse tx, not deadlock against the
		// same database's non-reentrant lock.
		err := ctx.RunTx(func(inner *store.Tx) error {
			require.Same(t, tx, inner)
			return nil
		})
		require.NoError(t, err)
		close(done)
		return nil
	})
	select {
	case <-done:
	default:
		t.Fatal("nested RunTx did not run: database deadlocked")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := newTestContext(t)
	require.NotPanics(t, func() {
		ctx.Close()
		ctx.Close()
	})
	select {
	case <-ctx.Closing:
	default:
		t.Fatal("Closing channel was not closed")
	}
}

func TestValidateRejectsUnknownCommandAndWrongArity(t *testing.T) {
	table := NewTable()
	table.Register(Spec{Name: "GET", Arity: 2, Handler: func(*Context, [][]byte) resp.Value { return resp.NullBulk() }})

	_, err := table.Validate("NOSUCHCOMMAND", 1)
	require.Error(t, err)

	_, err = table.Validate("GET", 1)
	require.Error(t, err)

	spec, err := table.Validate("GET", 2)
	require.NoError(t, err)
	require.Equal(t, "GET", spec.Name)
}
