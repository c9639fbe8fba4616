// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"testing"
	"time"

	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) (*Database, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(time.Unix(1000, 0))
	return newDatabase(clock), clock
}

func TestTxGetOrCreateAndMutateDone(t *testing.T) {
	db, _ := newTestDB(t)
	err := db.Do(func(tx *Tx) error {
		e, err := tx.GetOrCreate("s", TypeSet, func() any { return NewSetVal() })
		require.NoError(t, err)
		sv := e.Val.(*SetVal)
		sv.Add("m1")
		tx.MutateDone("s", e, sv.Len() == 0)
		return nil
	})
	require.NoError(t, err)

	db.Do(func(tx *Tx) error {
		e, ok, err := tx.LookupTyped("s", TypeSet)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 1, e.Val.(*SetVal).Len())
		require.Equal(t, uint64(1), e.Version)
		return nil
	})
}

func TestTxWrongType(t *testing.T) {
	db, _ := newTestDB(t)
	db.Do(func(tx *Tx) error {
		_, err := tx.GetOrCreate("k", TypeSet, func() any { return NewSetVal() })
		require.NoError(t, err)
		return nil
	})
	db.Do(func(tx *Tx) error {
		_, _, err := tx.LookupTyped("k", TypeHash)
		require.ErrorIs(t, err, ferrors.ErrWrongType)
		return nil
	})
}

func TestTxMutateDoneRemovesEmptyContainer(t *testing.T) {
	db, _ := newTestDB(t)
	db.Do(func(tx *Tx) error {
		e, _ := tx.GetOrCreate("l", TypeList, func() any { return NewListVal() })
		lv := e.Val.(*ListVal)
		lv.PushRight([]byte("x"))
		tx.MutateDone("l", e, false)
		lv.PopRight()
		tx.MutateDone("l", e, lv.Len() == 0)
		return nil
	})
	db.Do(func(tx *Tx) error {
		require.False(t, tx.Exists("l"))
		return nil
	})
}

func TestTxExpireLazyAndSetExpire(t *testing.T) {
	db, clock := newTestDB(t)
	db.Do(func(tx *Tx) error {
		tx.Put("k", &Entry{Val: NewStringVal([]byte("v")), Type: TypeString})
		existed, deletedNow := tx.SetExpire("k", tx.Now().Add(5*time.Second))
		require.True(t, existed)
		require.False(t, deletedNow)
		return nil
	})

	db.Do(func(tx *Tx) error {
		ttl, hasExp, exists := tx.TTL("k")
		require.True(t, exists)
		require.True(t, hasExp)
		require.Equal(t, 5*time.Second, ttl)
		return nil
	})

	clock.Advance(10 * time.Second)

	db.Do(func(tx *Tx) error {
		require.False(t, tx.Exists("k"))
		return nil
	})
}

func TestTxSetExpireInPastDeletesImmediately(t *testing.T) {
	db, _ := newTestDB(t)
	db.Do(func(tx *Tx) error {
		tx.Put("k", &Entry{Val: NewStringVal([]byte("v")), Type: TypeString})
		existed, deletedNow := tx.SetExpire("k", tx.Now().Add(-time.Second))
		require.True(t, existed)
		require.True(t, deletedNow)
		require.False(t, tx.Exists("k"))
		return nil
	})
}

func TestTxWatchCheckWatch(t *testing.T) {
	db, _ := newTestDB(t)
	var mark WatchMark
	db.Do(func(tx *Tx) error {
		mark = tx.Watch(1, "k")
		require.False(t, mark.Existed)
		return nil
	})

	db.Do(func(tx *Tx) error {
		require.True(t, tx.CheckWatch(mark))
		tx.Put("k", &Entry{Val: NewStringVal([]byte("v")), Type: TypeString})
		tx.MutateDone("k", mustEntry(tx, "k"), false)
		return nil
	})

	db.Do(func(tx *Tx) error {
		require.False(t, tx.CheckWatch(mark))
		return nil
	})
}

func mustEntry(tx *Tx, key string) *Entry {
	e, _ := tx.Lookup(key)
	return e
}

func TestTxRenameAndKeysGlob(t *testing.T) {
	db, _ := newTestDB(t)
	db.Do(func(tx *Tx) error {
		tx.Put("foo1", &Entry{Val: NewStringVal([]byte("a")), Type: TypeString})
		tx.Put("foo2", &Entry{Val: NewStringVal([]byte("b")), Type: TypeString})
		tx.Put("bar", &Entry{Val: NewStringVal([]byte("c")), Type: TypeString})
		return nil
	})

	db.Do(func(tx *Tx) error {
		keys := tx.Keys("foo*")
		require.ElementsMatch(t, []string{"foo1", "foo2"}, keys)
		require.True(t, tx.Rename("bar", "baz"))
		require.False(t, tx.Exists("bar"))
		require.True(t, tx.Exists("baz"))
		return nil
	})
}

func TestBlockingPushDeliversDirectlyToWaiter(t *testing.T) {
	db, _ := newTestDB(t)
	w := NewBlockWaiter([]string{"q"})

	db.Do(func(tx *Tx) error {
		key, _, ok := tx.TryPopForBlock([]string{"q"}, true)
		require.False(t, ok)
		require.Equal(t, "", key)
		tx.ParkWaiter(w)
		return nil
	})

	db.Do(func(tx *Tx) error {
		delivered, err := tx.PushList("q", false, [][]byte{[]byte("v1")})
		require.NoError(t, err)
		require.Equal(t, 1, delivered)
		return nil
	})

	select {
	case res := <-w.Result:
		require.Equal(t, "q", res.Key)
		require.Equal(t, "v1", string(res.Value))
	default:
		t.Fatal("waiter was not woken")
	}

	db.Do(func(tx *Tx) error {
		require.False(t, tx.Exists("q"))
		return nil
	})
}

func TestBlockWaiterClaimOnce(t *testing.T) {
	w := NewBlockWaiter([]string{"a", "b"})
	require.True(t, w.Claim())
	require.False(t, w.Claim())
}

func TestKeyspaceSwapDB(t *testing.T) {
	ks := NewKeyspace(2, NewFakeClock(time.Unix(0, 0)))
	ks.DB(0).Do(func(tx *Tx) error {
		tx.Put("only-in-0", &Entry{Val: NewStringVal([]byte("v")), Type: TypeString})
		return nil
	})
	require.True(t, ks.SwapDB(0, 1))
	ks.DB(1).Do(func(tx *Tx) error {
		require.True(t, tx.Exists("only-in-0"))
		return nil
	})
	ks.DB(0).Do(func(tx *Tx) error {
		require.False(t, tx.Exists("only-in-0"))
		return nil
	})
}

func TestKeyspaceMove(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	ks := NewKeyspace(4, clock)
	ks.DB(0).Do(func(tx *Tx) error {
		tx.Put("k", &Entry{Val: NewStringVal([]byte("v")), Type: TypeString})
		return nil
	})

	moved, err := ks.Move(0, 1, "k")
	require.NoError(t, err)
	require.True(t, moved)

	ks.DB(0).Do(func(tx *Tx) error {
		require.False(t, tx.Exists("k"))
		return nil
	})
	ks.DB(1).Do(func(tx *Tx) error {
		e, ok := tx.Lookup("k")
		require.True(t, ok)
		require.Equal(t, []byte("v"), e.Val.(*StringVal).Bytes)
		return nil
	})

	// Absent in source now.
	moved, err = ks.Move(0, 1, "k")
	require.NoError(t, err)
	require.False(t, moved)

	// Same database is an error.
	_, err = ks.Move(1, 1, "k")
	require.Error(t, err)

	// Occupied destination refuses.
	ks.DB(2).Do(func(tx *Tx) error {
		tx.Put("k", &Entry{Val: NewStringVal([]byte("old")), Type: TypeString})
		return nil
	})
	moved, err = ks.Move(1, 2, "k")
	require.NoError(t, err)
	require.False(t, moved)
}

func TestSweeperDeletesExpiredKeys(t *testing.T) {
	ks := NewKeyspace(1, nil)
	clock := NewFakeClock(time.Unix(0, 0))
	ks.dbs[0] = newDatabase(clock)

	ks.DB(0).Do(func(tx *Tx) error {
		tx.Put("k1", &Entry{Val: NewStringVal([]byte("v")), Type: TypeString})
		tx.SetExpire("k1", tx.Now().Add(time.Second))
		return nil
	})
	clock.Advance(2 * time.Second)

	sw := NewSweeper(ks, DefaultSweeperOptions(), nil)
	sw.sweepOnce()

	ks.DB(0).Do(func(tx *Tx) error {
		require.False(t, tx.Exists("k1"))
		return nil
	})
}
