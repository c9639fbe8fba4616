// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package persistence

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ferrousdb/ferrous/internal/store"
)

func buildKeyspace(t *testing.T) *store.Keyspace {
	t.Helper()
	ks := store.NewKeyspace(4, store.SystemClock{})
	ks.DB(0).Do(func(tx *store.Tx) error {
		tx.Put("s", &store.Entry{Val: store.NewStringVal([]byte("hello")), Type: store.TypeString})

		lv := store.NewListVal()
		lv.PushRight([]byte("a"))
		lv.PushRight([]byte("b"))
		tx.Put("l", &store.Entry{Val: lv, Type: store.TypeList})

		sv := store.NewSetVal()
		sv.Add("m1")
		sv.Add("m2")
		tx.Put("set", &store.Entry{Val: sv, Type: store.TypeSet})

		hv := store.NewHashVal()
		hv.Set("f", "v")
		tx.Put("h", &store.Entry{Val: hv, Type: store.TypeHash})

		zv := store.NewZSetVal()
		zv.Set("one", 1)
		zv.Set("two", 2)
		tx.Put("z", &store.Entry{Val: zv, Type: store.TypeZSet})

		st := store.NewStreamVal()
		st.Append(store.StreamID{Ms: 1, Seq: 1}, []store.StreamField{{Field: "k", Value: "v"}})
		st.CreateGroup("g", store.StreamID{})
		g, _ := st.Group("g")
		st.ReadGroup(g, "c1", 1, 42)
		tx.Put("x", &store.Entry{Val: st, Type: store.TypeStream})
		return nil
	})
	ks.DB(2).Do(func(tx *store.Tx) error {
		tx.Put("other", &store.Entry{Val: store.NewStringVal([]byte("db2")), Type: store.TypeString})
		return nil
	})
	return ks
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := buildKeyspace(t)
	require.NoError(t, Save(src, dir, "dump.fdb"))

	dst := store.NewKeyspace(4, store.SystemClock{})
	require.NoError(t, Load(dst, dir, "dump.fdb"))

	dst.DB(0).Do(func(tx *store.Tx) error {
		e, ok := tx.Lookup("s")
		require.True(t, ok)
		require.Equal(t, []byte("hello"), e.Val.(*store.StringVal).Bytes)

		e, _ = tx.Lookup("l")
		require.Empty(t, cmp.Diff([][]byte{[]byte("a"), []byte("b")}, e.Val.(*store.ListVal).Range(0, -1)))

		e, _ = tx.Lookup("set")
		require.Equal(t, 2, e.Val.(*store.SetVal).Len())

		e, _ = tx.Lookup("h")
		require.Empty(t, cmp.Diff(map[string]string{"f": "v"}, e.Val.(*store.HashVal).All()))

		e, _ = tx.Lookup("z")
		score, ok := e.Val.(*store.ZSetVal).Score("two")
		require.True(t, ok)
		require.Equal(t, 2.0, score)

		e, _ = tx.Lookup("x")
		st := e.Val.(*store.StreamVal)
		require.Equal(t, 1, st.Len())
		require.Equal(t, store.StreamID{Ms: 1, Seq: 1}, st.LastID())
		g, ok := st.Group("g")
		require.True(t, ok)
		require.True(t, g.Consumers["c1"])
		require.Len(t, g.Pending, 1)
		return nil
	})

	dst.DB(2).Do(func(tx *store.Tx) error {
		e, ok := tx.Lookup("other")
		require.True(t, ok)
		require.Equal(t, []byte("db2"), e.Val.(*store.StringVal).Bytes)
		return nil
	})
}

func TestSaveLoadPreservesExpiry(t *testing.T) {
	dir := t.TempDir()
	src := store.NewKeyspace(1, store.SystemClock{})
	src.DB(0).Do(func(tx *store.Tx) error {
		tx.Put("temp", &store.Entry{Val: store.NewStringVal([]byte("x")), Type: store.TypeString})
		tx.SetExpire("temp", time.Now().Add(time.Hour))
		return nil
	})
	require.NoError(t, Save(src, dir, "dump.fdb"))

	dst := store.NewKeyspace(1, store.SystemClock{})
	require.NoError(t, Load(dst, dir, "dump.fdb"))
	dst.DB(0).Do(func(tx *store.Tx) error {
		ttl, hasExpiry, exists := tx.TTL("temp")
		require.True(t, exists)
		require.True(t, hasExpiry)
		require.Greater(t, ttl, 50*time.Minute)
		return nil
	})
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	ks := store.NewKeyspace(1, store.SystemClock{})
	require.NoError(t, Load(ks, t.TempDir(), "nope.fdb"))
	ks.DB(0).Do(func(tx *store.Tx) error {
		require.Equal(t, 0, tx.DBSize())
		return nil
	})
}

func TestLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	fl, err := Lock(dir)
	require.NoError(t, err)
	defer fl.Unlock()

	_, err = Lock(dir)
	require.Error(t, err)
}
