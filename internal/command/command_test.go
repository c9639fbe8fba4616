// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/pubsub"
	"github.com/ferrousdb/ferrous/internal/resp"
	"github.com/ferrousdb/ferrous/internal/store"
)

// testEnv is the shared fixture for command-level tests: one keyspace,
// one table, and as many connection contexts as a scenario needs.
type testEnv struct {
	ks    *store.Keyspace
	hub   *pubsub.Hub
	srv   *dispatch.ServerInfo
	table *dispatch.Table
	clock *store.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := store.NewFakeClock(time.Unix(1000, 0))
	ks := store.NewKeyspace(4, clock)
	table := dispatch.NewTable()
	Register(table)
	BindScriptEngine(table)
	srv := dispatch.NewServerInfo("test", "", 4)
	srv.Table = table
	return &testEnv{ks: ks, hub: pubsub.NewHub(), srv: srv, table: table, clock: clock}
}

func (env *testEnv) conn(id uint64) *dispatch.Context {
	ctx := dispatch.NewContext(id, env.ks, env.hub, env.srv)
	ctx.Authenticated = true
	return ctx
}

func (env *testEnv) do(ctx *dispatch.Context, args ...string) resp.Value {
	argv := make([][]byte, len(args))
	for i, a := range args {
		argv[i] = []byte(a)
	}
	return env.table.Dispatch(ctx, argv)
}

func TestSetGetWithExpiry(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	require.Equal(t, resp.OK(), env.do(c, "SET", "k", "v", "EX", "1"))
	require.Equal(t, resp.BulkFromString("v"), env.do(c, "GET", "k"))

	env.clock.Advance(1100 * time.Millisecond)
	require.Equal(t, resp.NullBulk(), env.do(c, "GET", "k"))
	require.Equal(t, resp.Int(0), env.do(c, "EXISTS", "k"))
}

func TestLPushHeadOrder(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	env.do(c, "DEL", "l")
	require.Equal(t, resp.Int(3), env.do(c, "LPUSH", "l", "a", "b", "c"))
	got := env.do(c, "LRANGE", "l", "0", "-1")
	require.Equal(t, resp.Arr(
		resp.BulkFromString("c"), resp.BulkFromString("b"), resp.BulkFromString("a"),
	), got)
}

func TestSetNXLeavesExistingValue(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	env.do(c, "SET", "k", "v")
	require.Equal(t, resp.NullBulk(), env.do(c, "SET", "k", "v2", "NX"))
	require.Equal(t, resp.BulkFromString("v"), env.do(c, "GET", "k"))
}

func TestWrongTypeKeepsKeyIntact(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	env.do(c, "SET", "k", "v")
	got := env.do(c, "LPUSH", "k", "x")
	require.Equal(t, resp.Error, got.Kind)
	require.Contains(t, got.Str, "WRONGTYPE")
	require.Equal(t, resp.BulkFromString("v"), env.do(c, "GET", "k"))
}

func TestIncrErrors(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	env.do(c, "SET", "k", "notanumber")
	got := env.do(c, "INCR", "k")
	require.Equal(t, resp.Error, got.Kind)
	require.Equal(t, "ERR value is not an integer or out of range", got.Str)

	env.do(c, "SET", "big", "9223372036854775807")
	got = env.do(c, "INCR", "big")
	require.Equal(t, resp.Error, got.Kind)

	require.Equal(t, resp.Int(1), env.do(c, "INCR", "fresh"))
	require.Equal(t, resp.Int(11), env.do(c, "INCRBY", "fresh", "10"))
	require.Equal(t, resp.Int(10), env.do(c, "DECR", "fresh"))
}

func TestExpireAtInPastDeletesImmediately(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	env.do(c, "SET", "k", "v")
	// The fake clock sits at unix 1000; one second earlier is in the past.
	require.Equal(t, resp.Int(1), env.do(c, "EXPIREAT", "k", "999"))
	require.Equal(t, resp.Int(0), env.do(c, "EXISTS", "k"))
}

func TestWatchAbortsOnConcurrentWrite(t *testing.T) {
	env := newTestEnv(t)
	a := env.conn(1)
	b := env.conn(2)

	env.do(a, "SET", "k", "old")
	require.Equal(t, resp.OK(), env.do(a, "WATCH", "k"))
	require.Equal(t, resp.OK(), env.do(a, "MULTI"))
	a.Tx.Queue = append(a.Tx.Queue, dispatch.QueuedCommand{Argv: [][]byte{[]byte("SET"), []byte("k"), []byte("new")}})

	require.Equal(t, resp.OK(), env.do(b, "SET", "k", "other"))

	require.Equal(t, resp.NullArray(), env.do(a, "EXEC"))
	require.Equal(t, resp.BulkFromString("other"), env.do(a, "GET", "k"))
}

func TestWatchAbortsOnExpiry(t *testing.T) {
	env := newTestEnv(t)
	a := env.conn(1)

	env.do(a, "SET", "k", "v", "PX", "100")
	env.do(a, "WATCH", "k")
	env.do(a, "MULTI")
	a.Tx.Queue = append(a.Tx.Queue, dispatch.QueuedCommand{Argv: [][]byte{[]byte("GET"), []byte("k")}})

	env.clock.Advance(200 * time.Millisecond)

	require.Equal(t, resp.NullArray(), env.do(a, "EXEC"))
}

func TestExecCommitsWhenWatchedKeyUntouched(t *testing.T) {
	env := newTestEnv(t)
	a := env.conn(1)

	env.do(a, "SET", "k", "old")
	env.do(a, "WATCH", "k")
	env.do(a, "MULTI")
	a.Tx.Queue = append(a.Tx.Queue, dispatch.QueuedCommand{Argv: [][]byte{[]byte("SET"), []byte("k"), []byte("new")}})

	got := env.do(a, "EXEC")
	require.Equal(t, resp.Arr(resp.OK()), got)
	require.Equal(t, resp.BulkFromString("new"), env.do(a, "GET", "k"))
}

func TestExecWithStickyErrorAborts(t *testing.T) {
	env := newTestEnv(t)
	a := env.conn(1)

	env.do(a, "MULTI")
	a.Tx.Aborted = true // queue-time error recorded by the connection layer

	got := env.do(a, "EXEC")
	require.Equal(t, resp.Error, got.Kind)
	require.Contains(t, got.Str, "EXECABORT")
}

func TestExecRuntimeErrorDoesNotAbortRest(t *testing.T) {
	env := newTestEnv(t)
	a := env.conn(1)

	env.do(a, "SET", "s", "str")
	env.do(a, "MULTI")
	a.Tx.Queue = append(a.Tx.Queue,
		dispatch.QueuedCommand{Argv: [][]byte{[]byte("LPUSH"), []byte("s"), []byte("x")}},
		dispatch.QueuedCommand{Argv: [][]byte{[]byte("SET"), []byte("after"), []byte("ran")}},
	)

	got := env.do(a, "EXEC")
	require.Equal(t, resp.Array, got.Kind)
	require.Len(t, got.Items, 2)
	require.Equal(t, resp.Error, got.Items[0].Kind)
	require.Equal(t, resp.OK(), got.Items[1])
	require.Equal(t, resp.BulkFromString("ran"), env.do(a, "GET", "after"))
}

func TestBlockingPopImmediateAndWake(t *testing.T) {
	env := newTestEnv(t)
	a := env.conn(1)
	b := env.conn(2)

	env.do(a, "RPUSH", "q", "ready")
	require.Equal(t,
		resp.Arr(resp.BulkFromString("q"), resp.BulkFromString("ready")),
		env.do(a, "BLPOP", "q", "1"))

	done := make(chan resp.Value, 1)
	go func() { done <- env.do(a, "BLPOP", "q", "5") }()

	// Give the waiter a moment to park before pushing.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, resp.Int(1), env.do(b, "RPUSH", "q", "hello"))

	select {
	case got := <-done:
		require.Equal(t, resp.Arr(resp.BulkFromString("q"), resp.BulkFromString("hello")), got)
	case <-time.After(2 * time.Second):
		t.Fatal("parked BLPOP was never woken by the push")
	}
	require.Equal(t, resp.Int(0), env.do(b, "LLEN", "q"))
}

func TestBlockingPopTimeout(t *testing.T) {
	env := newTestEnv(t)
	a := env.conn(1)

	start := time.Now()
	got := env.do(a, "BLPOP", "empty", "0.05")
	require.Equal(t, resp.NullArray(), got)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestGetDelAndCopy(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	env.do(c, "SET", "k", "v")
	require.Equal(t, resp.BulkFromString("v"), env.do(c, "GETDEL", "k"))
	require.Equal(t, resp.Int(0), env.do(c, "EXISTS", "k"))

	env.do(c, "SET", "src", "payload")
	require.Equal(t, resp.Int(1), env.do(c, "COPY", "src", "dst"))
	require.Equal(t, resp.BulkFromString("payload"), env.do(c, "GET", "dst"))
	require.Equal(t, resp.Int(0), env.do(c, "COPY", "src", "dst"))
	require.Equal(t, resp.Int(1), env.do(c, "COPY", "src", "dst", "REPLACE"))
}

func TestMoveBetweenDatabases(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	env.do(c, "SET", "k", "v")
	require.Equal(t, resp.Int(1), env.do(c, "MOVE", "k", "1"))
	require.Equal(t, resp.Int(0), env.do(c, "EXISTS", "k"))

	require.Equal(t, resp.OK(), env.do(c, "SELECT", "1"))
	require.Equal(t, resp.BulkFromString("v"), env.do(c, "GET", "k"))

	// Destination occupied: MOVE refuses.
	env.do(c, "SELECT", "0")
	env.do(c, "SET", "k", "v0")
	require.Equal(t, resp.Int(0), env.do(c, "MOVE", "k", "1"))
}

func TestZAddOptions(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	require.Equal(t, resp.Int(2), env.do(c, "ZADD", "z", "1", "a", "2", "b"))
	// XX on a missing member adds nothing.
	require.Equal(t, resp.Int(0), env.do(c, "ZADD", "z", "XX", "5", "nope"))
	require.Equal(t, resp.NullBulk(), env.do(c, "ZSCORE", "z", "nope"))
	// GT only raises scores.
	env.do(c, "ZADD", "z", "GT", "0", "b")
	require.Equal(t, resp.BulkFromString("2"), env.do(c, "ZSCORE", "z", "b"))
	env.do(c, "ZADD", "z", "GT", "9", "b")
	require.Equal(t, resp.BulkFromString("9"), env.do(c, "ZSCORE", "z", "b"))
	// CH counts changed rather than added.
	require.Equal(t, resp.Int(1), env.do(c, "ZADD", "z", "CH", "3", "a"))
}

func TestSubscribePublishCounts(t *testing.T) {
	env := newTestEnv(t)
	sub := env.conn(1)
	pub := env.conn(2)

	ack := env.do(sub, "SUBSCRIBE", "news.sports")
	require.Equal(t, resp.Arr(
		resp.BulkFromString("subscribe"), resp.BulkFromString("news.sports"), resp.Int(1),
	), ack)
	require.Equal(t, dispatch.StatePubSub, sub.State)

	pack := env.do(sub, "PSUBSCRIBE", "news.*")
	require.Equal(t, resp.Arr(
		resp.BulkFromString("psubscribe"), resp.BulkFromString("news.*"), resp.Int(1),
	), pack)

	// One direct and one pattern delivery.
	require.Equal(t, resp.Int(2), env.do(pub, "PUBLISH", "news.sports", "hello"))

	direct := <-sub.Subscriber.Mailbox()
	require.Equal(t, "news.sports", direct.Channel)

	unack := env.do(sub, "UNSUBSCRIBE")
	require.Equal(t, resp.Array, unack.Kind)
	punack := env.do(sub, "PUNSUBSCRIBE")
	require.Equal(t, resp.Array, punack.Kind)
	require.Equal(t, dispatch.StateReady, sub.State)
}

func TestEvalRedisCallBridge(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	got := env.do(c, "EVAL", `redis.call("SET", KEYS[0], ARGV[0]); return redis.call("GET", KEYS[0])`, "1", "k", "v")
	require.Equal(t, resp.BulkFromString("v"), got)

	// Blocking commands are refused from inside a script.
	got = env.do(c, "EVAL", `return redis.call("BLPOP", "q", "0")`, "0")
	require.Equal(t, resp.Error, got.Kind)
}

func TestFlushAllTouchesWatchedKeys(t *testing.T) {
	env := newTestEnv(t)
	a := env.conn(1)
	b := env.conn(2)

	env.do(a, "SET", "k", "v")
	env.do(a, "WATCH", "k")
	env.do(a, "MULTI")
	a.Tx.Queue = append(a.Tx.Queue, dispatch.QueuedCommand{Argv: [][]byte{[]byte("GET"), []byte("k")}})

	env.do(b, "FLUSHALL")

	require.Equal(t, resp.NullArray(), env.do(a, "EXEC"))
}

func TestTypeAndRenameNX(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	env.do(c, "SET", "s", "v")
	env.do(c, "LPUSH", "l", "x")
	require.Equal(t, resp.Simple("string"), env.do(c, "TYPE", "s"))
	require.Equal(t, resp.Simple("list"), env.do(c, "TYPE", "l"))
	require.Equal(t, resp.Simple("none"), env.do(c, "TYPE", "missing"))

	require.Equal(t, resp.Int(0), env.do(c, "RENAMENX", "s", "l"))
	require.Equal(t, resp.Int(1), env.do(c, "RENAMENX", "s", "s2"))
	require.Equal(t, resp.BulkFromString("v"), env.do(c, "GET", "s2"))
}

func TestUnknownCommandAndArityErrors(t *testing.T) {
	env := newTestEnv(t)
	c := env.conn(1)

	got := env.do(c, "NOSUCHTHING")
	require.Equal(t, resp.Error, got.Kind)
	require.Contains(t, got.Str, "unknown command")

	got = env.do(c, "GET")
	require.Equal(t, resp.Error, got.Kind)
	require.Contains(t, got.Str, "wrong number of arguments")
}
