// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package scheduler

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ferrousdb/ferrous/internal/command"
	"github.com/ferrousdb/ferrous/internal/config"
	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/pubsub"
	"github.com/ferrousdb/ferrous/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ks := store.NewKeyspace(4, store.SystemClock{})
	table := dispatch.NewTable()
	command.Register(table)
	command.BindScriptEngine(table)
	info := dispatch.NewServerInfo("test", "", 4)
	return New(config.Default(), ks, pubsub.NewHub(), info, table, zap.NewNop())
}

// pipeConn runs one handleConn over a net.Pipe and hands the test the
// client side, so the full connection loop runs without a real
// listener.
func pipeConn(t *testing.T, s *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.handleConn(ctx, server)
	return client, bufio.NewReader(client)
}

func TestHandleConnRespondsToPing(t *testing.T) {
	s := newTestServer(t)
	client, r := pipeConn(t, s)
	defer client.Close()

	_, err := client.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+PONG\r\n", line)
}

func TestHandleConnMultiExecDoesNotDeadlock(t *testing.T) {
	s := newTestServer(t)
	client, r := pipeConn(t, s)
	defer client.Close()

	cmds := []string{
		"*1\r\n$5\r\nMULTI\r\n",
		"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n",
		"*2\r\n$3\r\nGET\r\n$1\r\nk\r\n",
		"*1\r\n$4\r\nEXEC\r\n",
	}
	// net.Pipe has no buffering: a write blocks until the server reads it
	// and each reply blocks until the test reads it, so the commands are
	// written from their own goroutine while this one reads.
	go func() {
		for _, c := range cmds {
			_, err := client.Write([]byte(c))
			require.NoError(t, err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// +OK (MULTI), +QUEUED (SET), +QUEUED (GET), then EXEC's array reply.
		for i := 0; i < 3; i++ {
			_, err := r.ReadString('\n')
			require.NoError(t, err)
		}
		arrHeader, err := r.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, "*2\r\n", arrHeader)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EXEC deadlocked: nested queued commands never completed")
	}
}

func TestHandleConnQuitClosesConnection(t *testing.T) {
	s := newTestServer(t)
	client, r := pipeConn(t, s)
	defer client.Close()

	_, err := client.Write([]byte("*1\r\n$4\r\nQUIT\r\n"))
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", line)

	_, err = r.ReadByte()
	require.Error(t, err)
}

func TestHandleConnUnlinkRenameNXAndSScan(t *testing.T) {
	s := newTestServer(t)
	client, r := pipeConn(t, s)
	defer client.Close()

	cmds := []string{
		"*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\n1\r\n",
		"*3\r\n$3\r\nSET\r\n$1\r\nb\r\n$1\r\n2\r\n",
		"*2\r\n$6\r\nUNLINK\r\n$1\r\na\r\n",
		"*3\r\n$8\r\nRENAMENX\r\n$1\r\nb\r\n$1\r\nc\r\n",
		"*4\r\n$4\r\nSADD\r\n$1\r\ns\r\n$1\r\nx\r\n$1\r\ny\r\n",
		"*3\r\n$5\r\nSSCAN\r\n$1\r\ns\r\n$1\r\n0\r\n",
	}
	// Written from a separate goroutine for the same net.Pipe reason as in
	// TestHandleConnMultiExecDoesNotDeadlock.
	go func() {
		for _, c := range cmds {
			_, err := client.Write([]byte(c))
			require.NoError(t, err)
		}
	}()

	readLine := func() string {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return line
	}

	require.Equal(t, "+OK\r\n", readLine()) // SET a
	require.Equal(t, "+OK\r\n", readLine()) // SET b
	require.Equal(t, ":1\r\n", readLine())  // UNLINK a
	require.Equal(t, ":1\r\n", readLine())  // RENAMENX b c
	require.Equal(t, ":2\r\n", readLine())  // SADD s x y
	require.Equal(t, "*2\r\n", readLine())  // SSCAN array header
	require.Equal(t, "$1\r\n", readLine())  // cursor length
	require.Equal(t, "0\r\n", readLine())   // cursor "0"
	require.Equal(t, "*2\r\n", readLine())  // members array header
}

func TestSubscribeReceivesPublishedMessage(t *testing.T) {
	s := newTestServer(t)
	sub, subR := pipeConn(t, s)
	defer sub.Close()
	pub, pubR := pipeConn(t, s)
	defer pub.Close()

	readLine := func(r *bufio.Reader) string {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return line
	}

	_, err := sub.Write([]byte("*2\r\n$10\r\nPSUBSCRIBE\r\n$6\r\nnews.*\r\n"))
	require.NoError(t, err)
	require.Equal(t, "*3\r\n", readLine(subR)) // psubscribe ack
	for i := 0; i < 5; i++ {
		readLine(subR) // $10, psubscribe, $6, news.*, :1
	}

	_, err = pub.Write([]byte("*3\r\n$7\r\nPUBLISH\r\n$11\r\nnews.sports\r\n$5\r\nhello\r\n"))
	require.NoError(t, err)
	require.Equal(t, ":1\r\n", readLine(pubR))

	require.Equal(t, "*4\r\n", readLine(subR))
	require.Equal(t, "$8\r\n", readLine(subR))
	require.Equal(t, "pmessage\r\n", readLine(subR))
	require.Equal(t, "$6\r\n", readLine(subR))
	require.Equal(t, "news.*\r\n", readLine(subR))
	require.Equal(t, "$11\r\n", readLine(subR))
	require.Equal(t, "news.sports\r\n", readLine(subR))
	require.Equal(t, "$5\r\n", readLine(subR))
	require.Equal(t, "hello\r\n", readLine(subR))
}

func TestPubSubModeRestrictsCommands(t *testing.T) {
	s := newTestServer(t)
	client, r := pipeConn(t, s)
	defer client.Close()

	_, err := client.Write([]byte("*2\r\n$9\r\nSUBSCRIBE\r\n$2\r\nch\r\n"))
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err := r.ReadString('\n')
		require.NoError(t, err)
	}

	_, err = client.Write([]byte("*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "not allowed in subscriber context")

	// PING stays legal in pub/sub mode.
	_, err = client.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+PONG\r\n", line)
}

func TestAdmissionRejectsBeyondMaxClients(t *testing.T) {
	a := NewAdmission(1)
	ctx := context.Background()
	require.True(t, a.Acquire(ctx))
	require.False(t, a.Acquire(ctx))
	a.Release()
	require.True(t, a.Acquire(ctx))
}
