// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package resp

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, v Value) string {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteValue(v))
	require.NoError(t, w.Flush())
	return buf.String()
}

func TestWriteValueShapes(t *testing.T) {
	require.Equal(t, "+OK\r\n", encode(t, OK()))
	require.Equal(t, "-ERR boom\r\n", encode(t, Err("ERR boom")))
	require.Equal(t, ":42\r\n", encode(t, Int(42)))
	require.Equal(t, "$1\r\nv\r\n", encode(t, BulkFromString("v")))
	require.Equal(t, "$-1\r\n", encode(t, NullBulk()))
	require.Equal(t, "*-1\r\n", encode(t, NullArray()))
	require.Equal(t, "*3\r\n$1\r\nc\r\n$1\r\nb\r\n$1\r\na\r\n",
		encode(t, Arr(BulkFromString("c"), BulkFromString("b"), BulkFromString("a"))))
}

func TestMultiFrameSerializesBackToBack(t *testing.T) {
	// One handler return standing for two top-level frames, the shape
	// SUBSCRIBE uses for its one-ack-per-channel replies.
	v := MultiFrame([]Value{
		Arr(BulkFromString("subscribe"), BulkFromString("a"), Int(1)),
		Arr(BulkFromString("subscribe"), BulkFromString("b"), Int(2)),
	})
	require.Equal(t,
		"*3\r\n$9\r\nsubscribe\r\n$1\r\na\r\n:1\r\n*3\r\n$9\r\nsubscribe\r\n$1\r\nb\r\n:2\r\n",
		encode(t, v))
}

func TestRoundTripValue(t *testing.T) {
	// Re-parsing a serialized value yields the same logical value, and
	// re-serializing it is idempotent.
	values := []Value{
		Simple("PONG"),
		Err("WRONGTYPE Operation against a key holding the wrong kind of value"),
		Int(-17),
		BulkFromString(""),
		NullBulk(),
		Arr(Int(1), BulkFromString("x"), Arr(Simple("a"), NullBulk())),
		NullArray(),
	}
	for _, v := range values {
		encoded := encode(t, v)
		r := NewReader(strings.NewReader(encoded))
		got, err := r.ReadValue()
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, encoded, encode(t, got))
	}
}

func TestReadCommandArray(t *testing.T) {
	r := NewReader(strings.NewReader("*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"))
	args, err := r.ReadCommand()
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("GET"), []byte("k")}, args)
}

func TestReadCommandInline(t *testing.T) {
	r := NewReader(strings.NewReader("PING\r\n"))
	args, err := r.ReadCommand()
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("PING")}, args)
}

func TestPipeliningDrainsInOrder(t *testing.T) {
	r := NewReader(strings.NewReader("PING\r\nPING\r\n*1\r\n$4\r\nPING\r\n"))
	for i := 0; i < 3; i++ {
		args, err := r.ReadCommand()
		require.NoError(t, err)
		require.Equal(t, "PING", strings.ToUpper(string(args[0])))
	}
}

func TestTrailingGarbageAfterValidCommandIsTolerated(t *testing.T) {
	// The parser must not give up on trailing garbage after a valid
	// command: here, extra blank inline lines.
	r := NewReader(strings.NewReader("PING\r\n\r\n\r\n"))
	args, err := r.ReadCommand()
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("PING")}, args)
	args, err = r.ReadCommand()
	require.NoError(t, err)
	require.Nil(t, args)
}

func TestMalformedLengthIsProtocolError(t *testing.T) {
	r := NewReader(strings.NewReader("*2\r\n$-5\r\n"))
	_, err := r.ReadCommand()
	require.Error(t, err)
	require.True(t, IsProtocolError(err))
}

func TestExcessiveNestingIsProtocolError(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < MaxDepth+2; i++ {
		sb.WriteString("*1\r\n")
	}
	sb.WriteString("$1\r\nx\r\n")
	r := NewReader(strings.NewReader(sb.String()))
	_, err := r.ReadValue()
	require.Error(t, err)
	require.True(t, IsProtocolError(err))
}

func TestPartialFrameAcrossReads(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr)
	done := make(chan struct{})
	var args [][]byte
	var readErr error
	go func() {
		args, readErr = r.ReadCommand()
		close(done)
	}()
	_, _ = pw.Write([]byte("*2\r\n$3\r\nGET\r\n"))
	_, _ = pw.Write([]byte("$1\r\nk\r\n"))
	<-done
	require.NoError(t, readErr)
	require.Equal(t, [][]byte{[]byte("GET"), []byte("k")}, args)
}
