// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package resp implements the RESP2 wire protocol: frame types, an
// incremental/reentrant decoder, and a serializer that always produces
// the smallest valid encoding for a value.
package resp

import "fmt"

// Kind identifies which of the five RESP2 frame types a Value holds.
type Kind byte

const (
	SimpleString Kind = '+'
	Error        Kind = '-'
	Integer      Kind = ':'
	Bulk         Kind = '$'
	Array        Kind = '*'

	// Multi is internal-only: its Items serialize back to back with no
	// array header, so one handler return can stand for several
	// top-level frames (SUBSCRIBE's one ack per channel).
	Multi Kind = '#'
)

// MaxDepth bounds array/bulk nesting during decode.
const MaxDepth = 512

// MaxBulkLen is the practical cap on a single bulk string, in bytes.
const MaxBulkLen = 512 * 1024 * 1024

// MaxArrayLen bounds the number of elements accepted in one array frame.
const MaxArrayLen = 1_000_000

// Value is a tagged union over the five RESP2 frame kinds. Exactly one
// of the fields below is meaningful for a given Kind:
//
//	SimpleString/Error -> Str
//	Integer            -> Int
//	Bulk               -> Bulk (BulkIsNull true means a null bulk, "$-1")
//	Array              -> Items (ArrayIsNull true means a null array, "*-1")
type Value struct {
	Kind        Kind
	Str         string
	Int         int64
	Bulk        []byte
	BulkIsNull  bool
	Items       []Value
	ArrayIsNull bool
}

func Simple(s string) Value { return Value{Kind: SimpleString, Str: s} }

func Err(s string) Value { return Value{Kind: Error, Str: s} }

func Errf(format string, args ...any) Value { return Err(fmt.Sprintf(format, args...)) }

func Int(n int64) Value { return Value{Kind: Integer, Int: n} }

func BulkString(b []byte) Value { return Value{Kind: Bulk, Bulk: b} }

func BulkFromString(s string) Value { return Value{Kind: Bulk, Bulk: []byte(s)} }

func NullBulk() Value { return Value{Kind: Bulk, BulkIsNull: true} }

func Arr(items ...Value) Value { return Value{Kind: Array, Items: items} }

func ArrSlice(items []Value) Value { return Value{Kind: Array, Items: items} }

func NullArray() Value { return Value{Kind: Array, ArrayIsNull: true} }

// MultiFrame wraps items so each serializes as its own top-level frame.
func MultiFrame(items []Value) Value { return Value{Kind: Multi, Items: items} }

// IsNil reports whether v is a null bulk string or a null array: the
// two "nil" shapes a client must treat as Go nil.
func (v Value) IsNil() bool {
	return (v.Kind == Bulk && v.BulkIsNull) || (v.Kind == Array && v.ArrayIsNull)
}

// OK is the canned +OK reply shared by nearly every write command.
func OK() Value { return Simple("OK") }

// Queued is the reply for a command accepted into a MULTI queue.
func Queued() Value { return Simple("QUEUED") }
