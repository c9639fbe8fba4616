// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package dispatch holds the command table: name, arity, flag set, and
// handler, kept as a single name->handler registry rather than a
// switch statement scattered across the transport layer.
package dispatch

import (
	"strings"

	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/resp"
)

// Flag is a bitmask of per-command properties the connection/
// transaction layer needs to know before it can even run the handler.
type Flag uint32

const (
	FlagWrite      Flag = 1 << iota // mutates the keyspace
	FlagReadonly                    // never mutates; safe on a read-only replica
	FlagBlocking                    // may block the calling connection (BLPOP family)
	FlagPubSub                      // legal while the connection is in PUBSUB state
	FlagNoScript                    // refused from EVAL's redis.call bridge
	FlagAdmin                       // administrative; may be gated by ACL in the future
	FlagTxUnsafe                    // refused inside MULTI (e.g. WATCH, EXEC itself is handled specially)
)

// Handler executes one already-parsed command. args excludes the
// command name itself.
type Handler func(ctx *Context, args [][]byte) resp.Value

// Spec describes one command's calling contract.
type Spec struct {
	Name string
	// Arity mirrors the reference server convention: a positive number
	// is the exact total argument count including the name; a negative
	// number is a minimum (-N means "at least N").
	Arity   int
	Flags   Flag
	Handler Handler
}

func (s Spec) checkArity(total int) bool {
	if s.Arity >= 0 {
		return total == s.Arity
	}
	return total >= -s.Arity
}

// Table is the immutable, process-wide command registry.
type Table struct {
	byName map[string]Spec
}

func NewTable() *Table { return &Table{byName: make(map[string]Spec)} }

func (t *Table) Register(s Spec) {
	t.byName[strings.ToUpper(s.Name)] = s
}

func (t *Table) Lookup(name string) (Spec, bool) {
	s, ok := t.byName[strings.ToUpper(name)]
	return s, ok
}

func (t *Table) Names() []string {
	out := make([]string, 0, len(t.byName))
	for n := range t.byName {
		out = append(out, n)
	}
	return out
}

// Validate resolves name and arity-checks argc (the total argument
// count including the name) without invoking the handler. The
// connection FSM's MULTI queue-time validation uses this to decide
// whether to queue a command or set the sticky abort flag, the same
// arity/unknown-command check Dispatch performs inline.
func (t *Table) Validate(name string, argc int) (Spec, error) {
	spec, ok := t.Lookup(name)
	if !ok {
		return Spec{}, ferrors.UnknownCommand(name)
	}
	if !spec.checkArity(argc) {
		return Spec{}, ferrors.WrongArity(strings.ToLower(name))
	}
	return spec, nil
}

// Dispatch resolves and arity-checks argv (argv[0] is the command
// name), then runs the handler. Arity/unknown-command errors never
// reach the handler: they're reported the same way for every caller
// (inline execution, EXEC replay, or the scripting bridge).
func (t *Table) Dispatch(ctx *Context, argv [][]byte) resp.Value {
	if len(argv) == 0 {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	name := string(argv[0])
	spec, ok := t.Lookup(name)
	if !ok {
		return resp.Err(ferrors.UnknownCommand(name).Error())
	}
	if !spec.checkArity(len(argv)) {
		return resp.Err(ferrors.WrongArity(strings.ToLower(name)).Error())
	}
	return spec.Handler(ctx, argv[1:])
}
