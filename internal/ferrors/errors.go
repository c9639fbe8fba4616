// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package ferrors defines the closed set of client-facing RESP error
// replies, plus the Wrap helper internal components use for
// non-client-facing causal chains.
package ferrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the RESP error-prefix taxonomies (ERR, WRONGTYPE,
// NOAUTH, ...).
type Kind string

const (
	KindErr        Kind = "ERR"
	KindWrongType  Kind = "WRONGTYPE"
	KindNoAuth     Kind = "NOAUTH"
	KindExecAbort  Kind = "EXECABORT"
	KindReadonly   Kind = "READONLY"
	KindBusy       Kind = "BUSY"
	KindMasterdown Kind = "MASTERDOWN"
)

// ClientError is a sentinel, client-facing error. Its Error() string is
// exactly the RESP error line body ("<KIND> <message>").
type ClientError struct {
	Kind    Kind
	Message string
}

// Error returns the full RESP error line body, kind prefix included,
// so a handler can hand it to resp.Err verbatim.
func (e *ClientError) Error() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Message)
}

func New(kind Kind, message string) *ClientError {
	return &ClientError{Kind: kind, Message: message}
}

func Errorf(kind Kind, format string, args ...any) *ClientError {
	return New(kind, fmt.Sprintf(format, args...))
}

var (
	ErrWrongType   = New(KindWrongType, "Operation against a key holding the wrong kind of value")
	ErrNotInt      = New(KindErr, "value is not an integer or out of range")
	ErrNotFloat    = New(KindErr, "value is not a valid float")
	ErrMinMaxFloat = New(KindErr, "min or max is not a float")
	ErrSyntax      = New(KindErr, "syntax error")
	ErrNoAuth      = New(KindNoAuth, "Authentication required")
	ErrDBIndex     = New(KindErr, "DB index is out of range")
	ErrSameObject  = New(KindErr, "source and destination objects are the same")
	ErrExecAbort   = New(KindExecAbort, "Transaction discarded because of previous errors")
)

func WrongArity(cmd string) *ClientError {
	return Errorf(KindErr, "wrong number of arguments for '%s' command", cmd)
}

func UnknownCommand(cmd string) *ClientError {
	return Errorf(KindErr, "unknown command '%s'", cmd)
}

// Wrap annotates an internal (non-client-facing) error with context
// before it reaches a log line.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}
