// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

// StringVal is the String container variant. It always stores raw
// bytes; "integer form" is not a separate representation, it is just
// whatever ParseStrictInt64 says about Bytes at the moment a command
// cares: conversion between the two is invisible to clients either
// way.
type StringVal struct {
	Bytes []byte
}

func NewStringVal(b []byte) *StringVal {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &StringVal{Bytes: cp}
}
