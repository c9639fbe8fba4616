// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import "time"

// ValueType tags the six container variants. It is represented as a
// closed enum rather than an interface hierarchy: the set of variants
// is fixed and the pattern-match site (type dispatch in the command
// layer) stays small.
type ValueType int

const (
	TypeString ValueType = iota
	TypeList
	TypeSet
	TypeHash
	TypeZSet
	TypeStream
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeHash:
		return "hash"
	case TypeZSet:
		return "zset"
	case TypeStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Entry is the value, expiry deadline, and version counter stored under
// a key. Val holds the concrete *StringVal / *ListVal / *SetVal /
// *HashVal / *ZSetVal / *StreamVal for Type.
type Entry struct {
	Val      any
	Type     ValueType
	ExpireAt time.Time // zero value means no expiry
	Version  uint64
}

func (e *Entry) hasExpiry() bool { return !e.ExpireAt.IsZero() }

// Clone deep-copies e's container so COPY/RESTORE-style commands never
// let two keys alias the same underlying value: containers are never
// shared across databases, so cross-database commands move or copy.
func (e *Entry) Clone() *Entry {
	cp := &Entry{Type: e.Type, ExpireAt: e.ExpireAt}
	switch v := e.Val.(type) {
	case *StringVal:
		cp.Val = NewStringVal(v.Bytes)
	case *ListVal:
		nl := NewListVal()
		for _, b := range v.Range(0, -1) {
			nl.PushRight(append([]byte(nil), b...))
		}
		cp.Val = nl
	case *SetVal:
		ns := NewSetVal()
		for _, m := range v.Members() {
			ns.Add(m)
		}
		cp.Val = ns
	case *HashVal:
		nh := NewHashVal()
		for f, val := range v.All() {
			nh.Set(f, val)
		}
		cp.Val = nh
	case *ZSetVal:
		nz := NewZSetVal()
		for _, it := range v.RangeByRank(0, -1, false) {
			nz.Set(it.Member(), it.Score())
		}
		cp.Val = nz
	case *StreamVal:
		cp.Val = v.Clone()
	default:
		cp.Val = e.Val
	}
	return cp
}

func (e *Entry) expired(now time.Time) bool {
	return e.hasExpiry() && !now.Before(e.ExpireAt)
}
