// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"sync"
	"time"

	"github.com/ferrousdb/ferrous/internal/ferrors"
)

// WatchMark is the per-connection snapshot of one WATCHed key: the
// database it was watched in plus a (key, version) tuple observed at
// WATCH time. Recording DBIndex lets EXEC re-check the mark against the
// database it actually came from even if the connection later SELECTs
// a different one.
type WatchMark struct {
	DBIndex int
	Key     string
	Existed bool
	Version uint64
}

// BlockResult is delivered to a parked BLPOP/BRPOP waiter either by a
// matching push or by timeout/cancellation.
type BlockResult struct {
	Key     string
	Value   []byte
	Timeout bool
}

// BlockWaiter is one parked caller in a database's blocker queues. The
// same waiter is registered under every key it blocks on; whichever key
// is pushed to first claims it, and the claim is atomic with the push.
type BlockWaiter struct {
	mu      sync.Mutex
	claimed bool
	Result  chan BlockResult
	Keys    []string
}

func NewBlockWaiter(keys []string) *BlockWaiter {
	return &BlockWaiter{Result: make(chan BlockResult, 1), Keys: keys}
}

// Claim reports whether this call is the first to claim the waiter.
// Exactly one of a push, a timeout, or a connection close wins.
func (w *BlockWaiter) Claim() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.claimed {
		return false
	}
	w.claimed = true
	return true
}

// Database is a single numbered keyspace: entries, the expiry
// sub-index, WATCH's watcher sets, and BLPOP/BRPOP's blocker queues,
// all guarded by one exclusivity primitive so that at most one command
// executes against this database at a time.
type Database struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	expiries map[string]struct{}
	watchers map[string]map[uint64]struct{} // key -> watching connection IDs
	blockers map[string][]*BlockWaiter
	version  uint64
	clock    Clock
}

func newDatabase(clock Clock) *Database {
	return &Database{
		entries:  make(map[string]*Entry),
		expiries: make(map[string]struct{}),
		watchers: make(map[string]map[uint64]struct{}),
		blockers: make(map[string][]*BlockWaiter),
		clock:    clock,
	}
}

// Tx is a view onto a Database valid only while its owning Do call's
// lock is held. Command handlers never touch a Database directly
// every read or mutation goes through a Tx so that a whole command (or,
// for EXEC, a whole queued vector of commands) runs under one
// acquisition of the database's exclusivity.
type Tx struct {
	db *Database
}

// Do acquires the database's exclusivity for the duration of fn. EXEC
// calls this once for the entire queued command vector; every other
// write or read path calls it once per command.
func (d *Database) Do(fn func(tx *Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(&Tx{db: d})
}

func (tx *Tx) Now() time.Time { return tx.db.clock.Now() }

func (tx *Tx) Version() uint64 { return tx.db.version }

func (tx *Tx) bumpVersion() { tx.db.version++ }

// lazyExpire deletes key if its deadline has elapsed. Expiry counts as
// a mutation for WATCH purposes, so it goes through the same
// deleteLocked path a DEL would.
func (tx *Tx) lazyExpire(key string) {
	e, ok := tx.db.entries[key]
	if !ok || !e.expired(tx.Now()) {
		return
	}
	tx.deleteLocked(key)
}

// Lookup performs the lazy-expiry-then-lookup dance every read requires:
// an expired key is pruned before the caller ever sees it.
func (tx *Tx) Lookup(key string) (*Entry, bool) {
	tx.lazyExpire(key)
	e, ok := tx.db.entries[key]
	return e, ok
}

// LookupTyped is Lookup plus the WRONGTYPE check every type-specific
// read/write command needs.
func (tx *Tx) LookupTyped(key string, want ValueType) (*Entry, bool, error) {
	e, ok := tx.Lookup(key)
	if !ok {
		return nil, false, nil
	}
	if e.Type != want {
		return nil, true, ferrors.ErrWrongType
	}
	return e, true, nil
}

// GetOrCreate returns the existing entry of type want, or creates one
// via zero() if the key is absent. A type mismatch on an existing key
// is WRONGTYPE.
func (tx *Tx) GetOrCreate(key string, want ValueType, zero func() any) (*Entry, error) {
	e, ok := tx.Lookup(key)
	if ok {
		if e.Type != want {
			return nil, ferrors.ErrWrongType
		}
		return e, nil
	}
	e = &Entry{Val: zero(), Type: want}
	tx.db.entries[key] = e
	return e, nil
}

// MutateDone bumps key and database versions after a successful
// mutation, and removes the key if its container has shrunk to empty
// an empty container is never left behind under its key.
func (tx *Tx) MutateDone(key string, entry *Entry, emptyNow bool) {
	if emptyNow {
		tx.deleteLocked(key)
		return
	}
	entry.Version++
	tx.bumpVersion()
}

// Delete removes key if present, reporting whether it was. A delete of
// an absent key is not a mutation.
func (tx *Tx) Delete(key string) bool {
	tx.lazyExpire(key)
	if _, ok := tx.db.entries[key]; !ok {
		return false
	}
	tx.deleteLocked(key)
	return true
}

func (tx *Tx) deleteLocked(key string) {
	delete(tx.db.entries, key)
	delete(tx.db.expiries, key)
	tx.bumpVersion()
	tx.wakeWatchers(key)
}

func (tx *Tx) wakeWatchers(key string) {
	// Touching is implicit: EXEC re-checks recorded versions against
	// current state at commit time, so nothing needs to happen to the
	// watcher set here beyond leaving the version bumped above.
	_ = key
}

// SetExpire installs or clears a deadline. Past deadlines delete the
// key immediately and report 1.
func (tx *Tx) SetExpire(key string, at time.Time) (existed bool, deletedNow bool) {
	e, ok := tx.Lookup(key)
	if !ok {
		return false, false
	}
	if !at.After(tx.Now()) {
		tx.deleteLocked(key)
		return true, true
	}
	e.ExpireAt = at
	tx.db.expiries[key] = struct{}{}
	e.Version++
	tx.bumpVersion()
	return true, false
}

func (tx *Tx) Persist(key string) bool {
	e, ok := tx.Lookup(key)
	if !ok || !e.hasExpiry() {
		return false
	}
	e.ExpireAt = time.Time{}
	delete(tx.db.expiries, key)
	e.Version++
	tx.bumpVersion()
	return true
}

// TTL reports the remaining time-to-live. exists is false if the key
// is absent; hasExpiry is false if it exists but never expires.
func (tx *Tx) TTL(key string) (ttl time.Duration, hasExpiry bool, exists bool) {
	e, ok := tx.Lookup(key)
	if !ok {
		return 0, false, false
	}
	if !e.hasExpiry() {
		return 0, false, true
	}
	d := e.ExpireAt.Sub(tx.Now())
	if d < 0 {
		d = 0
	}
	return d, true, true
}

func (tx *Tx) Exists(key string) bool {
	_, ok := tx.Lookup(key)
	return ok
}

func (tx *Tx) Rename(src, dst string) bool {
	e, ok := tx.Lookup(src)
	if !ok {
		return false
	}
	delete(tx.db.entries, src)
	delete(tx.db.expiries, src)
	tx.db.entries[dst] = e
	if e.hasExpiry() {
		tx.db.expiries[dst] = struct{}{}
	}
	e.Version++
	tx.bumpVersion()
	return true
}

func (tx *Tx) DBSize() int {
	return len(tx.db.entries)
}

// Keys returns every live key matching pattern (glob-style, reusing
// MatchGlob), performing lazy expiry on each candidate first.
func (tx *Tx) Keys(pattern string) []string {
	var out []string
	for k := range tx.db.entries {
		if _, ok := tx.Lookup(k); !ok {
			continue
		}
		if pattern == "" || pattern == "*" || MatchGlob(pattern, k) {
			out = append(out, k)
		}
	}
	return out
}

func (tx *Tx) RandomKey() (string, bool) {
	for k := range tx.db.entries {
		if _, ok := tx.Lookup(k); ok {
			return k, true
		}
	}
	return "", false
}

// FlushDB drops every key and bumps the database version, so any
// in-flight WATCH on a key that lived in this database observes the
// wipe: FLUSHDB/FLUSHALL touch every watched key in the affected
// database.
func (tx *Tx) FlushDB() {
	tx.db.entries = make(map[string]*Entry)
	tx.db.expiries = make(map[string]struct{})
	tx.bumpVersion()
}

// Watch records a WatchMark for connID at its current state.
func (tx *Tx) Watch(connID uint64, key string) WatchMark {
	set, ok := tx.db.watchers[key]
	if !ok {
		set = make(map[uint64]struct{})
		tx.db.watchers[key] = set
	}
	set[connID] = struct{}{}

	e, exists := tx.Lookup(key)
	mark := WatchMark{Key: key, Existed: exists}
	if exists {
		mark.Version = e.Version
	}
	return mark
}

func (tx *Tx) Unwatch(connID uint64, key string) {
	if set, ok := tx.db.watchers[key]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(tx.db.watchers, key)
		}
	}
}

// CheckWatch reports whether mark still matches current state: the
// EXEC-time compare that decides whether a transaction commits or
// aborts.
func (tx *Tx) CheckWatch(mark WatchMark) bool {
	e, exists := tx.Lookup(mark.Key)
	if exists != mark.Existed {
		return false
	}
	if !exists {
		return true
	}
	return e.Version == mark.Version
}

// TryPopForBlock attempts an immediate BLPOP/BRPOP pop across keys in
// order, for the non-blocking fast path: pop from the first non-empty
// key without ever parking.
func (tx *Tx) TryPopForBlock(keys []string, fromLeft bool) (key string, value []byte, ok bool) {
	for _, k := range keys {
		e, exists, err := tx.LookupTyped(k, TypeList)
		if err != nil || !exists {
			continue
		}
		lv := e.Val.(*ListVal)
		var v []byte
		if fromLeft {
			v, ok = lv.PopLeft()
		} else {
			v, ok = lv.PopRight()
		}
		if !ok {
			continue
		}
		tx.MutateDone(k, e, lv.Len() == 0)
		return k, v, true
	}
	return "", nil, false
}

// ParkWaiter registers w under every one of its keys' blocker queues.
func (tx *Tx) ParkWaiter(w *BlockWaiter) {
	for _, k := range w.Keys {
		tx.db.blockers[k] = append(tx.db.blockers[k], w)
	}
}

// CancelWaiter removes w from every blocker queue it was parked in
// (timeout or connection close).
func (tx *Tx) CancelWaiter(w *BlockWaiter) {
	for _, k := range w.Keys {
		q := tx.db.blockers[k]
		for i, cand := range q {
			if cand == w {
				tx.db.blockers[k] = append(q[:i], q[i+1:]...)
				break
			}
		}
		if len(tx.db.blockers[k]) == 0 {
			delete(tx.db.blockers, k)
		}
	}
}

// PushList appends to key's list, but if a waiter is already parked on
// it, the waiter claims the value directly instead: the push never
// mutates the list in that case, so no observer ever sees the value
// sitting in the list before a parked waiter claims it.
func (tx *Tx) PushList(key string, left bool, values [][]byte) (delivered int, err error) {
	for _, v := range values {
		if tx.deliverToWaiter(key, v) {
			delivered++
			continue
		}
		e, gerr := tx.GetOrCreate(key, TypeList, func() any { return NewListVal() })
		if gerr != nil {
			return delivered, gerr
		}
		lv := e.Val.(*ListVal)
		if left {
			lv.PushLeft(v)
		} else {
			lv.PushRight(v)
		}
		e.Version++
		tx.bumpVersion()
	}
	return delivered, nil
}

func (tx *Tx) deliverToWaiter(key string, value []byte) bool {
	q := tx.db.blockers[key]
	for len(q) > 0 {
		w := q[0]
		q = q[1:]
		tx.db.blockers[key] = q
		if !w.Claim() {
			continue
		}
		for _, k := range w.Keys {
			if k == key {
				continue
			}
			rest := tx.db.blockers[k]
			for i, cand := range rest {
				if cand == w {
					tx.db.blockers[k] = append(rest[:i], rest[i+1:]...)
					break
				}
			}
		}
		w.Result <- BlockResult{Key: key, Value: value}
		return true
	}
	if len(q) == 0 {
		delete(tx.db.blockers, key)
	}
	return false
}

// Entry exposes the raw entry for container-specific handlers that need
// direct access (string/hash/zset/stream command files).
func (tx *Tx) Entry(key string) (*Entry, bool) { return tx.Lookup(key) }

// Put installs e under key, keeping the expiry sub-index consistent: a
// fresh entry with no deadline must not leave the key's old deadline
// behind in the index. The new entry's version starts from the
// database's version counter rather than from zero, so overwriting a key
// changes the version a WATCH mark compares against.
func (tx *Tx) Put(key string, e *Entry) {
	e.Version = tx.db.version
	tx.db.entries[key] = e
	if e.hasExpiry() {
		tx.db.expiries[key] = struct{}{}
	} else {
		delete(tx.db.expiries, key)
	}
}

// sweepSample drains up to n candidate keys from the expiry sub-index
// for the active sweeper (store/sweeper.go), deleting any that have
// elapsed and reporting how many of the sample were expired.
func (d *Database) sweepSample(n int) (sampled, expiredCount int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &Tx{db: d}
	now := tx.Now()
	for k := range d.expiries {
		if sampled >= n {
			break
		}
		sampled++
		e, ok := d.entries[k]
		if !ok {
			delete(d.expiries, k)
			continue
		}
		if e.expired(now) {
			tx.deleteLocked(k)
			expiredCount++
		}
	}
	return sampled, expiredCount
}
