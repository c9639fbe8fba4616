// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package store implements Ferrous's in-memory keyspace: the six value
// containers, the per-database exclusivity and expiry machinery, and
// the active sweeper that performs probabilistic background eviction.
package store

import "github.com/ferrousdb/ferrous/internal/ferrors"

// Keyspace is the full set of numbered databases a server exposes
// (SELECT's addressable range). It owns no locking of its own; each
// Database guards itself, so SWAPDB and cross-database commands such
// as COPY/MOVE must take care to lock databases in a fixed order to
// avoid deadlock (see SwapDB below).
type Keyspace struct {
	dbs   []*Database
	clock Clock
}

func NewKeyspace(n int, clock Clock) *Keyspace {
	if n <= 0 {
		n = 16
	}
	ks := &Keyspace{dbs: make([]*Database, n), clock: clock}
	for i := range ks.dbs {
		ks.dbs[i] = newDatabase(clock)
	}
	return ks
}

func (ks *Keyspace) Count() int { return len(ks.dbs) }

func (ks *Keyspace) DB(i int) *Database {
	if i < 0 || i >= len(ks.dbs) {
		return nil
	}
	return ks.dbs[i]
}

// SwapDB exchanges the contents of databases a and b in place (SWAPDB),
// always locking the lower index first so concurrent swaps can never
// deadlock against each other.
func (ks *Keyspace) SwapDB(a, b int) bool {
	if a < 0 || b < 0 || a >= len(ks.dbs) || b >= len(ks.dbs) {
		return false
	}
	if a == b {
		return true
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	dlo, dhi := ks.dbs[lo], ks.dbs[hi]
	dlo.mu.Lock()
	defer dlo.mu.Unlock()
	dhi.mu.Lock()
	defer dhi.mu.Unlock()

	dlo.entries, dhi.entries = dhi.entries, dlo.entries
	dlo.expiries, dhi.expiries = dhi.expiries, dlo.expiries
	dlo.watchers, dhi.watchers = dhi.watchers, dlo.watchers
	dlo.blockers, dhi.blockers = dhi.blockers, dlo.blockers
	dlo.version++
	dhi.version++
	return true
}

// Move relocates key from database src to database dst (MOVE). Both
// databases are locked lower-index-first, the same fixed order SwapDB
// uses, so concurrent MOVEs in opposite directions can never deadlock.
// Returns false when the key is absent in src or already present in dst.
func (ks *Keyspace) Move(src, dst int, key string) (bool, error) {
	if src < 0 || dst < 0 || src >= len(ks.dbs) || dst >= len(ks.dbs) {
		return false, ferrors.ErrDBIndex
	}
	if src == dst {
		return false, ferrors.ErrSameObject
	}
	dsrc, ddst := ks.dbs[src], ks.dbs[dst]
	lo, hi := dsrc, ddst
	if src > dst {
		lo, hi = ddst, dsrc
	}
	lo.mu.Lock()
	defer lo.mu.Unlock()
	hi.mu.Lock()
	defer hi.mu.Unlock()

	stx, dtx := &Tx{db: dsrc}, &Tx{db: ddst}
	e, ok := stx.Lookup(key)
	if !ok {
		return false, nil
	}
	if dtx.Exists(key) {
		return false, nil
	}
	stx.deleteLocked(key)
	ddst.entries[key] = e
	if e.hasExpiry() {
		ddst.expiries[key] = struct{}{}
	}
	e.Version++
	dtx.bumpVersion()
	return true, nil
}

// FlushAll wipes every database (FLUSHALL).
func (ks *Keyspace) FlushAll() {
	for _, d := range ks.dbs {
		d.Do(func(tx *Tx) error {
			tx.FlushDB()
			return nil
		})
	}
}
