// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package scheduler

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Admission gates the accept loop against two independent limits: a
// smoothing rate limiter (so a connection storm doesn't spend an
// entire scheduler tick inside accept()) and a hard concurrent-client
// ceiling (maxclients), tracked separately because a token
// bucket alone cannot express "at most N connections alive at once"
// the bucket refills on a timer, not on connection close.
type Admission struct {
	limiter    *rate.Limiter
	maxClients int64
	current    atomic.Int64
}

// NewAdmission builds the accept-path gate. maxClients <= 0 means no
// hard ceiling (only the smoothing limiter applies).
func NewAdmission(maxClients int) *Admission {
	return &Admission{
		limiter:    rate.NewLimiter(rate.Limit(2000), 200),
		maxClients: int64(maxClients),
	}
}

// Acquire blocks for the smoothing limiter's token, then reports
// whether the hard ceiling has room. On success the caller MUST call
// Release exactly once when the connection closes.
func (a *Admission) Acquire(ctx context.Context) bool {
	if err := a.limiter.Wait(ctx); err != nil {
		return false
	}
	if a.maxClients <= 0 {
		a.current.Add(1)
		return true
	}
	for {
		n := a.current.Load()
		if n >= a.maxClients {
			return false
		}
		if a.current.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (a *Admission) Release() { a.current.Add(-1) }

func (a *Admission) Current() int64 { return a.current.Load() }
