// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweeperOptions tunes the active expiry cycle: wake at Hz, sample
// SampleSize keys per database per wake, and keep sweeping a database
// immediately (without waiting for the next tick) as long as at least
// RepeatThreshold of the sample came back expired.
type SweeperOptions struct {
	Hz              int
	SampleSize      int
	RepeatThreshold float64
}

func DefaultSweeperOptions() SweeperOptions {
	return SweeperOptions{Hz: 10, SampleSize: 20, RepeatThreshold: 0.25}
}

// Sweeper periodically samples each database's expiry index and deletes
// elapsed keys, waking on a ticker rather than being driven by
// external events.
type Sweeper struct {
	ks   *Keyspace
	opts SweeperOptions
	log  *zap.Logger
}

func NewSweeper(ks *Keyspace, opts SweeperOptions, log *zap.Logger) *Sweeper {
	return &Sweeper{ks: ks, opts: opts, log: log}
}

// Run blocks sweeping until ctx is cancelled. Intended to be launched as
// one goroutine in the scheduler's errgroup.
func (sw *Sweeper) Run(ctx context.Context) error {
	hz := sw.opts.Hz
	if hz <= 0 {
		hz = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sw.sweepOnce()
		}
	}
}

func (sw *Sweeper) sweepOnce() {
	for i, db := range sw.ks.dbs {
		for {
			sampled, expired := db.sweepSample(sw.opts.SampleSize)
			if sampled == 0 {
				break
			}
			if sw.log != nil && expired > 0 {
				sw.log.Debug("active expiry cycle", zap.Int("db", i), zap.Int("sampled", sampled), zap.Int("expired", expired))
			}
			if float64(expired) < float64(sampled)*sw.opts.RepeatThreshold {
				break
			}
		}
	}
}
