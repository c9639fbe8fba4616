// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package replica implements the REPLICAOF/SLAVEOF handshake retry
// policy: Ferrous accepts the directive and marks the instance
// read-only, but the actual stream-of-writes protocol is out of
// scope. What remains worth
// modeling is the reconnect/backoff shape a real replica link needs.
// cmd/ferrous uses Link to dial the configured master at startup; no
// replication traffic is exchanged over that connection.
package replica

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Link supervises one outbound connection attempt to a master,
// retrying with exponential backoff until the context is cancelled.
type Link struct {
	MasterAddr string
	Dial       func(ctx context.Context, addr string) (net.Conn, error)
	Logger     *zap.Logger
}

func NewLink(masterAddr string, logger *zap.Logger) *Link {
	return &Link{
		MasterAddr: masterAddr,
		Dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		Logger: logger,
	}
}

// Connect retries Dial against MasterAddr with capped exponential
// backoff until ctx is cancelled or a connection succeeds.
func (l *Link) Connect(ctx context.Context) (net.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0 // retry indefinitely; ctx governs the deadline

	var conn net.Conn
	op := func() error {
		c, err := l.Dial(ctx, l.MasterAddr)
		if err != nil {
			if l.Logger != nil {
				l.Logger.Warn("replica: master dial failed, retrying", zap.String("addr", l.MasterAddr), zap.Error(err))
			}
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}
