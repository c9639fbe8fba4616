// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package scheduler is the I/O reactor: the accept loop, one
// cooperative task per connection, and the discipline that keeps
// command handlers from holding database exclusivity across an I/O
// await. It is the thinnest layer in the repository on purpose
// everything it touches (the codec, the dispatch table, the keyspace)
// already enforces its own invariants; the scheduler's job is only to
// drive each connection's request/response FSM, with the accept loop,
// sweeper, and shutdown watcher supervised side by side under one
// errgroup.
package scheduler

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ferrousdb/ferrous/internal/command"
	"github.com/ferrousdb/ferrous/internal/config"
	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/pubsub"
	"github.com/ferrousdb/ferrous/internal/resp"
	"github.com/ferrousdb/ferrous/internal/store"
)

// immediateTxCommands are the five names that run immediately even
// while the connection is queueing (StateTx): the rest are validated
// and queued rather than executed inline.
var immediateTxCommands = map[string]bool{
	"EXEC": true, "DISCARD": true, "MULTI": true, "WATCH": true, "RESET": true,
}

// alwaysAllowedUnauthenticated are the only commands a connection may
// run before AUTH succeeds when requirepass is set.
var alwaysAllowedUnauthenticated = map[string]bool{
	"AUTH": true, "HELLO": true, "QUIT": true,
}

// Server owns every process-lifetime singleton and drives the accept
// loop.
type Server struct {
	Cfg       config.Config
	Keyspace  *store.Keyspace
	Hub       *pubsub.Hub
	Info      *dispatch.ServerInfo
	Table     *dispatch.Table
	Log       *zap.Logger
	Admission *Admission
	Sweeper   *store.Sweeper

	nextConnID atomic.Uint64
	listener   net.Listener

	shutdownOnce sync.Once
	cancel       context.CancelFunc
}

// New wires a Server from already-constructed components. Splitting
// construction from Serve lets cmd/ferrous install Info.RequestShutdown
// before the first connection can possibly reach SHUTDOWN.
func New(cfg config.Config, ks *store.Keyspace, hub *pubsub.Hub, info *dispatch.ServerInfo, table *dispatch.Table, log *zap.Logger) *Server {
	return &Server{
		Cfg:       cfg,
		Keyspace:  ks,
		Hub:       hub,
		Info:      info,
		Table:     table,
		Log:       log,
		Admission: NewAdmission(cfg.MaxClients),
		Sweeper:   store.NewSweeper(ks, store.DefaultSweeperOptions(), log),
	}
}

// Serve listens on Cfg.Addr(), accepting connections until ctx is
// cancelled or Shutdown is called. It blocks until every supervised
// goroutine (accept loop, sweeper) has returned.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Cfg.Addr())
	if err != nil {
		return ferrors.Wrapf(err, "listening on %s", s.Cfg.Addr())
	}
	s.listener = ln
	s.Info.RequestShutdown = func() { s.Shutdown() }

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Sweeper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error { return s.acceptLoop(gctx, ln) })

	s.Log.Info("ferrous listening", zap.String("addr", s.Cfg.Addr()))
	err = g.Wait()
	if err != nil && isClosedErr(err) {
		return nil
	}
	return err
}

// Shutdown cancels the serve context, closing the listener and every
// accepted connection's read loop on its next suspension point.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func isClosedErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "context canceled")
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		if !s.Admission.Acquire(ctx) {
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}
		conn, err := ln.Accept()
		if err != nil {
			s.Admission.Release()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn is the one-task-per-connection loop: a single goroutine,
// suspendable only at socket read, socket write, or a blocking-op
// park, drives one connection's FSM from NEW to close.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.Admission.Release()
	defer conn.Close()

	if tc, ok := conn.(*net.TCPConn); ok && s.Cfg.TCPKeepAlive > 0 {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(time.Duration(s.Cfg.TCPKeepAlive) * time.Second)
	}

	connID := s.nextConnID.Add(1)
	cctx := dispatch.NewContext(connID, s.Keyspace, s.Hub, s.Info)
	cctx.Authenticated = s.Cfg.RequirePass == ""

	ci := &dispatch.ClientInfo{ID: connID, Addr: conn.RemoteAddr().String(), Kill: make(chan struct{})}
	s.Info.Register(ci)
	defer s.Info.Unregister(connID)
	defer s.Hub.RemoveAll(connID)
	defer cctx.Close()

	killDone := make(chan struct{})
	defer close(killDone)
	go func() {
		select {
		case <-ci.Kill:
			conn.Close()
		case <-ctx.Done():
			conn.Close()
		case <-killDone:
		}
	}()

	reader := resp.NewReader(conn)
	writer := resp.NewWriter(conn)
	log := s.Log.With(zap.Uint64("conn", connID), zap.String("addr", ci.Addr))
	log.Debug("connection accepted")

	// writeMu serializes the command-reply path against the pub/sub
	// delivery pump: both write to the same outbound stream, and RESP
	// frames must never interleave mid-frame.
	var writeMu sync.Mutex
	pumpStarted := false

	for {
		argv, err := reader.ReadCommand()
		if err != nil {
			if resp.IsProtocolError(err) {
				writeMu.Lock()
				writer.WriteValue(resp.Err(err.Error()))
				writer.Flush()
				writeMu.Unlock()
				log.Debug("protocol error, closing", zap.Error(err))
			}
			return
		}
		if len(argv) == 0 {
			continue
		}

		reply := s.execute(cctx, ci, argv)
		writeMu.Lock()
		err = writer.WriteValue(reply)
		if err == nil && reader.Buffered() == 0 {
			err = writer.Flush()
		}
		writeMu.Unlock()
		if err != nil {
			return
		}

		// The first SUBSCRIBE/PSUBSCRIBE creates the mailbox; from then
		// on a pump goroutine relays published messages onto the socket
		// while the read loop stays parked on the next command.
		if !pumpStarted && cctx.Subscriber != nil {
			pumpStarted = true
			go s.pumpMessages(conn, cctx.Subscriber, writer, &writeMu, killDone, log)
		}

		select {
		case <-cctx.Closing:
			writeMu.Lock()
			writer.Flush()
			writeMu.Unlock()
			return
		default:
		}
	}
}

// pumpMessages relays one subscriber's mailbox onto its connection's
// outbound stream until the connection ends or back-pressure kicks in.
// An overflowed mailbox closes the connection: a subscriber that cannot
// keep up must not stall PUBLISH for everyone else.
func (s *Server) pumpMessages(conn net.Conn, sub *pubsub.Subscriber, writer *resp.Writer, writeMu *sync.Mutex, done <-chan struct{}, log *zap.Logger) {
	for {
		select {
		case msg := <-sub.Mailbox():
			var v resp.Value
			if msg.Pattern != "" {
				v = resp.Arr(
					resp.BulkFromString("pmessage"),
					resp.BulkFromString(msg.Pattern),
					resp.BulkFromString(msg.Channel),
					resp.BulkString(msg.Payload),
				)
			} else {
				v = resp.Arr(
					resp.BulkFromString("message"),
					resp.BulkFromString(msg.Channel),
					resp.BulkString(msg.Payload),
				)
			}
			writeMu.Lock()
			err := writer.WriteValue(v)
			if err == nil {
				err = writer.Flush()
			}
			writeMu.Unlock()
			if err != nil {
				conn.Close()
				return
			}
		case <-sub.Overflow():
			log.Warn("subscriber overflowed its outbound buffer, closing")
			conn.Close()
			return
		case <-done:
			return
		}
	}
}

// execute runs one already-parsed command through the connection FSM
// gates before handing it to the dispatch table: the auth gate, the
// pub/sub command restriction, and MULTI's queue-or-run-immediately
// split. Everything past this function is
// ordinary Dispatch.
func (s *Server) execute(ctx *dispatch.Context, ci *dispatch.ClientInfo, argv [][]byte) resp.Value {
	name := strings.ToUpper(string(argv[0]))

	if command.RequireAuth(s.Info, ctx) && !alwaysAllowedUnauthenticated[name] {
		return resp.Err(ferrors.ErrNoAuth.Error())
	}

	if ctx.State == dispatch.StatePubSub {
		spec, ok := s.Table.Lookup(name)
		if !ok || spec.Flags&dispatch.FlagPubSub == 0 {
			return resp.Err(ferrors.Errorf(ferrors.KindErr,
				"%s is not allowed in subscriber context", strings.ToLower(name)).Error())
		}
	}

	if ctx.State == dispatch.StateTx && !immediateTxCommands[name] {
		spec, verr := s.Table.Validate(name, len(argv))
		if verr != nil {
			ctx.Tx.Aborted = true
			return resp.Err(verr.Error())
		}
		if spec.Flags&dispatch.FlagTxUnsafe != 0 {
			ctx.Tx.Aborted = true
			return resp.Err(ferrors.Errorf(ferrors.KindErr, "%s is not allowed in transactions", strings.ToLower(name)).Error())
		}
		ctx.Tx.Queue = append(ctx.Tx.Queue, dispatch.QueuedCommand{Argv: argv})
		return resp.Queued()
	}

	ci.DBIdx = ctx.DBIndex
	return s.Table.Dispatch(ctx, argv)
}
