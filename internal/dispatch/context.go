// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package dispatch

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ferrousdb/ferrous/internal/pubsub"
	"github.com/ferrousdb/ferrous/internal/store"
)

// ConnState is the connection's place in the FSM: ready, pub/sub mode,
// queuing a transaction, or parked on a blocking pop.
type ConnState int

const (
	StateReady ConnState = iota
	StatePubSub
	StateTx
	StateBlocked
)

// QueuedCommand is one command recorded between MULTI and EXEC.
type QueuedCommand struct {
	Argv [][]byte
}

// TxState holds one connection's transaction bookkeeping: the queued
// command vector, the sticky abort flag set by a queue-time error, and
// the WATCH marks taken since the last [UN]WATCH/EXEC/DISCARD.
type TxState struct {
	InMulti bool
	Aborted bool
	Queue   []QueuedCommand
	Watches []store.WatchMark
}

func (tx *TxState) Reset() {
	tx.InMulti = false
	tx.Aborted = false
	tx.Queue = nil
}

func (tx *TxState) ClearWatches() { tx.Watches = nil }

// ServerInfo is process-wide, read-mostly state every connection's
// Context shares (INFO/COMMAND DOCS/TIME need it).
type ServerInfo struct {
	StartedAt   time.Time
	Version     string
	RequirePass string
	NumDBs      int
	Table       *Table

	// RequestShutdown, when set by the scheduler at bootstrap, triggers
	// a process-wide graceful shutdown: every connection is closed, not
	// just the one that issued the command.
	RequestShutdown func()

	// SaveSnapshot, when set at bootstrap, dumps the keyspace to the
	// configured data directory (SAVE/BGSAVE).
	SaveSnapshot func() error

	mu         sync.Mutex
	clients    map[uint64]*ClientInfo
	confMu     sync.RWMutex
	runtimeCfg map[string]string
	lastSave   atomic.Int64
}

// MarkSaved records when the last successful snapshot completed
// (LASTSAVE's reply).
func (s *ServerInfo) MarkSaved(t time.Time) { s.lastSave.Store(t.Unix()) }

func (s *ServerInfo) LastSaved() int64 { return s.lastSave.Load() }

// ClientInfo is the CLIENT LIST/KILL registry entry for one connection.
type ClientInfo struct {
	ID     uint64
	Name   string
	Addr   string
	DBIdx  int
	Kill   chan struct{}
}

func NewServerInfo(version string, requirePass string, numDBs int) *ServerInfo {
	return &ServerInfo{
		StartedAt:   time.Now(),
		Version:     version,
		RequirePass: requirePass,
		NumDBs:      numDBs,
		clients:     make(map[uint64]*ClientInfo),
		runtimeCfg:  make(map[string]string),
	}
}

// SeedConfig populates the CONFIG GET/SET runtime view from a loaded
// config file or its defaults, keyed by the same lowercase directive
// names the config file format uses.
func (s *ServerInfo) SeedConfig(kv map[string]string) {
	s.confMu.Lock()
	defer s.confMu.Unlock()
	for k, v := range kv {
		s.runtimeCfg[k] = v
	}
}

func (s *ServerInfo) ConfigGet(pattern string) map[string]string {
	s.confMu.RLock()
	defer s.confMu.RUnlock()
	out := make(map[string]string)
	for k, v := range s.runtimeCfg {
		if store.MatchGlob(strings.ToLower(pattern), k) {
			out[k] = v
		}
	}
	return out
}

func (s *ServerInfo) ConfigSet(key, val string) {
	s.confMu.Lock()
	defer s.confMu.Unlock()
	s.runtimeCfg[key] = val
}

func (s *ServerInfo) Register(ci *ClientInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[ci.ID] = ci
}

func (s *ServerInfo) Unregister(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

func (s *ServerInfo) SetName(id uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ci, ok := s.clients[id]; ok {
		ci.Name = name
	}
}

func (s *ServerInfo) List() []ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ClientInfo, 0, len(s.clients))
	for _, ci := range s.clients {
		out = append(out, *ci)
	}
	return out
}

// Kill signals the named connection's Closing channel via its
// registered Kill channel, closed at most once.
func (s *ServerInfo) Kill(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ci, ok := s.clients[id]
	if !ok {
		return false
	}
	select {
	case <-ci.Kill:
	default:
		close(ci.Kill)
	}
	return true
}

// Context is the per-connection handle every command Handler receives.
// It is not goroutine-safe by itself: exactly one goroutine (the
// connection's own read loop) drives it at a time, one command at a
// time per connection.
type Context struct {
	ConnID   uint64
	Keyspace *store.Keyspace
	PubSub   *pubsub.Hub
	Server   *ServerInfo

	DBIndex       int
	Authenticated bool
	Name          string
	State         ConnState
	Tx            TxState
	ReadOnly      bool // true on a replica serving stale reads

	Subscriber *pubsub.Subscriber
	Channels   map[string]bool
	Patterns   map[string]bool

	// Closing is set by the connection layer to cancel a parked
	// blocking-command wait on connection teardown.
	Closing chan struct{}

	// ActiveTx is non-nil while a queued command is executing inside
	// EXEC's single database acquisition: the whole queued vector runs
	// under one Do call, so a nested handler must reuse that acquisition
	// rather than calling Do again, which would deadlock against the
	// non-reentrant per-database lock.
	ActiveTx *store.Tx

	closeOnce sync.Once
}

// Close cancels any parked blocking wait on this connection. Safe to
// call more than once (QUIT, SHUTDOWN, and connection teardown may all
// reach it for the same connection).
func (c *Context) Close() {
	c.closeOnce.Do(func() { close(c.Closing) })
}

func NewContext(connID uint64, ks *store.Keyspace, hub *pubsub.Hub, srv *ServerInfo) *Context {
	return &Context{
		ConnID:   connID,
		Keyspace: ks,
		PubSub:   hub,
		Server:   srv,
		Closing:  make(chan struct{}),
		Channels: make(map[string]bool),
		Patterns: make(map[string]bool),
	}
}

func (c *Context) DB() *store.Database { return c.Keyspace.DB(c.DBIndex) }

// RunTx acquires the selected database's exclusivity for the duration
// of fn, the per-command equivalent of EXEC's whole-queue acquisition
// or, when called from inside an already-running EXEC, reuses that
// single acquisition instead of re-locking.
func (c *Context) RunTx(fn func(tx *store.Tx) error) error {
	if c.ActiveTx != nil {
		return fn(c.ActiveTx)
	}
	return c.DB().Do(fn)
}
