// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Command ferrous is the CLI bootstrap: it loads a config file (or
// stock defaults), layers any --flag overrides over it, and runs the
// server until SHUTDOWN or a termination signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ferrousdb/ferrous/internal/command"
	"github.com/ferrousdb/ferrous/internal/config"
	"github.com/ferrousdb/ferrous/internal/dispatch"
	ferrouslog "github.com/ferrousdb/ferrous/internal/log"
	"github.com/ferrousdb/ferrous/internal/persistence"
	"github.com/ferrousdb/ferrous/internal/pubsub"
	"github.com/ferrousdb/ferrous/internal/replica"
	"github.com/ferrousdb/ferrous/internal/scheduler"
	"github.com/ferrousdb/ferrous/internal/store"
)

// version is the value HELLO/INFO report as ferrous_version.
const version = "0.9.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ferrous [config file]",
		Short:        "Ferrous is an in-memory RESP2 key-value server",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return bootstrap(cmd, path)
		},
	}

	flags := cmd.Flags()
	flags.String("bind", "", "address to bind (overrides config file's bind)")
	flags.Int("port", 0, "TCP port (overrides config file's port)")
	flags.String("requirepass", "", "client password")
	flags.Int("databases", 0, "number of databases")
	flags.String("dir", "", "data directory")
	flags.String("dbfilename", "", "snapshot filename")
	flags.String("save", "", "RDB-style save points (accepted, persistence is a best-effort snapshot)")
	flags.Bool("appendonly", false, "accepted for config-surface parity; AOF durability is out of scope")
	flags.String("replicaof", "", "\"host port\" of the master to replicate from")
	flags.String("masterauth", "", "password presented to the master link")
	flags.Int("maxclients", 0, "maximum concurrent clients")
	flags.Int("timeout", -1, "idle client timeout in seconds")
	flags.Int("tcp-keepalive", 0, "TCP keepalive interval in seconds")
	flags.String("loglevel", "", "debug|info|warn|error")
	flags.String("logfile", "", "log file path; empty means stderr only")

	return cmd
}

// bootstrap is the single init-time assembly cmd/ferrous runs before
// accepting connections: every process-lifetime singleton is built and
// wired here, and torn down only after the server has drained on
// SHUTDOWN.
func bootstrap(cmd *cobra.Command, configPath string) error {
	fs := afero.NewOsFs()

	bootLog, err := ferrouslog.New(ferrouslog.Options{Level: "info"})
	if err != nil {
		return fmt.Errorf("initializing bootstrap logger: %w", err)
	}
	defer bootLog.Sync()

	cfg, err := config.Load(fs, configPath, bootLog)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlagOverrides(cmd, &cfg)

	logger, err := ferrouslog.New(ferrouslog.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %q: %w", cfg.Dir, err)
	}
	lock, err := persistence.Lock(cfg.Dir)
	if err != nil {
		return fmt.Errorf("acquiring data directory lock: %w", err)
	}
	defer lock.Unlock()

	ks := store.NewKeyspace(cfg.Databases, store.SystemClock{})
	if err := persistence.Load(ks, cfg.Dir, cfg.DBFilename); err != nil {
		logger.Warn("snapshot load failed, starting from an empty keyspace", zap.Error(err))
	}

	hub := pubsub.NewHub()
	table := dispatch.NewTable()
	command.Register(table)
	command.BindScriptEngine(table)

	info := dispatch.NewServerInfo(version, cfg.RequirePass, cfg.Databases)
	info.SeedConfig(runtimeConfigView(cfg))
	info.SaveSnapshot = func() error {
		return persistence.Save(ks, cfg.Dir, cfg.DBFilename)
	}

	srv := scheduler.New(cfg, ks, hub, info, table, logger)

	if cfg.ReplicaOf != "" {
		startReplicaLink(cfg, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.Serve(ctx)

	if saveErr := persistence.Save(ks, cfg.Dir, cfg.DBFilename); saveErr != nil {
		logger.Error("snapshot save on shutdown failed", zap.Error(saveErr))
	}
	logger.Info("ferrous shut down")
	return err
}

// applyFlagOverrides binds each explicitly-set --flag directly onto
// cfg's matching field, one flag mapped 1:1 onto one config key,
// leaving untouched fields at whatever the config file (or Default())
// already produced.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "bind":
			cfg.Bind, _ = flags.GetString("bind")
		case "port":
			cfg.Port, _ = flags.GetInt("port")
		case "requirepass":
			cfg.RequirePass, _ = flags.GetString("requirepass")
		case "databases":
			cfg.Databases, _ = flags.GetInt("databases")
		case "dir":
			cfg.Dir, _ = flags.GetString("dir")
		case "dbfilename":
			cfg.DBFilename, _ = flags.GetString("dbfilename")
		case "save":
			cfg.Save, _ = flags.GetString("save")
		case "appendonly":
			cfg.AppendOnly, _ = flags.GetBool("appendonly")
		case "replicaof":
			cfg.ReplicaOf, _ = flags.GetString("replicaof")
		case "masterauth":
			cfg.MasterAuth, _ = flags.GetString("masterauth")
		case "maxclients":
			cfg.MaxClients, _ = flags.GetInt("maxclients")
		case "timeout":
			cfg.Timeout, _ = flags.GetInt("timeout")
		case "tcp-keepalive":
			cfg.TCPKeepAlive, _ = flags.GetInt("tcp-keepalive")
		case "loglevel":
			cfg.LogLevel, _ = flags.GetString("loglevel")
		case "logfile":
			cfg.LogFile, _ = flags.GetString("logfile")
		}
	})
}

func runtimeConfigView(cfg config.Config) map[string]string {
	return map[string]string{
		"bind":          cfg.Bind,
		"port":          fmt.Sprintf("%d", cfg.Port),
		"databases":     fmt.Sprintf("%d", cfg.Databases),
		"dir":           cfg.Dir,
		"dbfilename":    cfg.DBFilename,
		"maxclients":    fmt.Sprintf("%d", cfg.MaxClients),
		"timeout":       fmt.Sprintf("%d", cfg.Timeout),
		"tcp-keepalive": fmt.Sprintf("%d", cfg.TCPKeepAlive),
		"appendonly":    yesNo(cfg.AppendOnly),
		"save":          cfg.Save,
		"maxmemory":     "0",
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// startReplicaLink launches the REPLICAOF reconnect-retry policy in the
// background: it retries the dial with backoff until the master
// accepts, logs the established link and closes the connection again.
// The stream-of-writes protocol is out of core scope; the connection is
// not held open and is not re-established afterwards.
func startReplicaLink(cfg config.Config, logger *zap.Logger) {
	addr := strings.ReplaceAll(cfg.ReplicaOf, " ", ":")
	link := replica.NewLink(addr, logger)
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		conn, err := link.Connect(ctx)
		if err != nil {
			logger.Warn("replica link gave up", zap.Error(err))
			return
		}
		defer conn.Close()
		logger.Info("replica link established", zap.String("master", addr))
	}()
}
