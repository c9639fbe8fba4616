// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package config loads Ferrous's newline-delimited config file format
// through an afero.Fs so the loader is testable against an in-memory
// filesystem, and exposes the same fields as pflag overrides for
// cmd/ferrous's --flag form.
package config

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Config is the full set of recognized directives, plus sane defaults.
type Config struct {
	Bind          string
	Port          int
	RequirePass   string
	Databases     int
	Dir           string
	DBFilename    string
	Save          string
	AppendOnly    bool
	ReplicaOf     string // "host port", empty means standalone
	MasterAuth    string
	MaxClients    int
	Timeout       int // seconds, 0 = no idle timeout
	TCPKeepAlive  int // seconds
	LogLevel      string
	LogFile       string
}

// Default returns the configuration used when no file or overrides are
// supplied, mirroring the reference server's stock redis.conf defaults.
func Default() Config {
	return Config{
		Bind:         "127.0.0.1",
		Port:         6379,
		Databases:    16,
		Dir:          ".",
		DBFilename:   "dump.fdb",
		MaxClients:   10000,
		Timeout:      0,
		TCPKeepAlive: 300,
		LogLevel:     "info",
	}
}

// Load reads a config file from fs at path and applies it on top of
// Default(). Unknown keys are logged as warnings, never fatal.
func Load(fs afero.Fs, path string, logger *zap.Logger) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := fs.Open(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "opening config file %q", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		key := strings.ToLower(fields[0])
		args := fields[1:]
		if err := applyKey(&cfg, key, args); err != nil {
			if logger != nil {
				logger.Warn("config: unrecognized or invalid directive, ignoring",
					zap.Int("line", lineNo), zap.String("key", key), zap.Error(err))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, errors.Wrap(err, "reading config file")
	}
	return cfg, nil
}

func applyKey(cfg *Config, key string, args []string) error {
	join := strings.Join(args, " ")
	switch key {
	case "bind":
		cfg.Bind = join
	case "port":
		return setInt(&cfg.Port, join)
	case "requirepass":
		cfg.RequirePass = join
	case "databases":
		return setInt(&cfg.Databases, join)
	case "dir":
		cfg.Dir = join
	case "dbfilename":
		cfg.DBFilename = join
	case "save":
		cfg.Save = join
	case "appendonly":
		cfg.AppendOnly = join == "yes"
	case "replicaof", "slaveof":
		cfg.ReplicaOf = join
	case "masterauth":
		cfg.MasterAuth = join
	case "maxclients":
		return setInt(&cfg.MaxClients, join)
	case "timeout":
		return setInt(&cfg.Timeout, join)
	case "tcp-keepalive":
		return setInt(&cfg.TCPKeepAlive, join)
	case "loglevel":
		cfg.LogLevel = join
	case "logfile":
		cfg.LogFile = join
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func setInt(dst *int, s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// Addr formats the bind/port pair for net.Listen.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// ParseString lets tests build a Config from an in-memory snippet
// without touching disk, reusing the exact same parsing path Load uses.
func ParseString(body string) (Config, error) {
	fs := afero.NewMemMapFs()
	const path = "ferrous.conf"
	if err := afero.WriteFile(fs, path, []byte(body), 0o644); err != nil {
		return Config{}, err
	}
	return Load(fs, path, nil)
}
