// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/resp"
	"github.com/ferrousdb/ferrous/internal/script"
	"github.com/ferrousdb/ferrous/internal/store"
)

// scriptEngine is process-wide, like the dispatch table itself; it is
// wired up once by BindScriptEngine during server bootstrap.
var scriptEngine *script.Engine

// BindScriptEngine installs the EVAL/EVALSHA/SCRIPT backend. t is the
// fully-populated dispatch table EVAL's redis.call bridge re-enters.
func BindScriptEngine(t *dispatch.Table) {
	scriptEngine = script.NewEngine(func(ctx *dispatch.Context, argv [][]byte) resp.Value {
		spec, ok := t.Lookup(string(argv[0]))
		if !ok {
			return resp.Err(ferrors.UnknownCommand(string(argv[0])).Error())
		}
		if spec.Flags&dispatch.FlagNoScript != 0 {
			return resp.Err("ERR This Redis command is not allowed from script")
		}
		return t.Dispatch(ctx, argv)
	}, 256)
}

func registerServer(t *dispatch.Table) {
	t.Register(dispatch.Spec{Name: "INFO", Arity: -1, Flags: dispatch.FlagReadonly, Handler: cmdInfo})
	t.Register(dispatch.Spec{Name: "TIME", Arity: 1, Flags: dispatch.FlagReadonly, Handler: cmdTime})
	t.Register(dispatch.Spec{Name: "CONFIG", Arity: -2, Flags: dispatch.FlagAdmin, Handler: cmdConfig})
	t.Register(dispatch.Spec{Name: "COMMAND", Arity: -1, Flags: dispatch.FlagReadonly, Handler: cmdCommand})
	t.Register(dispatch.Spec{Name: "OBJECT", Arity: -2, Flags: dispatch.FlagReadonly, Handler: cmdObject})
	t.Register(dispatch.Spec{Name: "DEBUG", Arity: -2, Flags: dispatch.FlagAdmin, Handler: cmdDebug})
	t.Register(dispatch.Spec{Name: "SHUTDOWN", Arity: -1, Flags: dispatch.FlagAdmin | dispatch.FlagNoScript, Handler: cmdShutdown})
	t.Register(dispatch.Spec{Name: "SLOWLOG", Arity: -2, Flags: dispatch.FlagAdmin, Handler: cmdSlowlog})
	t.Register(dispatch.Spec{Name: "SAVE", Arity: 1, Flags: dispatch.FlagAdmin | dispatch.FlagNoScript, Handler: cmdSave})
	t.Register(dispatch.Spec{Name: "BGSAVE", Arity: -1, Flags: dispatch.FlagAdmin | dispatch.FlagNoScript, Handler: cmdBGSave})
	t.Register(dispatch.Spec{Name: "LASTSAVE", Arity: 1, Flags: dispatch.FlagReadonly, Handler: cmdLastSave})
	t.Register(dispatch.Spec{Name: "MONITOR", Arity: 1, Flags: dispatch.FlagAdmin | dispatch.FlagNoScript, Handler: cmdMonitor})
	t.Register(dispatch.Spec{Name: "REPLICAOF", Arity: 3, Flags: dispatch.FlagAdmin | dispatch.FlagNoScript, Handler: cmdReplicaOf})
	t.Register(dispatch.Spec{Name: "SLAVEOF", Arity: 3, Flags: dispatch.FlagAdmin | dispatch.FlagNoScript, Handler: cmdReplicaOf})
	t.Register(dispatch.Spec{Name: "WAIT", Arity: 3, Flags: dispatch.FlagNoScript, Handler: cmdWait})
	t.Register(dispatch.Spec{Name: "EVAL", Arity: -3, Flags: dispatch.FlagWrite | dispatch.FlagNoScript, Handler: cmdEval})
	t.Register(dispatch.Spec{Name: "EVALSHA", Arity: -3, Flags: dispatch.FlagWrite | dispatch.FlagNoScript, Handler: cmdEvalSha})
	t.Register(dispatch.Spec{Name: "SCRIPT", Arity: -2, Flags: dispatch.FlagNoScript, Handler: cmdScript})
}

func cmdInfo(ctx *dispatch.Context, args [][]byte) resp.Value {
	var sb strings.Builder
	uptime := time.Since(ctx.Server.StartedAt).Seconds()
	fmt.Fprintf(&sb, "# Server\r\nferrous_version:%s\r\nuptime_in_seconds:%.0f\r\nprocess_id:1\r\n",
		ctx.Server.Version, uptime)
	fmt.Fprintf(&sb, "\r\n# Clients\r\nconnected_clients:%d\r\n", len(ctx.Server.List()))
	fmt.Fprintf(&sb, "\r\n# Replication\r\nrole:master\r\nconnected_slaves:0\r\n")
	fmt.Fprintf(&sb, "\r\n# Keyspace\r\n")
	for i := 0; i < ctx.Keyspace.Count(); i++ {
		var n int
		count := func(tx *store.Tx) error {
			n = tx.DBSize()
			return nil
		}
		if i == ctx.DBIndex {
			ctx.RunTx(count)
		} else {
			ctx.Keyspace.DB(i).Do(count)
		}
		if n > 0 {
			fmt.Fprintf(&sb, "db%d:keys=%d,expires=0,avg_ttl=0\r\n", i, n)
		}
	}
	return resp.BulkFromString(sb.String())
}

func cmdTime(ctx *dispatch.Context, args [][]byte) resp.Value {
	now := time.Now()
	return resp.Arr(
		resp.BulkFromString(fmt.Sprintf("%d", now.Unix())),
		resp.BulkFromString(fmt.Sprintf("%d", now.Nanosecond()/1000)),
	)
}

func cmdConfig(ctx *dispatch.Context, args [][]byte) resp.Value {
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "GET":
		if len(args) != 2 {
			return resp.Err(ferrors.WrongArity("config|get").Error())
		}
		kv := ctx.Server.ConfigGet(strings.ToLower(string(args[1])))
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]resp.Value, 0, len(keys)*2)
		for _, k := range keys {
			items = append(items, resp.BulkFromString(k), resp.BulkFromString(kv[k]))
		}
		return resp.ArrSlice(items)
	case "SET":
		if len(args) != 3 {
			return resp.Err(ferrors.WrongArity("config|set").Error())
		}
		ctx.Server.ConfigSet(strings.ToLower(string(args[1])), string(args[2]))
		return resp.OK()
	case "RESETSTAT", "REWRITE":
		return resp.OK()
	default:
		return resp.Err(ferrors.Errorf(ferrors.KindErr, "Unknown CONFIG subcommand '%s'", sub).Error())
	}
}

func cmdCommand(ctx *dispatch.Context, args [][]byte) resp.Value {
	names := ctx.Server.Table.Names()
	if len(args) == 0 {
		sort.Strings(names)
		items := make([]resp.Value, len(names))
		for i, n := range names {
			items[i] = resp.Arr(resp.BulkFromString(strings.ToLower(n)), resp.Int(-1))
		}
		return resp.ArrSlice(items)
	}
	switch strings.ToUpper(string(args[0])) {
	case "COUNT":
		return resp.Int(int64(len(names)))
	case "DOCS":
		sort.Strings(names)
		items := make([]resp.Value, 0, len(names)*2)
		for _, n := range names {
			items = append(items, resp.BulkFromString(strings.ToLower(n)),
				resp.Arr(resp.BulkFromString("summary"), resp.BulkFromString("")))
		}
		return resp.ArrSlice(items)
	default:
		return resp.ArrSlice(nil)
	}
}

// cmdObject implements OBJECT ENCODING's introspection surface: a
// coarse but stable mapping from container type to the reference
// server's family of encoding names.
func cmdObject(ctx *dispatch.Context, args [][]byte) resp.Value {
	sub := strings.ToUpper(string(args[0]))
	if len(args) < 2 {
		return resp.Err(ferrors.WrongArity("object").Error())
	}
	key := string(args[1])
	var out resp.Value
	ctx.RunTx(func(tx *store.Tx) error {
		e, ok := tx.Lookup(key)
		if !ok {
			out = resp.Err("ERR no such key")
			return nil
		}
		switch sub {
		case "ENCODING":
			out = resp.BulkFromString(encodingFor(e))
		case "REFCOUNT":
			out = resp.Int(1)
		case "IDLETIME":
			out = resp.Int(0)
		case "FREQ":
			out = resp.Int(0)
		default:
			out = resp.Err(ferrors.Errorf(ferrors.KindErr, "Unknown OBJECT subcommand '%s'", sub).Error())
		}
		return nil
	})
	return out
}

func encodingFor(e *store.Entry) string {
	switch e.Type {
	case store.TypeString:
		sv := e.Val.(*store.StringVal)
		if _, ok := store.ParseStrictInt64(string(sv.Bytes)); ok {
			return "int"
		}
		if len(sv.Bytes) <= 44 {
			return "embstr"
		}
		return "raw"
	case store.TypeList:
		return "listpack"
	case store.TypeSet:
		return "listpack"
	case store.TypeHash:
		return "listpack"
	case store.TypeZSet:
		return "skiplist"
	case store.TypeStream:
		return "stream"
	default:
		return "raw"
	}
}

func cmdDebug(ctx *dispatch.Context, args [][]byte) resp.Value {
	switch strings.ToUpper(string(args[0])) {
	case "SLEEP":
		return resp.OK()
	case "JSONSET", "SET-ACTIVE-EXPIRE", "QUICKLIST-PACKED-THRESHOLD":
		return resp.OK()
	case "OBJECT":
		if len(args) < 2 {
			return resp.Err(ferrors.WrongArity("debug|object").Error())
		}
		return cmdObject(ctx, [][]byte{[]byte("ENCODING"), args[1]})
	default:
		return resp.OK()
	}
}

func cmdShutdown(ctx *dispatch.Context, args [][]byte) resp.Value {
	ctx.Close()
	if ctx.Server.RequestShutdown != nil {
		ctx.Server.RequestShutdown()
	}
	return resp.OK()
}

// cmdMonitor acknowledges the handshake only; streaming every command
// to attached monitors is an external observability concern, not this
// connection's responsibility.
func cmdMonitor(ctx *dispatch.Context, args [][]byte) resp.Value {
	return resp.OK()
}

func cmdSlowlog(ctx *dispatch.Context, args [][]byte) resp.Value {
	switch strings.ToUpper(string(args[0])) {
	case "GET":
		return resp.ArrSlice(nil)
	case "LEN":
		return resp.Int(0)
	case "RESET":
		return resp.OK()
	default:
		return resp.Err(ferrors.Errorf(ferrors.KindErr, "Unknown SLOWLOG subcommand '%s'", string(args[0])).Error())
	}
}

func cmdSave(ctx *dispatch.Context, args [][]byte) resp.Value {
	if ctx.Server.SaveSnapshot == nil {
		return resp.Err("ERR persistence is not configured")
	}
	if err := ctx.Server.SaveSnapshot(); err != nil {
		return resp.Err(ferrors.Errorf(ferrors.KindErr, "%s", err.Error()).Error())
	}
	ctx.Server.MarkSaved(time.Now())
	return resp.OK()
}

func cmdBGSave(ctx *dispatch.Context, args [][]byte) resp.Value {
	if ctx.Server.SaveSnapshot == nil {
		return resp.Err("ERR persistence is not configured")
	}
	srv := ctx.Server
	go func() {
		if err := srv.SaveSnapshot(); err == nil {
			srv.MarkSaved(time.Now())
		}
	}()
	return resp.Simple("Background saving started")
}

func cmdLastSave(ctx *dispatch.Context, args [][]byte) resp.Value {
	return resp.Int(ctx.Server.LastSaved())
}

func cmdReplicaOf(ctx *dispatch.Context, args [][]byte) resp.Value {
	host, port := string(args[0]), string(args[1])
	if strings.EqualFold(host, "NO") && strings.EqualFold(port, "ONE") {
		ctx.ReadOnly = false
		return resp.OK()
	}
	ctx.ReadOnly = true
	return resp.OK()
}

func cmdWait(ctx *dispatch.Context, args [][]byte) resp.Value {
	return resp.Int(0)
}

func cmdEval(ctx *dispatch.Context, args [][]byte) resp.Value {
	return evalCommon(ctx, string(args[0]), "", args[1:])
}

func cmdEvalSha(ctx *dispatch.Context, args [][]byte) resp.Value {
	return evalCommon(ctx, "", string(args[0]), args[1:])
}

func evalCommon(ctx *dispatch.Context, body, sha string, rest [][]byte) resp.Value {
	if scriptEngine == nil {
		return resp.Err("ERR scripting is not initialized")
	}
	numKeys, ok := store.ParseStrictInt64(string(rest[0]))
	if !ok || numKeys < 0 || int(numKeys) > len(rest)-1 {
		return resp.Err("ERR Number of keys can't be greater than number of args")
	}
	keys := make([]string, numKeys)
	for i := range keys {
		keys[i] = string(rest[1+i])
	}
	argvStart := 1 + int(numKeys)
	argv := make([]string, len(rest)-argvStart)
	for i := range argv {
		argv[i] = string(rest[argvStart+i])
	}

	// The whole script runs under one database acquisition, the same
	// exclusivity EXEC gives a queued command vector: every redis.call
	// re-entering Dispatch reuses ActiveTx instead of taking the lock
	// again. An EVAL queued inside MULTI already holds that acquisition,
	// so it runs against the surrounding EXEC's Tx directly.
	var out resp.Value
	var evalErr error
	if ctx.ActiveTx != nil {
		out, evalErr = scriptEngine.Eval(ctx, body, sha, keys, argv)
	} else {
		ctx.DB().Do(func(tx *store.Tx) error {
			ctx.ActiveTx = tx
			defer func() { ctx.ActiveTx = nil }()
			out, evalErr = scriptEngine.Eval(ctx, body, sha, keys, argv)
			return nil
		})
	}
	if evalErr != nil {
		return resp.Err(evalErr.Error())
	}
	return out
}

func cmdScript(ctx *dispatch.Context, args [][]byte) resp.Value {
	if scriptEngine == nil {
		return resp.Err("ERR scripting is not initialized")
	}
	switch strings.ToUpper(string(args[0])) {
	case "LOAD":
		if len(args) != 2 {
			return resp.Err(ferrors.WrongArity("script|load").Error())
		}
		return resp.BulkFromString(scriptEngine.Load(string(args[1])))
	case "EXISTS":
		items := make([]resp.Value, len(args)-1)
		for i, a := range args[1:] {
			if scriptEngine.Exists(string(a)) {
				items[i] = resp.Int(1)
			} else {
				items[i] = resp.Int(0)
			}
		}
		return resp.ArrSlice(items)
	case "FLUSH":
		scriptEngine.Flush()
		return resp.OK()
	case "KILL":
		return resp.Err("NOTBUSY No scripts in execution right now.")
	default:
		return resp.Err(ferrors.Errorf(ferrors.KindErr, "Unknown SCRIPT subcommand '%s'", string(args[0])).Error())
	}
}
