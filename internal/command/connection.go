// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import (
	"strconv"
	"strings"

	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/resp"
)

func registerConnection(t *dispatch.Table) {
	t.Register(dispatch.Spec{Name: "PING", Arity: -1, Flags: dispatch.FlagPubSub, Handler: cmdPing})
	t.Register(dispatch.Spec{Name: "ECHO", Arity: 2, Flags: 0, Handler: cmdEcho})
	t.Register(dispatch.Spec{Name: "AUTH", Arity: -2, Flags: 0, Handler: cmdAuth})
	t.Register(dispatch.Spec{Name: "SELECT", Arity: 2, Flags: 0, Handler: cmdSelect})
	t.Register(dispatch.Spec{Name: "QUIT", Arity: -1, Flags: dispatch.FlagPubSub, Handler: cmdQuit})
	t.Register(dispatch.Spec{Name: "HELLO", Arity: -1, Flags: 0, Handler: cmdHello})
	t.Register(dispatch.Spec{Name: "RESET", Arity: 1, Flags: dispatch.FlagPubSub, Handler: cmdReset})
	t.Register(dispatch.Spec{Name: "CLIENT", Arity: -2, Flags: 0, Handler: cmdClient})
}

func cmdPing(ctx *dispatch.Context, args [][]byte) resp.Value {
	if len(args) == 0 {
		return resp.Simple("PONG")
	}
	if len(args) == 1 {
		return resp.BulkFromString(string(args[0]))
	}
	return resp.Err(ferrors.WrongArity("ping").Error())
}

func cmdEcho(ctx *dispatch.Context, args [][]byte) resp.Value {
	return resp.BulkFromString(string(args[0]))
}

func cmdAuth(ctx *dispatch.Context, args [][]byte) resp.Value {
	if len(args) > 2 {
		return resp.Err(ferrors.ErrSyntax.Error())
	}
	pass := string(args[len(args)-1])
	if ctx.Server.RequirePass == "" {
		return resp.Err("ERR Client sent AUTH, but no password is set. Did you mean AUTH <username> <password>?")
	}
	if pass != ctx.Server.RequirePass {
		return resp.Err("WRONGPASS invalid username-password pair or user is disabled.")
	}
	ctx.Authenticated = true
	return resp.OK()
}

// RequireAuth is consulted by the connection read loop before Dispatch,
// not by handlers themselves: AUTH/HELLO/QUIT must always run even
// when unauthenticated.
func RequireAuth(srv *dispatch.ServerInfo, ctx *dispatch.Context) bool {
	return srv.RequirePass != "" && !ctx.Authenticated
}

func cmdSelect(ctx *dispatch.Context, args [][]byte) resp.Value {
	n, err := strconv.Atoi(string(args[0]))
	if err != nil || n < 0 || n >= ctx.Keyspace.Count() {
		return resp.Err("ERR DB index is out of range")
	}
	ctx.DBIndex = n
	return resp.OK()
}

func cmdQuit(ctx *dispatch.Context, args [][]byte) resp.Value {
	ctx.Close()
	return resp.OK()
}

func cmdHello(ctx *dispatch.Context, args [][]byte) resp.Value {
	if len(args) > 0 {
		ver := string(args[0])
		if ver != "2" {
			return resp.Err("NOPROTO unsupported protocol version")
		}
	}
	for i := 1; i < len(args); i++ {
		if strings.EqualFold(string(args[i]), "AUTH") && i+2 < len(args) {
			out := cmdAuth(ctx, args[i+1:i+3])
			if out.Kind == resp.Error {
				return out
			}
			i += 2
		}
	}
	items := []resp.Value{
		resp.BulkFromString("server"), resp.BulkFromString("ferrous"),
		resp.BulkFromString("version"), resp.BulkFromString(ctx.Server.Version),
		resp.BulkFromString("proto"), resp.Int(2),
		resp.BulkFromString("id"), resp.Int(int64(ctx.ConnID)),
		resp.BulkFromString("mode"), resp.BulkFromString("standalone"),
		resp.BulkFromString("role"), resp.BulkFromString("master"),
		resp.BulkFromString("modules"), resp.ArrSlice(nil),
	}
	return resp.ArrSlice(items)
}

func cmdReset(ctx *dispatch.Context, args [][]byte) resp.Value {
	unwatchAll(ctx)
	ctx.Tx.Reset()
	if ctx.Subscriber != nil {
		// Registrations are dropped but the mailbox itself stays: the
		// connection's delivery pump is bound to it for the connection's
		// lifetime, and a later SUBSCRIBE must reuse it.
		ctx.PubSub.RemoveAll(ctx.Subscriber.ID())
	}
	ctx.Channels = make(map[string]bool)
	ctx.Patterns = make(map[string]bool)
	ctx.State = dispatch.StateReady
	ctx.Authenticated = ctx.Server.RequirePass == ""
	return resp.Simple("RESET")
}

func cmdClient(ctx *dispatch.Context, args [][]byte) resp.Value {
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "GETNAME":
		return resp.BulkFromString(ctx.Name)
	case "SETNAME":
		if len(args) != 2 {
			return resp.Err(ferrors.WrongArity("client|setname").Error())
		}
		ctx.Name = string(args[1])
		ctx.Server.SetName(ctx.ConnID, ctx.Name)
		return resp.OK()
	case "ID":
		return resp.Int(int64(ctx.ConnID))
	case "LIST":
		var sb strings.Builder
		for _, ci := range ctx.Server.List() {
			sb.WriteString("id=")
			sb.WriteString(strconv.FormatUint(ci.ID, 10))
			sb.WriteString(" addr=")
			sb.WriteString(ci.Addr)
			sb.WriteString(" name=")
			sb.WriteString(ci.Name)
			sb.WriteString(" db=")
			sb.WriteString(strconv.Itoa(ci.DBIdx))
			sb.WriteString("\n")
		}
		return resp.BulkFromString(sb.String())
	case "KILL":
		if len(args) < 2 {
			return resp.Err(ferrors.WrongArity("client|kill").Error())
		}
		killed := 0
		for _, ci := range ctx.Server.List() {
			if ci.Addr == string(args[1]) {
				if ctx.Server.Kill(ci.ID) {
					killed++
				}
			}
		}
		if len(args) == 2 {
			if killed == 0 {
				return resp.Err("ERR No such client")
			}
			return resp.OK()
		}
		return resp.Int(int64(killed))
	case "NO-EVICT", "NO-TOUCH":
		return resp.OK()
	case "PAUSE", "UNPAUSE":
		return resp.OK()
	default:
		return resp.Err(ferrors.Errorf(ferrors.KindErr, "Unknown CLIENT subcommand or wrong number of arguments for '%s'", sub).Error())
	}
}
