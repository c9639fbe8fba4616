// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import (
	"github.com/ferrousdb/ferrous/internal/dispatch"
	"github.com/ferrousdb/ferrous/internal/ferrors"
	"github.com/ferrousdb/ferrous/internal/pubsub"
	"github.com/ferrousdb/ferrous/internal/resp"
)

func registerPubSub(t *dispatch.Table) {
	t.Register(dispatch.Spec{Name: "SUBSCRIBE", Arity: -2, Flags: dispatch.FlagPubSub | dispatch.FlagNoScript, Handler: cmdSubscribe})
	t.Register(dispatch.Spec{Name: "UNSUBSCRIBE", Arity: -1, Flags: dispatch.FlagPubSub | dispatch.FlagNoScript, Handler: cmdUnsubscribe})
	t.Register(dispatch.Spec{Name: "PSUBSCRIBE", Arity: -2, Flags: dispatch.FlagPubSub | dispatch.FlagNoScript, Handler: cmdPSubscribe})
	t.Register(dispatch.Spec{Name: "PUNSUBSCRIBE", Arity: -1, Flags: dispatch.FlagPubSub | dispatch.FlagNoScript, Handler: cmdPUnsubscribe})
	t.Register(dispatch.Spec{Name: "PUBLISH", Arity: 3, Flags: 0, Handler: cmdPublish})
	t.Register(dispatch.Spec{Name: "PUBSUB", Arity: -2, Flags: dispatch.FlagReadonly, Handler: cmdPubSub})
}

// ensureSubscriber lazily creates ctx's mailbox on first SUBSCRIBE/
// PSUBSCRIBE, mirroring how the connection only joins the fan-out
// registry once it actually needs delivery.
func ensureSubscriber(ctx *dispatch.Context) *pubsub.Subscriber {
	if ctx.Subscriber == nil {
		ctx.Subscriber = pubsub.NewSubscriber(ctx.ConnID, 128)
	}
	return ctx.Subscriber
}

// Channel subscriptions and pattern subscriptions keep separate counts
// in the ack frames: SUBSCRIBE/UNSUBSCRIBE report channels only,
// PSUBSCRIBE/PUNSUBSCRIBE patterns only. Pub/sub mode itself is entered
// and left on the combined total.
func subCount(ctx *dispatch.Context) int64 {
	return int64(len(ctx.Channels) + len(ctx.Patterns))
}

func cmdSubscribe(ctx *dispatch.Context, args [][]byte) resp.Value {
	sub := ensureSubscriber(ctx)
	acks := make([]resp.Value, 0, len(args))
	for _, a := range args {
		ch := string(a)
		ctx.PubSub.Subscribe(ch, sub)
		ctx.Channels[ch] = true
		ctx.State = dispatch.StatePubSub
		acks = append(acks, resp.Arr(resp.BulkFromString("subscribe"), resp.BulkFromString(ch), resp.Int(int64(len(ctx.Channels)))))
	}
	if len(acks) == 1 {
		return acks[0]
	}
	return resp.MultiFrame(acks)
}

func cmdPSubscribe(ctx *dispatch.Context, args [][]byte) resp.Value {
	sub := ensureSubscriber(ctx)
	acks := make([]resp.Value, 0, len(args))
	for _, a := range args {
		pat := string(a)
		ctx.PubSub.PSubscribe(pat, sub)
		ctx.Patterns[pat] = true
		ctx.State = dispatch.StatePubSub
		acks = append(acks, resp.Arr(resp.BulkFromString("psubscribe"), resp.BulkFromString(pat), resp.Int(int64(len(ctx.Patterns)))))
	}
	if len(acks) == 1 {
		return acks[0]
	}
	return resp.MultiFrame(acks)
}

func cmdUnsubscribe(ctx *dispatch.Context, args [][]byte) resp.Value {
	targets := make([]string, 0, len(args))
	if len(args) == 0 {
		for ch := range ctx.Channels {
			targets = append(targets, ch)
		}
	} else {
		for _, a := range args {
			targets = append(targets, string(a))
		}
	}
	if len(targets) == 0 {
		return resp.Arr(resp.BulkFromString("unsubscribe"), resp.NullBulk(), resp.Int(int64(len(ctx.Channels))))
	}
	acks := make([]resp.Value, 0, len(targets))
	for _, ch := range targets {
		if ctx.Subscriber != nil {
			ctx.PubSub.Unsubscribe(ch, ctx.Subscriber.ID())
		}
		delete(ctx.Channels, ch)
		acks = append(acks, resp.Arr(resp.BulkFromString("unsubscribe"), resp.BulkFromString(ch), resp.Int(int64(len(ctx.Channels)))))
	}
	if subCount(ctx) == 0 {
		ctx.State = dispatch.StateReady
	}
	if len(acks) == 1 {
		return acks[0]
	}
	return resp.MultiFrame(acks)
}

func cmdPUnsubscribe(ctx *dispatch.Context, args [][]byte) resp.Value {
	targets := make([]string, 0, len(args))
	if len(args) == 0 {
		for p := range ctx.Patterns {
			targets = append(targets, p)
		}
	} else {
		for _, a := range args {
			targets = append(targets, string(a))
		}
	}
	if len(targets) == 0 {
		return resp.Arr(resp.BulkFromString("punsubscribe"), resp.NullBulk(), resp.Int(int64(len(ctx.Patterns))))
	}
	acks := make([]resp.Value, 0, len(targets))
	for _, pat := range targets {
		if ctx.Subscriber != nil {
			ctx.PubSub.PUnsubscribe(pat, ctx.Subscriber.ID())
		}
		delete(ctx.Patterns, pat)
		acks = append(acks, resp.Arr(resp.BulkFromString("punsubscribe"), resp.BulkFromString(pat), resp.Int(int64(len(ctx.Patterns)))))
	}
	if subCount(ctx) == 0 {
		ctx.State = dispatch.StateReady
	}
	if len(acks) == 1 {
		return acks[0]
	}
	return resp.MultiFrame(acks)
}

func cmdPublish(ctx *dispatch.Context, args [][]byte) resp.Value {
	n := ctx.PubSub.Publish(string(args[0]), args[1])
	return resp.Int(int64(n))
}

func cmdPubSub(ctx *dispatch.Context, args [][]byte) resp.Value {
	switch string(args[0]) {
	case "CHANNELS", "channels":
		pattern := ""
		if len(args) > 1 {
			pattern = string(args[1])
		}
		chans := ctx.PubSub.Channels(pattern)
		items := make([]resp.Value, len(chans))
		for i, c := range chans {
			items[i] = resp.BulkFromString(c)
		}
		return resp.ArrSlice(items)
	case "NUMSUB", "numsub":
		items := make([]resp.Value, 0, (len(args)-1)*2)
		for _, a := range args[1:] {
			items = append(items, resp.BulkFromString(string(a)), resp.Int(int64(ctx.PubSub.NumSub(string(a)))))
		}
		return resp.ArrSlice(items)
	case "NUMPAT", "numpat":
		return resp.Int(int64(ctx.PubSub.NumPat()))
	default:
		return resp.Err(ferrors.Errorf(ferrors.KindErr, "Unknown PUBSUB subcommand or wrong number of arguments for '%s'", string(args[0])).Error())
	}
}
