// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesChannelSubscribers(t *testing.T) {
	h := NewHub()
	a := NewSubscriber(1, 8)
	b := NewSubscriber(2, 8)
	h.Subscribe("news", a)
	h.Subscribe("news", b)

	n := h.Publish("news", []byte("hello"))
	require.Equal(t, 2, n)

	for _, sub := range []*Subscriber{a, b} {
		msg := <-sub.Mailbox()
		require.Equal(t, "news", msg.Channel)
		require.Empty(t, msg.Pattern)
		require.Equal(t, []byte("hello"), msg.Payload)
	}
}

func TestPublishMatchesPatternSubscribers(t *testing.T) {
	h := NewHub()
	a := NewSubscriber(1, 8)
	h.PSubscribe("news.*", a)

	n := h.Publish("news.sports", []byte("hello"))
	require.Equal(t, 1, n)

	msg := <-a.Mailbox()
	require.Equal(t, "news.sports", msg.Channel)
	require.Equal(t, "news.*", msg.Pattern)
	require.Equal(t, []byte("hello"), msg.Payload)

	require.Equal(t, 0, h.Publish("weather.today", []byte("x")))
}

func TestPublishCountsChannelAndPatternDeliveries(t *testing.T) {
	h := NewHub()
	direct := NewSubscriber(1, 8)
	pat := NewSubscriber(2, 8)
	h.Subscribe("news.sports", direct)
	h.PSubscribe("news.*", pat)

	require.Equal(t, 2, h.Publish("news.sports", []byte("m")))
}

func TestOverflowMarksSubscriberForClosure(t *testing.T) {
	h := NewHub()
	slow := NewSubscriber(1, 1)
	h.Subscribe("c", slow)

	require.Equal(t, 1, h.Publish("c", []byte("first")))
	// Mailbox is now full; the second delivery is dropped and the
	// subscriber is flagged for closure.
	require.Equal(t, 0, h.Publish("c", []byte("second")))

	select {
	case <-slow.Overflow():
	default:
		t.Fatal("overflow signal was not raised")
	}
}

func TestRemoveAllDropsEveryRegistration(t *testing.T) {
	h := NewHub()
	a := NewSubscriber(1, 8)
	h.Subscribe("c1", a)
	h.Subscribe("c2", a)
	h.PSubscribe("p.*", a)

	h.RemoveAll(1)
	require.Equal(t, 0, h.Publish("c1", []byte("x")))
	require.Equal(t, 0, h.Publish("c2", []byte("x")))
	require.Equal(t, 0, h.Publish("p.q", []byte("x")))
	require.Empty(t, h.Channels(""))
	require.Equal(t, 0, h.NumPat())
}

func TestChannelsNumSubNumPat(t *testing.T) {
	h := NewHub()
	a := NewSubscriber(1, 8)
	b := NewSubscriber(2, 8)
	h.Subscribe("alpha", a)
	h.Subscribe("alpha", b)
	h.Subscribe("beta", a)
	h.PSubscribe("a.*", a)

	require.ElementsMatch(t, []string{"alpha", "beta"}, h.Channels(""))
	require.ElementsMatch(t, []string{"alpha"}, h.Channels("al*"))
	require.Equal(t, 2, h.NumSub("alpha"))
	require.Equal(t, 1, h.NumSub("beta"))
	require.Equal(t, 1, h.NumPat())
}
