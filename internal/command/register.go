// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import "github.com/ferrousdb/ferrous/internal/dispatch"

// Register installs every command group into t. It is the single entry
// point cmd/ferrous and the test harness use to build a fully wired
// dispatch.Table, keeping registration in one init-time assembly
// rather than scattered across package init()s.
func Register(t *dispatch.Table) {
	registerStrings(t)
	registerLists(t)
	registerSets(t)
	registerHashes(t)
	registerZSets(t)
	registerStreams(t)
	registerTransactions(t)
	registerConnection(t)
	registerKeys(t)
	registerPubSub(t)
	registerServer(t)
}
