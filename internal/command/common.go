// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package command

import "strconv"

func itoaInt64(n int64) string { return strconv.FormatInt(n, 10) }
