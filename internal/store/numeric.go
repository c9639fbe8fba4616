// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"strconv"
	"strings"
)

// ParseStrictInt64 parses a base-10 i64 string with no leading/trailing
// whitespace, no leading '+', and no extraneous leading zeros beyond a
// bare "0": the reference server's "is not an integer" validation is
// this strict because the on-disk/wire form of an integer-backed
// string must round-trip byte-for-byte.
func ParseStrictInt64(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	body := s
	if body[0] == '-' {
		body = body[1:]
	}
	if body == "" || body[0] == '+' || strings.ContainsAny(s, " \t\r\n") {
		return 0, false
	}
	if len(body) > 1 && body[0] == '0' {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SafeAddInt64 returns x+y and reports whether the addition overflowed
// i64 range, using the standard two's-complement overflow test rather
// than a carry bit: INCRBY must reject over/underflow in both
// directions.
func SafeAddInt64(x, y int64) (int64, bool) {
	sum := x + y
	overflowed := (y > 0 && sum < x) || (y < 0 && sum > x)
	return sum, overflowed
}

// SafeSubInt64 returns x-y and reports overflow, built on SafeAddInt64.
func SafeSubInt64(x, y int64) (int64, bool) {
	if y == minInt64 {
		// -y would itself overflow; x-minInt64 overflows unless x<0.
		return x - y, x >= 0
	}
	return SafeAddInt64(x, -y)
}

const minInt64 = -1 << 63

// ParseStrictFloat64 parses a float, accepting the +inf/-inf spellings
// ZADD scores require and rejecting NaN/"nan".
func ParseStrictFloat64(s string) (float64, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch lower {
	case "nan", "-nan":
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if f != f { // NaN check without importing math for one comparison
		return 0, false
	}
	return f, true
}
