// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import (
	"github.com/google/btree"
)

// zitem is one (score, member) pair in the ordered index. Ordering is
// score ascending, ties broken by lexicographic member order.
type zitem struct {
	score  float64
	member string
}

func lessZItem(a, b zitem) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.member < b.member
}

// Member and Score let callers outside the package read a zitem
// returned from a range/pop method without the type itself being
// exported: Go permits calling exported methods on an unexported
// type's value obtained through an exported API.
func (it zitem) Member() string  { return it.member }
func (it zitem) Score() float64  { return it.score }

// ZSetVal is the SortedSet container variant: a member->score map plus
// an ordered index in github.com/google/btree's generic BTreeG. Inserts
// and removals are O(log n); rank and the by-rank, by-score and by-lex
// range queries walk the index from its lowest item.
type ZSetVal struct {
	byMember map[string]float64
	order    *btree.BTreeG[zitem]
}

func NewZSetVal() *ZSetVal {
	return &ZSetVal{
		byMember: make(map[string]float64),
		order:    btree.NewG(32, lessZItem),
	}
}

func (z *ZSetVal) Len() int { return len(z.byMember) }

func (z *ZSetVal) Score(member string) (float64, bool) {
	s, ok := z.byMember[member]
	return s, ok
}

// Set inserts or updates member's score, returning whether it was newly
// added (for ZADD's default/CH-less return value).
func (z *ZSetVal) Set(member string, score float64) bool {
	old, existed := z.byMember[member]
	if existed {
		z.order.Delete(zitem{score: old, member: member})
	}
	z.byMember[member] = score
	z.order.ReplaceOrInsert(zitem{score: score, member: member})
	return !existed
}

func (z *ZSetVal) Remove(member string) bool {
	old, ok := z.byMember[member]
	if !ok {
		return false
	}
	delete(z.byMember, member)
	z.order.Delete(zitem{score: old, member: member})
	return true
}

// Rank returns member's zero-based ascending rank, or -1 if absent.
func (z *ZSetVal) Rank(member string) int {
	score, ok := z.byMember[member]
	if !ok {
		return -1
	}
	rank := 0
	z.order.Ascend(func(it zitem) bool {
		if it.member == member && it.score == score {
			return false
		}
		rank++
		return true
	})
	return rank
}

// RangeByRank returns members in ascending rank order for [start,stop]
// inclusive, after clamping/negative-index normalization like LRANGE.
func (z *ZSetVal) RangeByRank(start, stop int, reverse bool) []zitem {
	n := z.order.Len()
	start = NormalizeIndex(start, n)
	stop = NormalizeIndex(stop, n)
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return nil
	}
	all := make([]zitem, 0, n)
	z.order.Ascend(func(it zitem) bool {
		all = append(all, it)
		return true
	})
	if reverse {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	return all[start : stop+1]
}

// RangeByScore returns members with min<=score<=max (or exclusive
// bounds), ascending.
func (z *ZSetVal) RangeByScore(min, max float64, minExcl, maxExcl bool) []zitem {
	return z.rangeByScoreImpl(min, max, minExcl, maxExcl)
}

func (z *ZSetVal) rangeByScoreImpl(min, max float64, minExcl, maxExcl bool) []zitem {
	var out []zitem
	z.order.Ascend(func(it zitem) bool {
		if it.score > max || (maxExcl && it.score == max) {
			return false
		}
		if it.score < min || (minExcl && it.score == min) {
			return true
		}
		out = append(out, it)
		return true
	})
	return out
}

// RangeByLex returns members between lexicographic bounds, assuming all
// members share the same score (the only case ZRANGEBYLEX is defined
// for), honoring '[' (inclusive), '(' (exclusive), '-' and '+'
// (unbounded) prefixes.
func (z *ZSetVal) RangeByLex(min, max string, minExcl, maxExcl, minInf, maxInf bool) []zitem {
	var out []zitem
	z.order.Ascend(func(it zitem) bool {
		if !minInf {
			if it.member < min || (minExcl && it.member == min) {
				return true
			}
		}
		if !maxInf {
			if it.member > max || (maxExcl && it.member == max) {
				return false
			}
		}
		out = append(out, it)
		return true
	})
	return out
}

func (z *ZSetVal) Count(min, max float64, minExcl, maxExcl bool) int {
	return len(z.rangeByScoreImpl(min, max, minExcl, maxExcl))
}

// PopMin/PopMax remove and return up to count of the lowest/highest
// scored members.
func (z *ZSetVal) PopMin(count int) []zitem {
	var out []zitem
	for i := 0; i < count && z.order.Len() > 0; i++ {
		it, ok := z.order.Min()
		if !ok {
			break
		}
		z.Remove(it.member)
		out = append(out, it)
	}
	return out
}

func (z *ZSetVal) PopMax(count int) []zitem {
	var out []zitem
	for i := 0; i < count && z.order.Len() > 0; i++ {
		it, ok := z.order.Max()
		if !ok {
			break
		}
		z.Remove(it.member)
		out = append(out, it)
	}
	return out
}
