// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

import "container/list"

// ListVal is the List container variant: amortized O(1) push/pop at
// both ends via container/list's doubly linked list, O(min(i,n-i))
// by-index access by walking from whichever end is closer.
type ListVal struct {
	l *list.List
}

func NewListVal() *ListVal { return &ListVal{l: list.New()} }

func (v *ListVal) Len() int { return v.l.Len() }

func (v *ListVal) PushLeft(b []byte)  { v.l.PushFront(b) }
func (v *ListVal) PushRight(b []byte) { v.l.PushBack(b) }

func (v *ListVal) PopLeft() ([]byte, bool) {
	e := v.l.Front()
	if e == nil {
		return nil, false
	}
	v.l.Remove(e)
	return e.Value.([]byte), true
}

func (v *ListVal) PopRight() ([]byte, bool) {
	e := v.l.Back()
	if e == nil {
		return nil, false
	}
	v.l.Remove(e)
	return e.Value.([]byte), true
}

// elementAt returns the list element at a normalized, in-range position by
// walking from the nearer end.
func (v *ListVal) elementAt(i int) *list.Element {
	n := v.l.Len()
	if i < 0 || i >= n {
		return nil
	}
	if i <= n/2 {
		e := v.l.Front()
		for ; i > 0; i-- {
			e = e.Next()
		}
		return e
	}
	e := v.l.Back()
	for j := n - 1; j > i; j-- {
		e = e.Prev()
	}
	return e
}

// NormalizeIndex maps a negative Redis index (counting from the tail)
// to its position from the head by adding n. The result is not clamped
// and can still fall outside [0, n); callers bounds-check it.
func NormalizeIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return i
}

func (v *ListVal) At(i int) ([]byte, bool) {
	e := v.elementAt(NormalizeIndex(i, v.l.Len()))
	if e == nil {
		return nil, false
	}
	return e.Value.([]byte), true
}

func (v *ListVal) Set(i int, b []byte) bool {
	e := v.elementAt(NormalizeIndex(i, v.l.Len()))
	if e == nil {
		return false
	}
	e.Value = b
	return true
}

// Range returns a copy of the elements in [start,stop] inclusive, after
// clamping both to the list bounds the way LRANGE does.
func (v *ListVal) Range(start, stop int) [][]byte {
	n := v.l.Len()
	start = NormalizeIndex(start, n)
	stop = NormalizeIndex(stop, n)
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return nil
	}
	out := make([][]byte, 0, stop-start+1)
	e := v.elementAt(start)
	for i := start; i <= stop && e != nil; i++ {
		out = append(out, e.Value.([]byte))
		e = e.Next()
	}
	return out
}

// Trim keeps only [start,stop] inclusive (clamped), discarding the rest.
func (v *ListVal) Trim(start, stop int) {
	n := v.l.Len()
	start = NormalizeIndex(start, n)
	stop = NormalizeIndex(stop, n)
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		v.l = list.New()
		return
	}
	kept := list.New()
	e := v.elementAt(start)
	for i := start; i <= stop && e != nil; i++ {
		kept.PushBack(e.Value)
		e = e.Next()
	}
	v.l = kept
}

// RemoveMatching removes up to count occurrences equal to b. count>0
// scans head-to-tail, count<0 scans tail-to-head, count==0 removes all
// occurrences: the LREM contract.
func (v *ListVal) RemoveMatching(count int, b []byte) int {
	removed := 0
	match := func(x []byte) bool { return string(x) == string(b) }
	if count >= 0 {
		limit := count
		for e := v.l.Front(); e != nil; {
			next := e.Next()
			if match(e.Value.([]byte)) {
				v.l.Remove(e)
				removed++
				if limit != 0 && removed >= limit {
					break
				}
			}
			e = next
		}
		return removed
	}
	limit := -count
	for e := v.l.Back(); e != nil; {
		prev := e.Prev()
		if match(e.Value.([]byte)) {
			v.l.Remove(e)
			removed++
			if removed >= limit {
				break
			}
		}
		e = prev
	}
	return removed
}

// InsertBeforeAfter implements LINSERT: finds the first element equal
// to pivot and inserts b immediately before/after it. Returns false if
// pivot was not found.
func (v *ListVal) InsertBeforeAfter(before bool, pivot, b []byte) bool {
	for e := v.l.Front(); e != nil; e = e.Next() {
		if string(e.Value.([]byte)) == string(pivot) {
			if before {
				v.l.InsertBefore(b, e)
			} else {
				v.l.InsertAfter(b, e)
			}
			return true
		}
	}
	return false
}

func (v *ListVal) All() [][]byte {
	out := make([][]byte, 0, v.l.Len())
	for e := v.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.([]byte))
	}
	return out
}
