// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package dynhash implements a chained hash table with amortized,
// power-of-two bucket growth and shrink: the classic "double when
// load crosses 50%, halve when it falls to 12.5%" policy, paid for
// a full bucket array rehash whenever a threshold is crossed. Every
// collision chain is the intrusive list from package ilist, and both
// grow and shrink are expressed as repeated pop-from-old /
// push-to-new passes over that list rather than hand-rolled pointer
// surgery.
//
// The price of the simple policy is a worst-case O(n) pause on the
// operation that crosses a threshold; see package linhash for the
// incremental alternative that bounds per-operation cost instead.
package dynhash

import (
	"unsafe"

	"github.com/aristanetworks/intrusive/ilist"
)

// initBit is the initial bucket array width: 1<<initBit buckets.
const initBit = 4

// Table is a chained hash table keyed by a 32-bit hash. The zero
// value is not ready to use; create one with New.
type Table[T any] struct {
	bucket []*ilist.Node[T]
	bit    uint32
	mask   uint32
	count  uint32
}

// New creates an empty table with the initial 16-bucket array.
func New[T any]() *Table[T] {
	return &Table[T]{
		bucket: make([]*ilist.Node[T], 1<<initBit),
		bit:    initBit,
		mask:   1<<initBit - 1,
	}
}

// escapeSink is never written: the guarded store in id makes every
// Table escape to the heap. Nodes record their table's address as an
// owner tag, and a Table left on a goroutine stack would change
// address whenever that stack grows.
var escapeSink struct {
	enabled bool
	v       any
}

func (t *Table[T]) id() uintptr {
	if escapeSink.enabled {
		escapeSink.v = t
	}
	return uintptr(unsafe.Pointer(t))
}

// Insert adds n to the table under the given hash, at the tail of its
// bucket's collision chain so that nodes inserted earlier with an
// equal hash are found first. n must not already belong to any
// container.
func (t *Table[T]) Insert(n *ilist.Node[T], data T, hash uint32) {
	n.Key = hash
	idx := hash & t.mask
	ilist.InsertTail(&t.bucket[idx], n, data, t.id())
	t.count++
	t.grow()
}

// Search returns the first element in insertion order whose hash
// equals hash and for which match reports true.
func (t *Table[T]) Search(hash uint32, match func(T) bool) (T, bool) {
	for n := t.bucket[hash&t.mask]; n != nil; n = n.Next() {
		if n.Key == hash && match(n.Data) {
			return n.Data, true
		}
	}
	var zero T
	return zero, false
}

// Remove detaches and returns the first element in insertion order
// whose hash equals hash and for which match reports true.
func (t *Table[T]) Remove(hash uint32, match func(T) bool) (T, bool) {
	idx := hash & t.mask
	for n := t.bucket[idx]; n != nil; n = n.Next() {
		if n.Key == hash && match(n.Data) {
			data := ilist.RemoveExisting(&t.bucket[idx], n, t.id())
			t.count--
			t.shrink()
			return data, true
		}
	}
	var zero T
	return zero, false
}

// RemoveExisting detaches n, which the caller guarantees is currently
// a member of this table, and returns its data.
func (t *Table[T]) RemoveExisting(n *ilist.Node[T]) T {
	idx := n.Key & t.mask
	data := ilist.RemoveExisting(&t.bucket[idx], n, t.id())
	t.count--
	t.shrink()
	return data
}

// Bucket returns the head of the collision chain for hash, for manual
// traversal across duplicate hashes and collisions; it is nil if the
// bucket is empty.
func (t *Table[T]) Bucket(hash uint32) *ilist.Node[T] {
	return t.bucket[hash&t.mask]
}

// Foreach calls fn once for every element currently stored, in
// bucket-then-chain order. fn must not mutate the table: even removing
// the visited node can trigger a shrink that reorganizes the buckets
// mid-walk.
func (t *Table[T]) Foreach(fn func(T)) {
	for _, head := range t.bucket {
		ilist.Foreach(head, fn)
	}
}

// ForeachArg is Foreach with a caller-supplied context value.
func (t *Table[T]) ForeachArg(arg any, fn func(arg any, data T)) {
	for _, head := range t.bucket {
		ilist.ForeachArg(head, arg, fn)
	}
}

// Count returns the number of elements currently stored.
func (t *Table[T]) Count() uint32 {
	return t.count
}

// MemoryUsage returns the bytes held by the bucket array.
func (t *Table[T]) MemoryUsage() uintptr {
	var p *ilist.Node[T]
	return uintptr(len(t.bucket)) * unsafe.Sizeof(p)
}

// Done releases the bucket array. The table must be empty.
func (t *Table[T]) Done() {
	if t.count != 0 {
		panic("dynhash: Done called on a non-empty table")
	}
	t.bucket = nil
}

// grow doubles the bucket array once the load factor reaches 1/2,
// redistributing every chain by popping from the old array and
// pushing to the tail of the matching new bucket, which preserves
// each bucket's FIFO order across the split.
func (t *Table[T]) grow() {
	if t.count < uint32(len(t.bucket))/2 {
		return
	}
	newBit := t.bit + 1
	newMask := uint32(1)<<newBit - 1
	newBucket := make([]*ilist.Node[T], 1<<newBit)
	owner := t.id()
	for i := range t.bucket {
		head := t.bucket[i]
		for head != nil {
			n := head
			data := ilist.RemoveExisting(&head, n, owner)
			idx := n.Key & newMask
			ilist.InsertTail(&newBucket[idx], n, data, owner)
		}
	}
	t.bucket = newBucket
	t.bit = newBit
	t.mask = newMask
}

// shrink halves the bucket array once the load factor drops to 1/8,
// provided the table isn't already at its minimum size. Each pair of
// old buckets is concatenated into the one new bucket they both map
// to, reusing the list component's O(1) concat.
func (t *Table[T]) shrink() {
	if t.bit <= initBit {
		return
	}
	if t.count > uint32(len(t.bucket))/8 {
		return
	}
	newBit := t.bit - 1
	newMax := uint32(1) << newBit
	owner := t.id()
	newBucket := make([]*ilist.Node[T], newMax)
	for i := uint32(0); i < newMax; i++ {
		newBucket[i] = t.bucket[i]
		ilist.Concat(&newBucket[i], &t.bucket[i+newMax], owner)
	}
	t.bucket = newBucket
	t.bit = newBit
	t.mask = newMax - 1
}
