// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package trie implements a compressed radix trie over the 32 bits of
// a key, consumed 6 bits at a time from the most significant end: five
// full 64-ary levels account for 30 bits, with a final 4-ary level for
// the remaining 2. Every key with at least one element present has a
// collision list (the same intrusive list from package ilist used
// everywhere else in this module) reachable by a unique path of
// 6-bit (or, at the last level, 2-bit) digits; distinct keys that
// share a path prefix share inner nodes down to the point where their
// digits first diverge.
//
// An inner node with exactly one surviving child is never actually
// materialized: on insert, two leaves that fork partway down are
// linked directly to the inner node at their point of divergence,
// skipping the single-child nodes a naive implementation would create
// and immediately have to collapse; on remove, a node whose child
// count drops to one is freed and its sole child promoted into the
// parent's slot. No tag bit distinguishes an inner node from a leaf;
// a childSlot's two fields are simply mutually exclusive.
package trie

import (
	"unsafe"

	"github.com/aristanetworks/intrusive/blockpool"
	"github.com/aristanetworks/intrusive/ilist"
)

// levels is the number of digits a 32-bit key is split into: five
// 6-bit digits from the top, then one 2-bit digit for the remainder.
const levels = 6

// indexAt returns the digit of key consumed at the given level.
func indexAt(key uint32, level int) uint32 {
	if level < levels-1 {
		return (key >> (32 - 6*(level+1))) & 0x3f
	}
	return key & 0x3
}

// childSlot is one entry in an inner node's fanout array, or the root
// slot. Exactly one of inner and leaf is non-nil, or both are nil if
// the slot is unoccupied.
type childSlot[T any] struct {
	inner *trieNode[T]
	leaf  *ilist.Node[T]
}

func (c *childSlot[T]) isEmpty() bool {
	return c.inner == nil && c.leaf == nil
}

// trieNode is an inner node: a fixed fanout of 64 children (the final
// level only ever populates the first 4) plus a live-child count used
// to detect when compression applies.
type trieNode[T any] struct {
	children [64]childSlot[T]
	count    uint8
	// level is the digit (via indexAt) this node examines. Compression
	// means a node's depth in the tree is not a reliable stand-in for
	// this: a fork two digits below its parent skips materializing the
	// single-child node in between, so the level has to be recorded
	// explicitly rather than derived from recursion depth.
	level uint8
	// prefix is the key of any element in this node's subtree. Every
	// member shares its digits above level (removal can invalidate the
	// digits at or below level, which are never read). Insert uses it
	// to detect a key that diverges from the subtree in one of the
	// digits compression skipped over, which must fork above this node
	// rather than descend through it.
	prefix uint32
}

// Trie maps 32-bit keys to collision lists of elements, preserving
// insertion order among elements sharing a key. The zero value is an
// empty, ready-to-use trie.
type Trie[T any] struct {
	pool      blockpool.Pool[trieNode[T]]
	root      childSlot[T]
	nodeCount uint32
	count     uint32
}

// escapeSink is never written: the guarded store in id makes every
// Trie escape to the heap. Nodes record their trie's address as an
// owner tag, and a Trie left on a goroutine stack would change address
// whenever that stack grows.
var escapeSink struct {
	enabled bool
	v       any
}

func (tr *Trie[T]) id() uintptr {
	if escapeSink.enabled {
		escapeSink.v = tr
	}
	return uintptr(unsafe.Pointer(tr))
}

// Insert adds n under key, at the tail of key's collision list. n
// must not already belong to any container.
func (tr *Trie[T]) Insert(n *ilist.Node[T], data T, key uint32) {
	n.Key = key
	tr.insertAt(&tr.root, n, data, key, 0)
	tr.count++
}

func (tr *Trie[T]) insertAt(slot *childSlot[T], n *ilist.Node[T], data T, key uint32, level int) {
	owner := tr.id()
	if slot.isEmpty() {
		ilist.InsertTail(&slot.leaf, n, data, owner)
		return
	}
	if slot.leaf != nil {
		existingKey := slot.leaf.Key
		if existingKey == key {
			ilist.InsertTail(&slot.leaf, n, data, owner)
			return
		}
		// Keys diverge somewhere at or below level; find exactly where
		// and fork there directly, without materializing a chain of
		// single-child inner nodes above the fork.
		divLevel := level
		for divLevel < levels-1 && indexAt(existingKey, divLevel) == indexAt(key, divLevel) {
			divLevel++
		}
		inner := tr.pool.Alloc()
		inner.level = uint8(divLevel)
		inner.prefix = key
		oldLeaf := slot.leaf
		oldIdx := indexAt(existingKey, divLevel)
		newIdx := indexAt(key, divLevel)
		inner.children[oldIdx].leaf = oldLeaf
		inner.count++
		ilist.InsertTail(&inner.children[newIdx].leaf, n, data, owner)
		inner.count++
		tr.nodeCount++
		slot.leaf = nil
		slot.inner = inner
		return
	}
	inner := slot.inner
	// An inner node can sit more than one digit below its parent (the
	// single-child nodes in between were never materialized, or were
	// compressed away by a removal). A key that diverges from the
	// subtree within those skipped digits must fork above inner, not
	// descend into a child whose whole subtree disagrees with it.
	divLevel := level
	for divLevel < int(inner.level) && indexAt(inner.prefix, divLevel) == indexAt(key, divLevel) {
		divLevel++
	}
	if divLevel < int(inner.level) {
		fork := tr.pool.Alloc()
		fork.level = uint8(divLevel)
		fork.prefix = key
		fork.children[indexAt(inner.prefix, divLevel)].inner = inner
		fork.count++
		ilist.InsertTail(&fork.children[indexAt(key, divLevel)].leaf, n, data, owner)
		fork.count++
		tr.nodeCount++
		slot.inner = fork
		return
	}
	idx := indexAt(key, int(inner.level))
	child := &inner.children[idx]
	wasEmpty := child.isEmpty()
	tr.insertAt(child, n, data, key, int(inner.level)+1)
	if wasEmpty {
		inner.count++
	}
}

// locate walks the trie down to the slot that would hold key, and
// returns it only if it actually holds key (a leaf reached via a
// matching prefix may still belong to a different key that diverges
// at an untested, deeper digit).
func (tr *Trie[T]) locate(key uint32) *childSlot[T] {
	slot := &tr.root
	for slot.inner != nil {
		idx := indexAt(key, int(slot.inner.level))
		slot = &slot.inner.children[idx]
	}
	if slot.leaf == nil || slot.leaf.Key != key {
		return nil
	}
	return slot
}

// Search returns the head element's data for key, if present.
func (tr *Trie[T]) Search(key uint32) (T, bool) {
	slot := tr.locate(key)
	if slot == nil {
		var zero T
		return zero, false
	}
	return slot.leaf.Data, true
}

// Bucket returns the collision list head for key, or nil.
func (tr *Trie[T]) Bucket(key uint32) *ilist.Node[T] {
	slot := tr.locate(key)
	if slot == nil {
		return nil
	}
	return slot.leaf
}

// Remove detaches and returns the head of key's collision list, if
// any.
func (tr *Trie[T]) Remove(key uint32) (T, bool) {
	slot := tr.locate(key)
	if slot == nil {
		var zero T
		return zero, false
	}
	head := slot.leaf
	data := tr.RemoveExisting(head)
	return data, true
}

// RemoveExisting detaches n, which the caller guarantees is currently
// a member of this trie, and returns its data. If n was the last
// element at its key, the inner nodes that exist solely to reach that
// key are freed and compression is re-applied up the path.
func (tr *Trie[T]) RemoveExisting(n *ilist.Node[T]) T {
	key := n.Key
	data := tr.removeAt(&tr.root, n, key)
	tr.count--
	return data
}

func (tr *Trie[T]) removeAt(slot *childSlot[T], n *ilist.Node[T], key uint32) T {
	owner := tr.id()
	if slot.leaf != nil {
		return ilist.RemoveExisting(&slot.leaf, n, owner)
	}
	inner := slot.inner
	idx := indexAt(key, int(inner.level))
	child := &inner.children[idx]
	data := tr.removeAt(child, n, key)
	if child.isEmpty() {
		inner.count--
		switch inner.count {
		case 0:
			tr.pool.Free(inner)
			tr.nodeCount--
			slot.inner = nil
		case 1:
			var remaining childSlot[T]
			for i := range inner.children {
				if !inner.children[i].isEmpty() {
					remaining = inner.children[i]
					break
				}
			}
			tr.pool.Free(inner)
			tr.nodeCount--
			*slot = remaining
		}
	}
	return data
}

// Foreach calls fn once for every element currently stored.
func (tr *Trie[T]) Foreach(fn func(T)) {
	foreachSlot(&tr.root, fn)
}

func foreachSlot[T any](slot *childSlot[T], fn func(T)) {
	if slot.leaf != nil {
		ilist.Foreach(slot.leaf, fn)
		return
	}
	if slot.inner == nil {
		return
	}
	for i := range slot.inner.children {
		foreachSlot(&slot.inner.children[i], fn)
	}
}

// ForeachArg is Foreach with a caller-supplied context value.
func (tr *Trie[T]) ForeachArg(arg any, fn func(arg any, data T)) {
	foreachSlotArg(&tr.root, arg, fn)
}

func foreachSlotArg[T any](slot *childSlot[T], arg any, fn func(arg any, data T)) {
	if slot.leaf != nil {
		ilist.ForeachArg(slot.leaf, arg, fn)
		return
	}
	if slot.inner == nil {
		return
	}
	for i := range slot.inner.children {
		foreachSlotArg(&slot.inner.children[i], arg, fn)
	}
}

// Count returns the number of elements currently stored.
func (tr *Trie[T]) Count() uint32 {
	return tr.count
}

// MemoryUsage returns the bytes held by inner-node slabs.
func (tr *Trie[T]) MemoryUsage() uintptr {
	return tr.pool.MemoryUsage()
}

// Done releases every inner node slab. The trie must be empty.
func (tr *Trie[T]) Done() {
	if tr.count != 0 {
		panic("trie: Done called on a non-empty trie")
	}
	tr.pool.Done()
}
