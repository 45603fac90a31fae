// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package linhash implements a chained hash table whose grow and
// shrink are deamortized: instead of dynhash's stop-the-world rehash
// the moment a load-factor threshold is crossed, linhash migrates a
// few buckets per operation, spreading the cost so that no single
// Insert or Remove ever pays for a full-table rehash. The bucket
// vector itself lives in a segarray.Array so that a bucket address
// handed out mid-transition is never invalidated by later growth.
//
// The central subtlety, routing a lookup correctly while half the
// table has moved and half hasn't, mirrors the incremental
// evacuation the Go runtime's own map implementation uses (old buckets
// plus a single "how far have we evacuated" counter, the same shape
// runtime/map.go's oldbuckets/nevacuate fields track): see position
// below, which is the one place that logic lives so Search, Remove,
// and Bucket can't disagree about where a key currently is.
package linhash

import (
	"unsafe"

	"github.com/aristanetworks/intrusive/ilist"
	"github.com/aristanetworks/intrusive/segarray"
)

// initBit must match segarray's first-segment size (1<<6) so that
// every later doubling of the logical bucket count corresponds to
// exactly one appended segment, and so exactly one Shrink call
// undoes exactly one Grow call made by growStep on entering a GROW. A mismatch here would
// leave the table's accounting of segment counts out of sync with
// segarray's own.
const initBit = 6

type transition int

const (
	stable transition = iota
	growing
	shrinking
)

// Table is an incrementally resizing chained hash table keyed by a
// 32-bit hash. The zero value is not ready to use; create one with
// New.
type Table[T any] struct {
	bucket segarray.Array[*ilist.Node[T]]

	bit  uint32
	max  uint32
	mask uint32

	lowMask uint32
	lowMax  uint32

	state transition
	split uint32
	count uint32
}

// New creates an empty table with the initial 64-bucket array.
func New[T any]() *Table[T] {
	t := &Table[T]{
		bit:  initBit,
		max:  1 << initBit,
		mask: 1<<initBit - 1,
	}
	t.bucket.Grow(t.max)
	return t
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

// position is the single routing helper every reader goes through.
// During a stable period it is just hash&mask. Mid-transition, it
// answers "has this key's bucket already been migrated?": buckets at
// small-layout positions at or past split are still (GROW) or already
// (SHRINK) laid out under lowMask, everything below split lives under
// the full mask. The predicate is the same in both directions, which
// is what lets a transition reverse in place (see growStep/shrinkStep).
func (t *Table[T]) position(hash uint32) uint32 {
	if t.state != stable {
		pos := hash & t.lowMask
		if pos >= t.split {
			return pos
		}
	}
	return hash & t.mask
}

// Insert adds n to the table under hash, at the tail of its bucket's
// collision chain. n must not already belong to any container.
func (t *Table[T]) Insert(n *ilist.Node[T], data T, hash uint32) {
	n.Key = hash
	idx := t.position(hash)
	head := t.bucket.Get(idx)
	ilist.InsertTail(&head, n, data, t.id())
	t.bucket.Set(idx, head)
	t.count++
	t.growStep()
}

// Search returns the first element in insertion order whose hash
// equals hash and for which match reports true.
func (t *Table[T]) Search(hash uint32, match func(T) bool) (T, bool) {
	for n := t.bucket.Get(t.position(hash)); n != nil; n = n.Next() {
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
	idx := t.position(hash)
	head := t.bucket.Get(idx)
	for n := head; n != nil; n = n.Next() {
		if n.Key == hash && match(n.Data) {
			data := ilist.RemoveExisting(&head, n, t.id())
			t.bucket.Set(idx, head)
			t.count--
			t.shrinkStep()
			return data, true
		}
	}
	var zero T
	return zero, false
}

// RemoveExisting detaches n, which the caller guarantees is currently
// a member of this table, and returns its data.
func (t *Table[T]) RemoveExisting(n *ilist.Node[T]) T {
	idx := t.position(n.Key)
	head := t.bucket.Get(idx)
	data := ilist.RemoveExisting(&head, n, t.id())
	t.bucket.Set(idx, head)
	t.count--
	t.shrinkStep()
	return data
}

// Bucket returns the head of the collision chain currently holding
// hash, for manual traversal; it is nil if the bucket is empty. It is
// stable across inserts/removes of unrelated keys because segarray
// never moves a previously allocated segment.
func (t *Table[T]) Bucket(hash uint32) *ilist.Node[T] {
	return t.bucket.Get(t.position(hash))
}

// Foreach calls fn once for every element currently stored.
func (t *Table[T]) Foreach(fn func(T)) {
	n := t.bucket.Len()
	for i := uint32(0); i < n; i++ {
		ilist.Foreach(t.bucket.Get(i), fn)
	}
}

// ForeachArg is Foreach with a caller-supplied context value.
func (t *Table[T]) ForeachArg(arg any, fn func(arg any, data T)) {
	n := t.bucket.Len()
	for i := uint32(0); i < n; i++ {
		ilist.ForeachArg(t.bucket.Get(i), arg, fn)
	}
}

// Count returns the number of elements currently stored.
func (t *Table[T]) Count() uint32 {
	return t.count
}

// MemoryUsage returns the bytes held by the bucket vector.
func (t *Table[T]) MemoryUsage() uintptr {
	return t.bucket.MemoryUsage()
}

// Done releases the bucket vector. The table must be empty.
func (t *Table[T]) Done() {
	if t.count != 0 {
		panic("linhash: Done called on a non-empty table")
	}
	t.bucket.Done()
}

// growStep runs after every Insert. It enters a GROW once the load
// factor crosses 1/2 (or reverses an in-flight SHRINK in place: the
// two transitions share lowMask/lowMax/split and the same routing
// predicate, only walking split in opposite directions), then migrates
// buckets until split+lowMax catches back up to 2*count. That target
// re-establishes, on every operation, the pacing that makes the
// transition finish exactly when count reaches the point where the
// next one could first be triggered.
func (t *Table[T]) growStep() {
	if t.state != growing && t.count > t.max/2 {
		if t.state == stable {
			t.lowMask = t.mask
			t.lowMax = t.max
			t.bit++
			t.max *= 2
			t.mask = t.max - 1
			t.bucket.Grow(t.max)
			t.split = 0
		}
		t.state = growing
	}
	if t.state != growing {
		return
	}
	target := 2 * t.count
	for t.split+t.lowMax < target {
		t.splitOneBucket()
		if t.split == t.lowMax {
			t.state = stable
			break
		}
	}
}

// shrinkStep is growStep's dual, run after every Remove and
// RemoveExisting: it enters a SHRINK once the load factor drops below
// 1/8 (or reverses an in-flight GROW), then merges buckets until
// split+lowMax drops back to 8*count. Only on completion does the
// table's logical size, and the bucket vector's top segment, actually
// shrink; every not-yet-merged bucket is still addressed under the
// larger mask until then.
func (t *Table[T]) shrinkStep() {
	if t.state != shrinking && t.bit > initBit && t.count < t.max/8 {
		if t.state == stable {
			t.lowMax = t.max / 2
			t.lowMask = t.mask / 2
			t.split = t.lowMax
		}
		t.state = shrinking
	}
	if t.state != shrinking {
		return
	}
	target := 8 * t.count
	for t.split+t.lowMax > target {
		t.mergeOneBucket()
		if t.split == 0 {
			t.state = stable
			t.bit--
			t.max = t.lowMax
			t.mask = t.lowMask
			t.bucket.Shrink()
			break
		}
	}
}

// splitOneBucket splits the old bucket at index split into the two new
// buckets it fans out to (split and split+lowMax), by the bit that
// distinguishes them, preserving each new chain's relative order.
func (t *Table[T]) splitOneBucket() {
	idx := t.split
	owner := t.id()
	oldHead := t.bucket.Get(idx)
	var loHead, hiHead *ilist.Node[T]
	for oldHead != nil {
		n := oldHead
		data := ilist.RemoveExisting(&oldHead, n, owner)
		if n.Key&t.lowMax == 0 {
			ilist.InsertTail(&loHead, n, data, owner)
		} else {
			ilist.InsertTail(&hiHead, n, data, owner)
		}
	}
	t.bucket.Set(idx, loHead)
	t.bucket.Set(idx+t.lowMax, hiHead)
	t.split++
}

// mergeOneBucket concatenates the pair of buckets (split-1,
// split-1+lowMax) into the single smaller-layout bucket they both map
// to, decrementing split.
func (t *Table[T]) mergeOneBucket() {
	t.split--
	idx := t.split
	owner := t.id()
	lo := t.bucket.Get(idx)
	hi := t.bucket.Get(idx + t.lowMax)
	ilist.Concat(&lo, &hi, owner)
	t.bucket.Set(idx, lo)
	t.bucket.Set(idx+t.lowMax, nil)
}
