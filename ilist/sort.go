// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package ilist

// Sort reorders the list rooted at head using a bottom-up, iterative
// merge sort and returns the new head. It is stable: two nodes a, b
// with cmp(a.Data, b.Data) == 0 keep their relative order from the
// input. O(n log n) time, O(1) extra space beyond the recursion-free
// merge bookkeeping.
//
// The algorithm sorts on the next-pointer chain alone, then rebuilds
// prev pointers and the head's circular-to-tail link in one final
// pass, since merging only needs forward traversal.
func Sort[T any](head *Node[T], cmp func(a, b T) int) *Node[T] {
	if head == nil || head.next == nil {
		return head
	}
	head.prev = nil // drop the circular link while we sort on next only

	for size := 1; ; size *= 2 {
		p := head
		var newHead, lastTail *Node[T]
		merges := 0
		for p != nil {
			merges++
			left := p
			right := splitAfter(left, size)
			p = splitAfter(right, size)
			mergedHead, mergedTail := merge(left, right, cmp)
			if newHead == nil {
				newHead = mergedHead
			} else {
				lastTail.next = mergedHead
			}
			lastTail = mergedTail
		}
		head = newHead
		if merges <= 1 {
			break
		}
	}

	fixupPrev(head)
	return head
}

// splitAfter walks n nodes forward from node, cuts the chain there,
// and returns what followed the cut (nil if the chain was shorter).
func splitAfter[T any](node *Node[T], n int) *Node[T] {
	for i := 1; node != nil && i < n; i++ {
		node = node.next
	}
	if node == nil {
		return nil
	}
	rest := node.next
	node.next = nil
	return rest
}

// merge stably merges two next-linked chains and returns the new
// head and tail. Equal elements from a are placed before those from
// b, which is what makes the overall sort stable.
func merge[T any](a, b *Node[T], cmp func(x, y T) int) (head, tail *Node[T]) {
	var dummy Node[T]
	cur := &dummy
	for a != nil && b != nil {
		if cmp(a.Data, b.Data) <= 0 {
			cur.next = a
			a = a.next
		} else {
			cur.next = b
			b = b.next
		}
		cur = cur.next
	}
	if a != nil {
		cur.next = a
	} else {
		cur.next = b
	}
	for cur.next != nil {
		cur = cur.next
	}
	return dummy.next, cur
}

func fixupPrev[T any](head *Node[T]) {
	if head == nil {
		return
	}
	prev := head
	cur := head.next
	for cur != nil {
		cur.prev = prev
		prev = cur
		cur = cur.next
	}
	head.prev = prev
}
