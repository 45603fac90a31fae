// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package segarray

// Blocked is a segmented array with uniform segment sizes instead of
// Array's geometric doubling. It suits callers who already know
// roughly how large the array will get: memory overhead per segment
// boundary is a constant fraction of blockSize rather than growing
// with the array, at the cost of more segments for very large arrays.
type Blocked[T any] struct {
	blockSize uint32
	blocks    []segment[T]
}

// NewBlocked creates a Blocked array whose segments each hold
// blockSize elements.
func NewBlocked[T any](blockSize uint32) *Blocked[T] {
	if blockSize == 0 {
		blockSize = 1 << arrayBit
	}
	return &Blocked[T]{blockSize: blockSize}
}

// Grow ensures the array's logical length is at least n.
func (b *Blocked[T]) Grow(n uint32) {
	for uint32(len(b.blocks))*b.blockSize < n {
		b.blocks = append(b.blocks, make(segment[T], b.blockSize))
	}
}

// Get returns the element at index i.
func (b *Blocked[T]) Get(i uint32) T {
	return b.blocks[i/b.blockSize][i%b.blockSize]
}

// Set stores v at index i, growing the array first if necessary.
func (b *Blocked[T]) Set(i uint32, v T) {
	if i >= uint32(len(b.blocks))*b.blockSize {
		b.Grow(i + 1)
	}
	b.blocks[i/b.blockSize][i%b.blockSize] = v
}

// Len returns the array's current logical capacity.
func (b *Blocked[T]) Len() uint32 {
	return uint32(len(b.blocks)) * b.blockSize
}

// Done releases every segment.
func (b *Blocked[T]) Done() {
	b.blocks = nil
}

// MemoryUsage returns the total bytes held across all segments.
func (b *Blocked[T]) MemoryUsage() uintptr {
	var zero T
	return uintptr(len(b.blocks)) * uintptr(b.blockSize) * sizeOf(zero)
}
