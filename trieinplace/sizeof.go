// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package trieinplace

import "unsafe"

func sizeOf[T any]() uintptr {
	var n Node[T]
	return unsafe.Sizeof(n)
}
