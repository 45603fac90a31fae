// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package blockpool

import "unsafe"

func sizeOf[T any](v T) uintptr {
	return unsafe.Sizeof(v)
}
