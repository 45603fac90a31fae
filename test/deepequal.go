// Copyright (c) 2014 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package test

import (
	"reflect"
	"unsafe"
)

// comparable types have an equality-testing method.
type comparable interface {
	// Equal returns true if this object is equal to the other one.
	Equal(other interface{}) bool
}

// edge records a pair of addresses currently being compared, so that
// comparisons over cyclic structures terminate instead of recursing
// forever.
type edge struct {
	from uintptr
	to   uintptr
}

// DeepEqual reports whether a and b are equal under the same rules
// Diff uses to explain a difference:
//   - Data types can define their own comparison by implementing the
//     comparable interface.
//   - Struct fields tagged `deepequal:"ignore"` are skipped.
//   - Keys in maps may be pointers or interfaces, compared by what
//     they reference rather than by identity.
//   - Cycles in references are detected.
//
// Sharing one implementation with Diff guarantees the two can never
// disagree about whether a difference exists.
func DeepEqual(a, b interface{}) bool {
	return len(diffImpl(a, b, nil)) == 0
}

// complexKeyMapEqual compares two maps whose keys are pointers or
// interfaces, where key identity is structural rather than ==. Keys
// from a are matched against b in O(N^2); the callers have already
// checked that the sizes agree. On mismatch it returns the offending
// key from a and, when that key was matched but the values differed,
// b's value.
func complexKeyMapEqual(a, b reflect.Value,
	seen map[edge]struct{}) (bool, reflect.Value, reflect.Value) {
	for _, ka := range a.MapKeys() {
		var be reflect.Value
		for _, kb := range b.MapKeys() {
			if len(diffImpl(ka.Interface(), kb.Interface(), seen)) == 0 {
				be = b.MapIndex(kb)
				break
			}
		}
		if !be.IsValid() {
			return false, ka, reflect.Value{}
		}
		if len(diffImpl(a.MapIndex(ka).Interface(), be.Interface(), seen)) != 0 {
			return false, ka, be
		}
	}
	return true, reflect.Value{}, reflect.Value{}
}

var flagOffset = func() uintptr {
	f, ok := reflect.TypeOf(reflect.Value{}).FieldByName("flag")
	if !ok {
		panic("reflect.Value has no flag field")
	}
	return f.Offset
}()

// forceExport returns a Value identical to v but readable even if v
// was obtained through an unexported struct field, by clearing the
// read-only bits of the Value's flag word. Test-only: this reaches
// into reflect's internals.
func forceExport(v reflect.Value) reflect.Value {
	const flagRO uintptr = 1<<5 | 1<<6 // flagStickyRO | flagEmbedRO
	flag := (*uintptr)(unsafe.Pointer(uintptr(unsafe.Pointer(&v)) + flagOffset))
	*flag &^= flagRO
	return v
}
