// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package graphalloc

import (
	"fmt"
	"reflect"
	"unsafe"
)

// AllocObject allocates an object whose payload holds a value of type T and
// returns both its Pointer and the typed payload pointer. The payload is
// zeroed. T must not contain Go pointers in any field; the payload is
// invisible to the garbage collector, so a pointer stored there would not
// keep its target alive. AllocObject panics, naming the offending fields, if
// it does.
//
// Returns the null Pointer and a nil *T if the malloc hook reports memory
// exhaustion.
func AllocObject[T any](h *Heap, parent Pointer) (Pointer, *T) {
	if err := containsNoPointers[T](); err != nil {
		panic(fmt.Errorf("graphalloc: cannot allocate %s: %w", reflect.TypeFor[T](), err))
	}

	var zero T
	p := h.Alloc(parent, unsafe.Sizeof(zero))
	if p == 0 {
		return 0, nil
	}

	obj := Value[T](p)
	*obj = zero
	return p, obj
}

// Value reinterprets a handle as a typed payload pointer. The payload must
// have been allocated to hold a T, normally via AllocObject.
func Value[T any](p Pointer) *T {
	return (*T)(unsafe.Pointer(uintptr(p)))
}
