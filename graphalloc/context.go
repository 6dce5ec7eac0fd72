// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package graphalloc

import (
	"unsafe"

	"github.com/fmstephe/graphalloc/graphalloc/internal/intrusive"
)

// Pointer is the public identity of an allocated object: the address of its
// payload bytes. The zero Pointer is null. Pointers from one Heap must never
// be passed to another.
type Pointer uintptr

// context is the per-object header. It sits at the front of the object's
// heap block, immediately before the payload the caller sees.
type context struct {
	// Edges in which this object is the child. The object is a root, and
	// eligible for Discard, while this list is empty.
	parents intrusive.List

	// Edges in which this object is the parent.
	children intrusive.List
}

// The payload follows the header at this fixed offset within the block.
const contextSize = unsafe.Sizeof(context{})

func contextOf(p Pointer) *context {
	return (*context)(unsafe.Pointer(uintptr(p) - contextSize))
}

func contextAddr(ctx *context) uintptr {
	return uintptr(unsafe.Pointer(ctx))
}

func handleOf(ctx *context) Pointer {
	return Pointer(contextAddr(ctx) + contextSize)
}
