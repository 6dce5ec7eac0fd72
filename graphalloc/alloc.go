// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package graphalloc

import (
	"unsafe"
)

// Alloc allocates an object with a payload of at least size bytes and
// returns its Pointer. If parent is non-null a reference edge from parent to
// the new object is installed; otherwise the object is a root. A zero size
// is legal and yields an otherwise ordinary object.
//
// Returns the null Pointer if the malloc hook reports memory exhaustion, in
// which case no edge was created and no state changed.
func (h *Heap) Alloc(parent Pointer, size uintptr) Pointer {
	block := h.hooks.Malloc(contextSize + size)
	if block == 0 {
		return 0
	}

	ctx := (*context)(unsafe.Pointer(block))
	ctx.parents.Init()
	ctx.children.Init()

	if parent != 0 {
		h.addReference(contextOf(parent), ctx)
	}
	return handleOf(ctx)
}

// Realloc resizes the object's payload to at least size bytes, possibly
// moving the block, and returns the object's Pointer (which changes when the
// block moves). Payload contents up to the smaller of the old and new sizes,
// the object's references in both directions, their list positions and the
// installed destructor are all preserved. A null p behaves as Alloc; for a
// non-null p the parent argument is ignored.
//
// Returns the null Pointer if the realloc hook reports memory exhaustion, in
// which case the object is fully intact at its original address.
func (h *Heap) Realloc(p Pointer, parent Pointer, size uintptr) Pointer {
	if p == 0 {
		return h.Alloc(parent, size)
	}

	oldCtx := contextOf(p)
	oldAddr := contextAddr(oldCtx)

	// Snapshot the front of each edge list before the block moves. The
	// edge nodes themselves never move; only the two list heads inside
	// this block do.
	firstParent := oldCtx.parents.First()
	firstChild := oldCtx.children.First()

	block := h.hooks.Realloc(oldAddr, contextSize+size)
	if block == 0 {
		return 0
	}

	// Restore both rings around the heads at their new address. An empty
	// list cannot be repaired from its copied pointers (they address the
	// old block) and is reinitialized instead.
	ctx := (*context)(unsafe.Pointer(block))
	if firstParent == nil {
		ctx.parents.Init()
	} else {
		ctx.parents.Reattach(firstParent)
	}
	if firstChild == nil {
		ctx.children.Init()
	} else {
		ctx.children.Reattach(firstChild)
	}

	// Every edge holds the context address of its endpoints; point them
	// at the new block. A no-move realloc rewrites the same values.
	for n := ctx.parents.First(); n != nil; n = ctx.parents.Next(n) {
		refFromChildNode(n).child = block
	}
	for n := ctx.children.First(); n != nil; n = ctx.children.Next(n) {
		refFromParentNode(n).parent = block
	}

	if block != oldAddr {
		if d, ok := h.destructors[oldAddr]; ok {
			delete(h.destructors, oldAddr)
			h.destructors[block] = d
		}
	}

	return handleOf(ctx)
}

// Size reports the usable payload capacity of the object, which may exceed
// the size originally requested.
func (h *Heap) Size(p Pointer) uintptr {
	if p == 0 {
		panic("graphalloc: Size of null handle")
	}
	return h.hooks.UsableSize(contextAddr(contextOf(p))) - contextSize
}

// Bytes returns the object's payload as a byte slice covering its full
// usable capacity. The slice aliases the payload directly.
func (h *Heap) Bytes(p Pointer) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(p))), h.Size(p))
}
