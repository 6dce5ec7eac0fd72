// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package graphalloc

import (
	"unsafe"
)

// Free unconditionally tears the object down, regardless of any parent
// references it still has, and returns its destructor's status (0 if no
// destructor was installed).
//
// Finalization cascades depth-first: after this object's destructor runs,
// each child left with no remaining parent is torn down in turn, in the
// insertion order of the children list. Severing this object's own parent
// references first is what makes a reference cycle through it collectable.
func (h *Heap) Free(p Pointer) int {
	if p == 0 {
		panic("graphalloc: Free of null handle")
	}
	return h.teardown(contextOf(p))
}

// Discard tears the object down only if it has no parent references;
// otherwise it does nothing and returns 0. On teardown it returns the
// destructor's status like Free.
func (h *Heap) Discard(p Pointer) int {
	if p == 0 {
		panic("graphalloc: Discard of null handle")
	}

	ctx := contextOf(p)
	if !ctx.parents.Empty() {
		return 0
	}
	return h.teardown(ctx)
}

// DiscardLocal discards the object held in a local handle variable, if any.
// It exists for the pattern of a locally allocated root released on scope
// exit unless a callee took a parent reference during the scope:
//
//	local := heap.Alloc(0, size)
//	defer heap.DiscardLocal(&local)
func (h *Heap) DiscardLocal(p *Pointer) {
	if p != nil && *p != 0 {
		h.Discard(*p)
	}
}

// teardown disposes of ctx: sever inbound references, run the destructor,
// sever outbound references cascading into orphaned children, release the
// block. Returns the destructor's status.
func (h *Heap) teardown(ctx *context) int {
	addr := contextAddr(ctx)
	if _, mid := h.dying[addr]; mid {
		panic("graphalloc: disposal of an object whose teardown is in progress")
	}
	h.dying[addr] = struct{}{}

	// Sever all inbound references first, without recursing - parents are
	// not owned by this object. This guarantees the destructor sees an
	// unrooted object, and breaks any reference cycle running through it.
	// Pop-front iteration stays correct however the lists are mutated
	// under us.
	for {
		n := ctx.parents.First()
		if n == nil {
			break
		}
		h.dropReference(refFromChildNode(n))
	}

	// The destructor sees the children list still intact and may detach
	// or dispose of other objects, but not this one.
	status := 0
	if d, ok := h.destructors[addr]; ok {
		delete(h.destructors, addr)
		status = d(handleOf(ctx))
	}

	// Sever outbound references, recursing into each child orphaned by
	// the loss of its edge. Until the loop reaches a given child this
	// object still holds an edge to it, so a sibling's destructor cannot
	// free it out from under us.
	for {
		n := ctx.children.First()
		if n == nil {
			break
		}
		r := refFromParentNode(n)
		child := (*context)(unsafe.Pointer(r.child))
		h.dropReference(r)
		if child.parents.Empty() {
			h.teardown(child)
		}
	}

	delete(h.dying, addr)
	h.hooks.Free(addr)
	return status
}
