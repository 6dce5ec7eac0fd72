// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package graphalloc

import (
	"unsafe"

	"github.com/fmstephe/graphalloc/graphalloc/internal/intrusive"
)

// reference is one directed edge parent -> child. It is a heap block of its
// own, independent of either endpoint's block so that a realloc of an
// endpoint never moves it. It is linked into the child's parents list through
// childNode and into the parent's children list through parentNode, and so is
// reachable from both ends.
type reference struct {
	childNode  intrusive.Node
	parentNode intrusive.Node

	// Context addresses of the two endpoints. Immutable for the life of
	// the edge, except that a realloc which moves an endpoint block
	// rewrites them to the new address.
	parent uintptr
	child  uintptr
}

const referenceSize = unsafe.Sizeof(reference{})

const (
	childNodeOffset  = unsafe.Offsetof(reference{}.childNode)
	parentNodeOffset = unsafe.Offsetof(reference{}.parentNode)
)

func refFromChildNode(n *intrusive.Node) *reference {
	return (*reference)(unsafe.Add(unsafe.Pointer(n), -int(childNodeOffset)))
}

func refFromParentNode(n *intrusive.Node) *reference {
	return (*reference)(unsafe.Add(unsafe.Pointer(n), -int(parentNodeOffset)))
}

// addReference installs a new edge at the tail of both endpoint lists.
// Running out of memory here is unrecoverable: there is no way to report
// failure to a Ref caller, so we abort.
func (h *Heap) addReference(parent, child *context) {
	block := h.hooks.Malloc(referenceSize)
	if block == 0 {
		panic("graphalloc: reference allocation failed")
	}

	r := (*reference)(unsafe.Pointer(block))
	r.parent = contextAddr(parent)
	r.child = contextAddr(child)
	child.parents.Append(&r.childNode)
	parent.children.Append(&r.parentNode)
}

// dropReference removes the edge from both endpoint lists and releases it.
func (h *Heap) dropReference(r *reference) {
	r.childNode.Unlink()
	r.parentNode.Unlink()
	h.hooks.Free(uintptr(unsafe.Pointer(r)))
}

// findParentRef returns the first edge from parent to ctx in insertion
// order, or nil. Duplicate edges are legal; each call matches one.
func findParentRef(ctx *context, parent uintptr) *reference {
	for n := ctx.parents.First(); n != nil; n = ctx.parents.Next(n) {
		r := refFromChildNode(n)
		if r.parent == parent {
			return r
		}
	}
	return nil
}

// Ref adds a parent reference from parent to p. References accumulate: two
// Ref calls with the same arguments create two distinct edges, each of which
// must be removed individually.
func (h *Heap) Ref(p, parent Pointer) {
	if p == 0 || parent == 0 {
		panic("graphalloc: Ref with null handle")
	}
	h.addReference(contextOf(parent), contextOf(p))
}

// Unref removes one reference from parent to p. If that was p's last parent
// reference the object is torn down; any destructor status is discarded.
// Unref of a reference that does not exist is a fatal programmer error.
func (h *Heap) Unref(p, parent Pointer) {
	if p == 0 || parent == 0 {
		panic("graphalloc: Unref with null handle")
	}

	ctx := contextOf(p)
	r := findParentRef(ctx, contextAddr(contextOf(parent)))
	if r == nil {
		panic("graphalloc: Unref of a reference that does not exist")
	}

	h.dropReference(r)
	if ctx.parents.Empty() {
		h.teardown(ctx)
	}
}

// HasParent reports whether p has any parent reference at all (parent null)
// or whether a reference from the given parent exists.
func (h *Heap) HasParent(p, parent Pointer) bool {
	if p == 0 {
		panic("graphalloc: HasParent with null handle")
	}

	ctx := contextOf(p)
	if parent == 0 {
		return !ctx.parents.Empty()
	}
	return findParentRef(ctx, contextAddr(contextOf(parent))) != nil
}
