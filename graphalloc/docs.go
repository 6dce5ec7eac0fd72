// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.

// # Usage
//
// The graphalloc package is a hierarchical allocator. Every allocation is a
// node in a directed graph of parent/child references: an object stays alive
// for as long as at least one parent reference points at it, and when the
// last reference is dropped the object is finalized and its own outgoing
// references are released, cascading to any children orphaned by that.
//
// Allocations are made from a Heap and identified by a Pointer, the address
// of the object's payload bytes.
//
//	var heap *graphalloc.Heap = graphalloc.New()
//
//	root := heap.Alloc(0, 64)          // a root object, no parent
//	child := heap.Alloc(root, 64)      // owned by root
//
//	heap.Free(root)                    // finalizes root, then child
//
// Objects may have several parents (shared ownership) and may form reference
// cycles. An extra reference is added with Ref and removed with Unref; an
// object dies when its last parent reference is removed.
//
//	a := heap.Alloc(0, 8)
//	b := heap.Alloc(0, 8)
//	c := heap.Alloc(a, 8)
//	heap.Ref(c, b)                     // c now has parents a and b
//	heap.Unref(c, a)                   // c lives on, b still refers to it
//	heap.Free(b)                       // c is finalized with b
//
// A destructor may be installed on any object. It runs exactly once, just
// before the object's memory is released, and sees the object with no
// remaining parents and its child references still intact.
//
//	heap.SetDestructor(p, func(p graphalloc.Pointer) int {
//		// release external resources held by the object
//		return 0
//	})
//
// The payload memory lives outside the Go heap, in memory regions the
// garbage collector never scans. Pointerless Go structs can be allocated
// directly with AllocObject:
//
//	type Record struct {
//		Id    int64
//		Value float64
//	}
//
//	p, record := graphalloc.AllocObject[Record](heap, 0)
//	record.Id = 42
//
// Because the payload is invisible to the garbage collector, types placed in
// it must not contain Go pointers of any kind; AllocObject panics if they do.
//
// All heap traffic goes through a table of allocator hooks which can be
// swapped with Heap.SetHooks, primarily so tests can inject allocation
// failures. A Heap is single-threaded by contract; callers needing
// concurrency must serialize externally.
package graphalloc
