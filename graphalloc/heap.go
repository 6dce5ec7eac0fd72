// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package graphalloc

import (
	"github.com/fmstephe/graphalloc/graphalloc/internal/blockstore"
)

// Heap is a hierarchical allocator instance. All object and reference blocks
// are obtained through its hook table, which defaults to the heap's own
// blockstore.
//
// A Heap is not safe for concurrent use. Destructors run on the calling
// goroutine, synchronously, before the disposal call that triggered them
// returns.
type Heap struct {
	hooks Hooks
	store *blockstore.Store

	// Destructors cannot live inside the object blocks themselves: a Go
	// func value stored in memory the garbage collector never scans would
	// not keep its closure alive. They are kept here, keyed by context
	// address, and rehomed when a realloc moves the block.
	destructors map[uintptr]Destructor

	// Contexts currently mid-teardown, so that a destructor disposing of
	// its own object can be caught rather than corrupting the heap.
	dying map[uintptr]struct{}
}

// New returns a Heap backed by a default-sized blockstore.
func New() *Heap {
	return NewSized(0)
}

// NewSized returns a Heap whose backing blockstore uses slabs of at least
// slabSize bytes. A slabSize of zero or less selects the default. Small
// slabs keep allocation-heavy tests cheap; most users want New.
func NewSized(slabSize int) *Heap {
	var store *blockstore.Store
	if slabSize > 0 {
		store = blockstore.NewSized(slabSize)
	} else {
		store = blockstore.New()
	}

	return &Heap{
		hooks:       storeHooks(store),
		store:       store,
		destructors: map[uintptr]Destructor{},
		dying:       map[uintptr]struct{}{},
	}
}

// Stats reports the backing blockstore's allocation accounting. Useful in
// tests for asserting that a teardown released every block.
func (h *Heap) Stats() blockstore.Stats {
	return h.store.Stats()
}

// Destroy releases every memory mapping held by the backing blockstore back
// to the operating system. The Heap, and every Pointer it ever returned, is
// unusable afterwards. Tests create many Heaps and would otherwise
// accumulate mapped address space.
func (h *Heap) Destroy() error {
	return h.store.Destroy()
}
