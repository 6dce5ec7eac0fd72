// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package graphalloc

import (
	"github.com/fmstephe/graphalloc/graphalloc/internal/blockstore"
)

// Hooks is the table of allocator functions a Heap routes all heap traffic
// through: the malloc/realloc/free triple plus the usable-size query backing
// Heap.Size. Addresses passed through the hooks are raw block addresses, not
// payload Pointers.
//
// Malloc returns 0 when memory is exhausted. Realloc returns 0 on failure
// and must leave the original block untouched; it may return the original
// address when the block can be resized in place.
type Hooks struct {
	Malloc     func(size uintptr) uintptr
	Realloc    func(block uintptr, size uintptr) uintptr
	Free       func(block uintptr)
	UsableSize func(block uintptr) uintptr
}

func storeHooks(store *blockstore.Store) Hooks {
	return Hooks{
		Malloc:     store.Malloc,
		Realloc:    store.Realloc,
		Free:       store.Free,
		UsableSize: store.UsableSize,
	}
}

// Hooks returns the heap's current hook table, typically so a test can wrap
// it in a fault-injecting variant before calling SetHooks.
func (h *Heap) Hooks() Hooks {
	return h.hooks
}

// SetHooks replaces the heap's hook table and returns the previous one. All
// four entries must be set. While the heap has live allocations a new table
// must route to the same underlying allocator as the old one - a block
// handed out by one backend cannot be released through another. Wrapping the
// current table to inject failures is always safe.
func (h *Heap) SetHooks(hooks Hooks) Hooks {
	if hooks.Malloc == nil || hooks.Realloc == nil || hooks.Free == nil || hooks.UsableSize == nil {
		panic("graphalloc: SetHooks with incomplete hook table")
	}

	previous := h.hooks
	h.hooks = hooks
	return previous
}
