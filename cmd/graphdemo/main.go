// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package main

import (
	"flag"
	"fmt"

	"github.com/fmstephe/graphalloc/graphalloc"
)

var (
	depthFlag  = flag.Int("depth", 4, "Depth of the demo ownership tree")
	fanoutFlag = flag.Int("fanout", 4, "Children per node in the demo ownership tree")
	cycleFlag  = flag.Bool("cycle", false, "Add a reference cycle between the root and a leaf")
)

func main() {
	flag.Parse()

	heap := graphalloc.New()

	finalized := 0
	countingDestructor := func(graphalloc.Pointer) int {
		finalized++
		return 0
	}

	root := heap.Alloc(0, 64)
	heap.SetDestructor(root, countingDestructor)

	allocated := 1
	var lastLeaf graphalloc.Pointer
	var grow func(parent graphalloc.Pointer, depth int)
	grow = func(parent graphalloc.Pointer, depth int) {
		if depth == 0 {
			lastLeaf = parent
			return
		}
		for i := 0; i < *fanoutFlag; i++ {
			node := heap.Alloc(parent, 64)
			heap.SetDestructor(node, countingDestructor)
			allocated++
			grow(node, depth-1)
		}
	}
	grow(root, *depthFlag)

	if *cycleFlag && lastLeaf != 0 {
		// The leaf now holds a reference back up to the root
		heap.Ref(root, lastLeaf)
		fmt.Printf("Added cycle from a leaf back to the root\n")
	}

	fmt.Printf("Allocated %d objects in a depth-%d tree\n", allocated, *depthFlag)

	stats := heap.Stats()
	fmt.Printf("Before free: %d live blocks across %d slabs\n", stats.Live, stats.Slabs)

	heap.Free(root)

	stats = heap.Stats()
	fmt.Printf("After free:  %d live blocks, %d objects finalized\n", stats.Live, finalized)

	if err := heap.Destroy(); err != nil {
		fmt.Printf("Error destroying heap: %s\n", err)
	}
}
