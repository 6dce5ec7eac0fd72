// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package graphalloc

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/fmstephe/graphalloc/testpkg/fuzzutil"
)

// The single fuzzer test for graphalloc. A byte string decodes into a
// sequence of graph operations which are applied both to a real Heap and to
// a plain-Go shadow graph. After each step the touched objects are compared
// against the shadow, and at the end of the run every surviving object is
// freed and the heap is checked for leaks.
func FuzzGraph(f *testing.F) {
	testCases := fuzzutil.MakeRandomTestCases()
	for _, tc := range testCases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, bytes []byte) {
		tr := NewGraphTestRun(t, bytes)
		tr.Run()
	})
}

func NewGraphTestRun(t *testing.T, bytes []byte) *fuzzutil.TestRun {
	graph := NewShadowedGraph(t)

	stepMaker := func(consumer *fuzzutil.ByteConsumer) fuzzutil.Step {
		chooser := consumer.Byte()
		switch chooser % 7 {
		case 0:
			return NewAllocStep(graph, consumer)
		case 1:
			return NewRefStep(graph, consumer)
		case 2:
			return NewUnrefStep(graph, consumer)
		case 3:
			return NewFreeStep(graph, consumer)
		case 4:
			return NewDiscardStep(graph, consumer)
		case 5:
			return NewReallocStep(graph, consumer)
		case 6:
			return NewMutateStep(graph, consumer)
		}
		panic("Unreachable")
	}

	cleanup := func() {
		graph.Cleanup()
	}

	return fuzzutil.NewTestRun(bytes, stepMaker, cleanup)
}

// ShadowedGraph drives a Heap alongside a garbage-collected model of the
// same reference graph, so every cascade the heap performs can be predicted
// and checked.
type ShadowedGraph struct {
	t    *testing.T
	heap *Heap

	objects []*shadowObject
	edges   []*shadowEdge

	// Actual destructor invocations per object, indexed by object id
	finalized []int
}

type shadowObject struct {
	ptr  Pointer
	live bool

	// Teardowns the shadow has predicted for this object
	expectedFinalized int

	// The payload prefix written so far; compared by hash
	expected []byte
	size     int
}

// shadowEdge mirrors one reference node. The slice order of edges matches
// the insertion order of every endpoint list, which is what makes the
// shadow's cascade order agree with the heap's.
type shadowEdge struct {
	parent, child int
	dead          bool
}

func NewShadowedGraph(t *testing.T) *ShadowedGraph {
	return &ShadowedGraph{
		t:    t,
		heap: NewSized(1 << 10),
	}
}

func (g *ShadowedGraph) liveIds() []int {
	ids := []int{}
	for id, o := range g.objects {
		if o.live {
			ids = append(ids, id)
		}
	}
	return ids
}

// pickLive normalizes a fuzzer-chosen index onto a live object id, or -1 if
// nothing is alive.
func (g *ShadowedGraph) pickLive(index uint16) int {
	ids := g.liveIds()
	if len(ids) == 0 {
		return -1
	}
	return ids[int(index)%len(ids)]
}

func (g *ShadowedGraph) hasLiveParents(id int) bool {
	for _, e := range g.edges {
		if !e.dead && e.child == id {
			return true
		}
	}
	return false
}

// teardown predicts the heap's cascade: kill inbound edges, count the
// finalization, then kill outbound edges in insertion order, recursing into
// each child that loses its last parent.
func (g *ShadowedGraph) teardown(id int) {
	o := g.objects[id]
	o.live = false
	o.expectedFinalized++

	for _, e := range g.edges {
		if !e.dead && e.child == id {
			e.dead = true
		}
	}

	for _, e := range g.edges {
		if !e.dead && e.parent == id {
			e.dead = true
			if !g.hasLiveParents(e.child) {
				g.teardown(e.child)
			}
		}
	}
}

func (g *ShadowedGraph) Alloc(parentIndex uint16, size uint16, fill byte) {
	parent := Pointer(0)
	if parentId := g.pickLive(parentIndex); parentId != -1 && fill%2 == 0 {
		parent = g.objects[parentId].ptr
		g.edges = append(g.edges, &shadowEdge{parent: parentId, child: len(g.objects)})
	}

	payloadSize := int(size % 512)
	ptr := g.heap.Alloc(parent, uintptr(payloadSize))
	if ptr == 0 {
		g.t.Fatalf("allocation of %d bytes failed", payloadSize)
	}

	id := len(g.objects)
	g.heap.SetDestructor(ptr, func(Pointer) int {
		g.finalized[id]++
		return 0
	})

	expected := make([]byte, payloadSize)
	for i := range expected {
		expected[i] = fill
	}
	copy(g.heap.Bytes(ptr), expected)

	g.objects = append(g.objects, &shadowObject{
		ptr:      ptr,
		live:     true,
		expected: expected,
		size:     payloadSize,
	})
	g.finalized = append(g.finalized, 0)

	g.checkObject(id)
}

func (g *ShadowedGraph) Ref(childIndex, parentIndex uint16) {
	childId := g.pickLive(childIndex)
	parentId := g.pickLive(parentIndex)
	if childId == -1 || parentId == -1 {
		return
	}

	g.heap.Ref(g.objects[childId].ptr, g.objects[parentId].ptr)
	g.edges = append(g.edges, &shadowEdge{parent: parentId, child: childId})

	g.checkObject(childId)
	g.checkObject(parentId)
}

func (g *ShadowedGraph) Unref(edgeIndex uint16) {
	liveEdges := []int{}
	for i, e := range g.edges {
		if !e.dead {
			liveEdges = append(liveEdges, i)
		}
	}
	if len(liveEdges) == 0 {
		return
	}

	chosen := g.edges[liveEdges[int(edgeIndex)%len(liveEdges)]]

	// The heap removes the first matching edge in the child's parents
	// list, which is the earliest surviving edge with this endpoint pair
	var first *shadowEdge
	for _, e := range g.edges {
		if !e.dead && e.parent == chosen.parent && e.child == chosen.child {
			first = e
			break
		}
	}

	g.heap.Unref(g.objects[chosen.child].ptr, g.objects[chosen.parent].ptr)

	first.dead = true
	if !g.hasLiveParents(first.child) {
		g.teardown(first.child)
	}

	g.checkAll()
}

func (g *ShadowedGraph) Free(index uint16) {
	id := g.pickLive(index)
	if id == -1 {
		return
	}

	g.heap.Free(g.objects[id].ptr)
	g.teardown(id)

	g.checkAll()
}

func (g *ShadowedGraph) Discard(index uint16) {
	id := g.pickLive(index)
	if id == -1 {
		return
	}

	g.heap.Discard(g.objects[id].ptr)
	if !g.hasLiveParents(id) {
		g.teardown(id)
	}

	g.checkAll()
}

func (g *ShadowedGraph) Realloc(index uint16, size uint16) {
	id := g.pickLive(index)
	if id == -1 {
		return
	}
	o := g.objects[id]

	newSize := int(size % 2048)
	ptr := g.heap.Realloc(o.ptr, 0, uintptr(newSize))
	if ptr == 0 {
		g.t.Fatalf("reallocation to %d bytes failed", newSize)
	}

	o.ptr = ptr
	o.size = newSize
	if newSize < len(o.expected) {
		o.expected = o.expected[:newSize]
	} else {
		// Bytes beyond the old payload are unspecified after a move;
		// zero them so the shadow stays exact
		data := g.heap.Bytes(ptr)
		for i := len(o.expected); i < newSize; i++ {
			data[i] = 0
			o.expected = append(o.expected, 0)
		}
	}

	g.checkAll()
}

func (g *ShadowedGraph) Mutate(index uint16, fill byte) {
	id := g.pickLive(index)
	if id == -1 {
		return
	}
	o := g.objects[id]
	if o.size == 0 {
		return
	}

	data := g.heap.Bytes(o.ptr)
	offset := int(fill) % o.size
	for i := offset; i < o.size; i++ {
		data[i] = fill
		o.expected[i] = fill
	}

	g.checkObject(id)
}

// checkObject compares one object against its shadow.
func (g *ShadowedGraph) checkObject(id int) {
	o := g.objects[id]
	if o.expectedFinalized != g.finalized[id] {
		g.t.Fatalf("object %d finalized %d times, expected %d", id, g.finalized[id], o.expectedFinalized)
	}
	if !o.live {
		return
	}

	if got, want := g.heap.HasParent(o.ptr, 0), g.hasLiveParents(id); got != want {
		g.t.Fatalf("object %d HasParent reported %v, shadow says %v", id, got, want)
	}
	if usable := g.heap.Size(o.ptr); usable < uintptr(o.size) {
		g.t.Fatalf("object %d usable size %d below requested %d", id, usable, o.size)
	}
	if len(o.expected) > 0 {
		actual := g.heap.Bytes(o.ptr)[:len(o.expected)]
		if xxhash.Sum64(o.expected) != xxhash.Sum64(actual) {
			g.t.Fatalf("object %d payload diverged from shadow", id)
		}
	}
}

// checkAll compares every object; used after steps which can cascade.
func (g *ShadowedGraph) checkAll() {
	for id := range g.objects {
		g.checkObject(id)
	}
}

// Cleanup frees every surviving object, verifies nothing leaked and
// releases the heap's mappings.
func (g *ShadowedGraph) Cleanup() {
	for id, o := range g.objects {
		if !o.live {
			continue
		}
		g.heap.Free(o.ptr)
		g.teardown(id)
	}
	g.checkAll()

	if live := g.heap.Stats().Live; live != 0 {
		g.t.Fatalf("%d blocks leaked", live)
	}
	g.heap.Destroy()
}

func NewAllocStep(graph *ShadowedGraph, consumer *fuzzutil.ByteConsumer) fuzzutil.Step {
	parentIndex := consumer.Uint16()
	size := consumer.Uint16()
	fill := consumer.Byte()
	return &allocStep{graph: graph, parentIndex: parentIndex, size: size, fill: fill}
}

type allocStep struct {
	graph       *ShadowedGraph
	parentIndex uint16
	size        uint16
	fill        byte
}

func (s *allocStep) DoStep() {
	s.graph.Alloc(s.parentIndex, s.size, s.fill)
}

func NewRefStep(graph *ShadowedGraph, consumer *fuzzutil.ByteConsumer) fuzzutil.Step {
	return &refStep{graph: graph, childIndex: consumer.Uint16(), parentIndex: consumer.Uint16()}
}

type refStep struct {
	graph                   *ShadowedGraph
	childIndex, parentIndex uint16
}

func (s *refStep) DoStep() {
	s.graph.Ref(s.childIndex, s.parentIndex)
}

func NewUnrefStep(graph *ShadowedGraph, consumer *fuzzutil.ByteConsumer) fuzzutil.Step {
	return &unrefStep{graph: graph, edgeIndex: consumer.Uint16()}
}

type unrefStep struct {
	graph     *ShadowedGraph
	edgeIndex uint16
}

func (s *unrefStep) DoStep() {
	s.graph.Unref(s.edgeIndex)
}

func NewFreeStep(graph *ShadowedGraph, consumer *fuzzutil.ByteConsumer) fuzzutil.Step {
	return &freeStep{graph: graph, index: consumer.Uint16()}
}

type freeStep struct {
	graph *ShadowedGraph
	index uint16
}

func (s *freeStep) DoStep() {
	s.graph.Free(s.index)
}

func NewDiscardStep(graph *ShadowedGraph, consumer *fuzzutil.ByteConsumer) fuzzutil.Step {
	return &discardStep{graph: graph, index: consumer.Uint16()}
}

type discardStep struct {
	graph *ShadowedGraph
	index uint16
}

func (s *discardStep) DoStep() {
	s.graph.Discard(s.index)
}

func NewReallocStep(graph *ShadowedGraph, consumer *fuzzutil.ByteConsumer) fuzzutil.Step {
	return &reallocStep{graph: graph, index: consumer.Uint16(), size: consumer.Uint16()}
}

type reallocStep struct {
	graph *ShadowedGraph
	index uint16
	size  uint16
}

func (s *reallocStep) DoStep() {
	s.graph.Realloc(s.index, s.size)
}

func NewMutateStep(graph *ShadowedGraph, consumer *fuzzutil.ByteConsumer) fuzzutil.Step {
	return &mutateStep{graph: graph, index: consumer.Uint16(), fill: consumer.Byte()}
}

type mutateStep struct {
	graph *ShadowedGraph
	index uint16
	fill  byte
}

func (s *mutateStep) DoStep() {
	s.graph.Mutate(s.index, s.fill)
}
