// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.

// Package blockstore is a raw block allocator over anonymous mmap'd memory.
// It provides the malloc/realloc/free/usable-size quartet the graph allocator
// routes its heap traffic through by default.
//
// Small requests are carved from slabs as power-of-two sized chunks and
// recycled through per-class free lists. Requests too large for a slab get a
// dedicated page-rounded mapping. Every chunk begins with an in-band header
// word recording its total size, so Free and UsableSize work from a bare
// block address the way their libc equivalents do.
//
// The store is deliberately not safe for concurrent use. Its one consumer is
// single-threaded by contract and the store inherits that contract rather
// than paying for locks nobody needs.
package blockstore

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/fmstephe/flib/fmath"
)

const (
	// Each chunk carries its total size in the word preceding the block
	// address handed to the caller.
	chunkHeaderSize = 8

	// The smallest chunk is the header word plus 8 usable bytes. A free
	// chunk's list link reuses the header word.
	minChunkSize = 16

	defaultSlabSize = 1 << 13
)

type Stats struct {
	Allocs   int
	Frees    int
	Reused   int
	Live     int
	Slabs    int
	Oversize int
}

// Store hands out raw memory blocks. The zero value is not usable; construct
// with New or NewSized.
type Store struct {
	slabSize uint64

	// classes[i] manages chunks of size 1<<i. Entries below the minimum
	// chunk size are nil.
	classes []*sizeClass

	// Dedicated mappings for blocks too large for any class, keyed by
	// block address, holding the mapped size.
	oversize map[uintptr]uint64

	allocs int
	frees  int
	reused int
}

type sizeClass struct {
	chunkSize uint64

	// Head of the free list of recycled chunks, zero when empty. The link
	// to the next free chunk is threaded through each chunk's header word.
	freeList uintptr

	// All slabs ever mapped for this class; the last one is carved from.
	slabs      []uintptr
	nextOffset uint64
}

// New returns a Store with the default slab size.
func New() *Store {
	return NewSized(defaultSlabSize)
}

// NewSized returns a Store whose slabs are at least slabSize bytes, rounded
// up to a power of two. Small slab sizes keep memory-hungry tests cheap;
// most users want New.
func NewSized(slabSize int) *Store {
	size := uint64(fmath.NxtPowerOfTwo(int64(slabSize)))
	if size < minChunkSize {
		size = minChunkSize
	}

	classes := make([]*sizeClass, log2(size)+1)
	for i := range classes {
		chunkSize := uint64(1) << i
		if chunkSize < minChunkSize {
			continue
		}
		classes[i] = &sizeClass{chunkSize: chunkSize}
	}

	return &Store{
		slabSize: size,
		classes:  classes,
		oversize: map[uintptr]uint64{},
	}
}

// Malloc returns the address of a block usable for at least size bytes. It
// never returns 0: a failure to map new memory panics. The block contents
// are not zeroed when the chunk is recycled.
func (s *Store) Malloc(size uintptr) uintptr {
	s.allocs++

	total := uint64(size) + chunkHeaderSize
	if total > s.slabSize {
		return s.mallocOversize(total)
	}

	class := s.classes[classIndex(total)]
	chunk, recycled := class.pop()
	if chunk == 0 {
		chunk = s.carve(class)
	}
	if recycled {
		s.reused++
	}

	writeHeader(chunk, class.chunkSize)
	return chunk + chunkHeaderSize
}

// Free returns the block to the store. The block must have come from this
// store's Malloc or Realloc and must not be used afterwards.
func (s *Store) Free(block uintptr) {
	s.frees++

	if mapped, ok := s.oversize[block]; ok {
		delete(s.oversize, block)
		if err := munmapRegion(block-chunkHeaderSize, mapped); err != nil {
			panic(fmt.Errorf("cannot release oversize block %d because %s", block, err))
		}
		return
	}

	chunk := block - chunkHeaderSize
	class := s.classes[classIndex(readHeader(chunk))]
	class.push(chunk)
}

// UsableSize reports how many bytes the block can hold, which may exceed the
// size originally requested.
func (s *Store) UsableSize(block uintptr) uintptr {
	return uintptr(readHeader(block-chunkHeaderSize)) - chunkHeaderSize
}

// Realloc resizes the block, moving it if the current chunk cannot hold size
// bytes. On a move the old contents are copied and the old block freed. A
// failure to map new memory panics inside Malloc before the original block
// is touched.
func (s *Store) Realloc(block uintptr, size uintptr) uintptr {
	usable := s.UsableSize(block)
	if size <= usable {
		return block
	}

	newBlock := s.Malloc(size)
	if newBlock == 0 {
		return 0
	}

	copy(pointerToBytes(newBlock, int(usable)), pointerToBytes(block, int(usable)))
	s.Free(block)
	return newBlock
}

// Stats reports allocation accounting for leak checks in tests.
func (s *Store) Stats() Stats {
	slabs := 0
	for _, class := range s.classes {
		if class != nil {
			slabs += len(class.slabs)
		}
	}

	return Stats{
		Allocs:   s.allocs,
		Frees:    s.frees,
		Reused:   s.reused,
		Live:     s.allocs - s.frees,
		Slabs:    slabs,
		Oversize: len(s.oversize),
	}
}

// Destroy releases every mapping back to the operating system. The Store,
// and every block it ever handed out, is unusable afterwards. Tests create
// many stores and would otherwise accumulate mapped address space.
func (s *Store) Destroy() error {
	for _, class := range s.classes {
		if class == nil {
			continue
		}
		for _, slab := range class.slabs {
			if err := munmapRegion(slab, s.slabSize); err != nil {
				// Unrecoverable - give up rather than trying to
				// limp on with half the mappings gone.
				return err
			}
		}
		class.slabs = nil
		class.freeList = 0
	}

	for block, mapped := range s.oversize {
		if err := munmapRegion(block-chunkHeaderSize, mapped); err != nil {
			return err
		}
	}
	s.oversize = map[uintptr]uint64{}

	return nil
}

func (s *Store) mallocOversize(total uint64) uintptr {
	pageSize := uint64(os.Getpagesize())
	mapped := ((total + pageSize - 1) / pageSize) * pageSize

	chunk := mmapRegion(mapped)
	writeHeader(chunk, mapped)

	block := chunk + chunkHeaderSize
	s.oversize[block] = mapped
	return block
}

func (s *Store) carve(class *sizeClass) uintptr {
	if len(class.slabs) == 0 || class.nextOffset+class.chunkSize > s.slabSize {
		class.slabs = append(class.slabs, mmapRegion(s.slabSize))
		class.nextOffset = 0
	}

	slab := class.slabs[len(class.slabs)-1]
	chunk := slab + uintptr(class.nextOffset)
	class.nextOffset += class.chunkSize
	return chunk
}

func (c *sizeClass) pop() (chunk uintptr, recycled bool) {
	if c.freeList == 0 {
		return 0, false
	}
	chunk = c.freeList
	c.freeList = *(*uintptr)(unsafe.Pointer(chunk))
	return chunk, true
}

func (c *sizeClass) push(chunk uintptr) {
	*(*uintptr)(unsafe.Pointer(chunk)) = c.freeList
	c.freeList = chunk
}

func writeHeader(chunk uintptr, size uint64) {
	*(*uint64)(unsafe.Pointer(chunk)) = size
}

func readHeader(chunk uintptr) uint64 {
	size := *(*uint64)(unsafe.Pointer(chunk))
	if size < minChunkSize || (size&(size-1)) != 0 && size%uint64(os.Getpagesize()) != 0 {
		panic(fmt.Errorf("corrupt chunk header %d at %d", size, chunk))
	}
	return size
}

func classIndex(total uint64) int {
	size := uint64(fmath.NxtPowerOfTwo(int64(total)))
	if size < minChunkSize {
		size = minChunkSize
	}
	return log2(size)
}

func log2(pow2 uint64) int {
	i := 0
	for pow2 > 1 {
		pow2 >>= 1
		i++
	}
	return i
}
