// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package blockstore

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func mmapRegion(size uint64) uintptr {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		panic(fmt.Errorf("cannot allocate %d bytes via mmap because %s", size, err))
	}
	return uintptr(unsafe.Pointer(&data[0]))
}

func munmapRegion(addr uintptr, size uint64) error {
	return unix.Munmap(pointerToBytes(addr, int(size)))
}

func pointerToBytes(ptr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
}
