// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.

// Package fuzzutil turns a fuzzer-supplied byte string into a sequence of
// test steps. The fuzz target decodes each step from a ByteConsumer, so the
// fuzzer's corpus mutations translate directly into different operation
// sequences.
package fuzzutil

import (
	"encoding/binary"
)

type ByteConsumer struct {
	bytes []byte
}

func NewByteConsumer(bytes []byte) *ByteConsumer {
	return &ByteConsumer{
		bytes: bytes,
	}
}

func (c *ByteConsumer) Len() int {
	return len(c.bytes)
}

// Bytes consumes size bytes. If fewer remain the result is zero-padded and
// the consumer is drained, so a truncated input still decodes into steps.
func (c *ByteConsumer) Bytes(size int) []byte {
	consumed := make([]byte, size)
	copy(consumed, c.bytes)

	if len(c.bytes) <= size {
		c.bytes = c.bytes[:0]
	} else {
		c.bytes = c.bytes[size:]
	}
	return consumed
}

func (c *ByteConsumer) Byte() byte {
	return c.Bytes(1)[0]
}

func (c *ByteConsumer) Uint16() uint16 {
	return binary.LittleEndian.Uint16(c.Bytes(2))
}

func (c *ByteConsumer) Uint32() uint32 {
	return binary.LittleEndian.Uint32(c.Bytes(4))
}
