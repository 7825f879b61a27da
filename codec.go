// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rpf6

import (
	"encoding/binary"
	"math"
)

// Big-endian field helpers for the fixed-width container layout.
// encoding/binary covers the 16- and 32-bit words; the 3-byte page
// index and IEEE-754 floats need the explicit forms below. Callers
// size buffers; helpers rely on slice bounds only.

// getUint16 reads a big-endian 16-bit word at off.
func getUint16(b []byte, off int) uint16 {
	return binary.BigEndian.Uint16(b[off : off+2])
}

// putUint16 writes a big-endian 16-bit word at off.
func putUint16(b []byte, off int, v uint16) {
	binary.BigEndian.PutUint16(b[off:off+2], v)
}

// getUint32 reads a big-endian 32-bit word at off.
func getUint32(b []byte, off int) uint32 {
	return binary.BigEndian.Uint32(b[off : off+4])
}

// putUint32 writes a big-endian 32-bit word at off.
func putUint32(b []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(b[off:off+4], v)
}

// getUint24 reads a big-endian 3-byte word at off.
func getUint24(b []byte, off int) uint32 {
	return uint32(b[off])<<16 | uint32(b[off+1])<<8 | uint32(b[off+2])
}

// putUint24 writes the low 3 bytes of v big-endian at off.
func putUint24(b []byte, off int, v uint32) {
	b[off] = byte(v >> 16)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v)
}

// getFloat32 reads a big-endian IEEE-754 float at off.
func getFloat32(b []byte, off int) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b[off : off+4]))
}

// putFloat32 writes v as a big-endian IEEE-754 float at off.
func putFloat32(b []byte, off int, v float32) {
	binary.BigEndian.PutUint32(b[off:off+4], math.Float32bits(v))
}

// alignUp rounds n up to the next multiple of the payload page size.
func alignUp(n int64) int64 {
	rem := n % pageSize
	if rem == 0 {
		return n
	}
	return n + pageSize - rem
}
