// Package bitio implements the unaligned, endian-fixed integer load/store
// primitives the container format's header, resource-entry, and
// chunk-table parsers use. It has no sequential reader of its own.
//
// WIM structures are little-endian throughout and include a packed 56-bit
// field (the resource entry's size), which encoding/binary has no built-in
// accessor for; everything here reads fields one at a time rather than via
// reflection over a whole struct, the same way icza-mpq and distri's
// squashfs reader decode their on-disk structures.
package bitio

import "encoding/binary"

// Uint56 reads the low 56 bits of a little-endian value from b[:7].
func Uint56(b []byte) uint64 {
	_ = b[6]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48
}

// PutUint56 writes the low 56 bits of v as little-endian into b[:7].
// The high 8 bits of v are ignored.
func PutUint56(b []byte, v uint64) {
	_ = b[6]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
}

// Uint16 reads a little-endian uint16 from b[:2].
func Uint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

// PutUint16 writes v as little-endian into b[:2].
func PutUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }

// Uint32 reads a little-endian uint32 from b[:4].
func Uint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// PutUint32 writes v as little-endian into b[:4].
func PutUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// Uint64 reads a little-endian uint64 from b[:8].
func Uint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// PutUint64 writes v as little-endian into b[:8].
func PutUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
