// Package resource implements the chunked, seekable compression layer:
// reading an arbitrary byte range out of a compressed resource without
// decompressing chunks outside the requested window, and writing a byte
// stream out as a chunk table followed by chunks.
//
// The on-disk shape mirrors the teacher's squashfs superblock/metadata
// block framing (a fixed-size record, binary.Read field by field,
// fields re-seeked-to once the real values are known) generalized to
// WIM's packed 56-bit size field and explicit chunk offset table.
package resource

import (
	"log"

	"github.com/gowim/wim/bitio"
	"github.com/gowim/wim/werror"
)

// ChunkSize is the fixed chunk size used by every compressed resource,
// except that the final chunk is the remainder.
const ChunkSize = 32768

// EntrySize is the on-disk size in bytes of an Entry.
const EntrySize = 24

// Flag bits live in byte 7 of the on-disk entry.
type Flag uint8

const (
	// FlagCompressed is set iff the resource's chunks were compressed
	// (some chunks may still be individually verbatim).
	FlagCompressed Flag = 1 << 0
	// FlagMetadata marks a resource holding a per-image directory tree
	// rather than file content.
	FlagMetadata Flag = 1 << 1
	// FlagFree marks an entry describing unused space rather than live
	// content; it is never dereferenced.
	FlagFree Flag = 1 << 2
	// FlagSpanned marks a resource continued in another archive part.
	FlagSpanned Flag = 1 << 3
)

// Entry is the 24-byte on-disk record describing one byte run: a 56-bit
// size (low 7 bytes), an 8-bit flag byte, a 64-bit offset, and a 64-bit
// original (uncompressed) size. The top 2 bits of Offset and
// OriginalSize are reserved and are masked out on Decode with a warning
// rather than treated as a fatal error, matching existing archives in
// the field that set them inadvertently.
type Entry struct {
	Size         uint64 // compressed size on disk, including any chunk table
	Flags        Flag
	Offset       uint64
	OriginalSize uint64
}

const reservedBitsMask = uint64(1)<<62 | uint64(1)<<63

// DecodeEntry parses a 24-byte on-disk resource entry from b.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < EntrySize {
		return Entry{}, werror.Errorf(werror.InvalidResource, "resource entry: need %d bytes, got %d", EntrySize, len(b))
	}
	e := Entry{
		Size:  bitio.Uint56(b[0:7]),
		Flags: Flag(b[7]),
	}
	offset := bitio.Uint64(b[8:16])
	originalSize := bitio.Uint64(b[16:24])
	if offset&reservedBitsMask != 0 {
		log.Printf("resource entry: offset %#x has reserved high bits set, masking", offset)
		offset &^= reservedBitsMask
	}
	if originalSize&reservedBitsMask != 0 {
		log.Printf("resource entry: original_size %#x has reserved high bits set, masking", originalSize)
		originalSize &^= reservedBitsMask
	}
	e.Offset = offset
	e.OriginalSize = originalSize
	return e, nil
}

// Encode writes e's 24-byte on-disk form into b, which must be at least
// EntrySize bytes long.
func (e Entry) Encode(b []byte) {
	_ = b[23]
	bitio.PutUint56(b[0:7], e.Size)
	b[7] = byte(e.Flags)
	bitio.PutUint64(b[8:16], e.Offset)
	bitio.PutUint64(b[16:24], e.OriginalSize)
}

// Bytes returns e's 24-byte on-disk encoding.
func (e Entry) Bytes() []byte {
	b := make([]byte, EntrySize)
	e.Encode(b)
	return b
}

// ChunkTableEntryWidth returns the width in bytes of one chunk table
// entry for a resource of the given original size: 4 bytes if it fits
// under 2^32, else 8.
func ChunkTableEntryWidth(originalSize uint64) int {
	if originalSize < 1<<32 {
		return 4
	}
	return 8
}

// TotalChunks returns ceil(originalSize / ChunkSize), the number of
// chunks a resource of this size is split into (at least 1, even for a
// zero-length resource, matching the writer's "always emit one chunk,
// possibly empty" behavior).
func TotalChunks(originalSize uint64) int {
	if originalSize == 0 {
		return 1
	}
	return int((originalSize + ChunkSize - 1) / ChunkSize)
}

// ChunkTableSize returns the on-disk size in bytes of the chunk table
// for a resource of the given original size.
func ChunkTableSize(originalSize uint64) int64 {
	n := TotalChunks(originalSize) - 1
	if n <= 0 {
		return 0
	}
	return int64(n) * int64(ChunkTableEntryWidth(originalSize))
}
