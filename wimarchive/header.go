// Package wimarchive is the root package: the container's on-disk header
// and resource-entry layout (Component K), and the Archive handle that
// ties the resource engine, blob table, image catalog, and XML manifest
// together for export/delete/add orchestration (Component J).
//
// The header shape is grounded on the teacher's squashfs.superblock (a
// fixed-size record read and written with binary.Read/binary.Write
// against known field offsets, re-seeked-to once real values are known)
// generalized from one embedded superblock to a header plus four
// embedded resource entries, and on icza-mpq's header/hash-table/
// block-table triad for the general "fixed header, offset-addressed
// tables" shape.
package wimarchive

import (
	"log"

	"github.com/gowim/wim/bitio"
	"github.com/gowim/wim/codec"
	"github.com/gowim/wim/resource"
	"github.com/gowim/wim/werror"
)

// magic identifies this container format at offset 0.
var magic = [8]byte{'G', 'O', 'W', 'I', 'M', 'A', 'R', 'C'}

// HeaderSize is the fixed on-disk size of Header.
const HeaderSize = 8 + 4 + 4 + 4 + 16 + 2 + 2 + 4 + 4 + 4 + 4*resource.EntrySize

// HeaderFlag bits live in Header.Flags.
type HeaderFlag uint32

const (
	// HeaderFlagCompressed means at least one resource in this archive
	// may be stored compressed, under Header.CodecID.
	HeaderFlagCompressed HeaderFlag = 1 << 0
	// HeaderFlagSpanned means the archive continues into additional
	// parts (Header.TotalParts > 1).
	HeaderFlagSpanned HeaderFlag = 1 << 1
)

// Header is the fixed-size record at offset 0 of every archive part:
// magic, version, flags, chunk size, a GUID tying an archive's parts
// together, this part's number and the total part count, the image
// count, the boot index, the codec id, and four embedded resource entries locating
// the blob table, the XML manifest, an optional integrity table, and
// the boot image's metadata resource (a shortcut so the bootable
// image's tree can be loaded without a full blob-table scan).
type Header struct {
	Version    uint32
	Flags      HeaderFlag
	ChunkSize  uint32
	GUID       [16]byte
	PartNumber uint16
	TotalParts uint16
	ImageCount uint32
	BootIndex  uint32
	CodecID    codec.ID

	BlobTable      resource.Entry
	XML            resource.Entry
	IntegrityTable resource.Entry
	BootMetadata   resource.Entry
}

// DecodeHeader parses a HeaderSize-byte on-disk header from b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, werror.Errorf(werror.InvalidResource, "header: need %d bytes, got %d", HeaderSize, len(b))
	}
	if [8]byte(b[0:8]) != magic {
		return Header{}, werror.New(werror.InvalidResource, "header: bad magic")
	}

	var h Header
	off := 8
	h.Version = bitio.Uint32(b[off : off+4])
	off += 4
	h.Flags = HeaderFlag(bitio.Uint32(b[off : off+4]))
	off += 4
	h.ChunkSize = bitio.Uint32(b[off : off+4])
	off += 4
	copy(h.GUID[:], b[off:off+16])
	off += 16
	h.PartNumber = bitio.Uint16(b[off : off+2])
	off += 2
	h.TotalParts = bitio.Uint16(b[off : off+2])
	off += 2
	h.ImageCount = bitio.Uint32(b[off : off+4])
	off += 4
	h.BootIndex = bitio.Uint32(b[off : off+4])
	off += 4
	h.CodecID = codec.ID(bitio.Uint32(b[off : off+4]))
	off += 4

	entries := []*resource.Entry{&h.BlobTable, &h.XML, &h.IntegrityTable, &h.BootMetadata}
	for _, e := range entries {
		decoded, err := resource.DecodeEntry(b[off : off+resource.EntrySize])
		if err != nil {
			return Header{}, err
		}
		*e = decoded
		off += resource.EntrySize
	}
	return h, nil
}

// Encode writes h's on-disk form into b, which must be at least
// HeaderSize bytes long.
func (h Header) Encode(b []byte) {
	_ = b[HeaderSize-1]
	copy(b[0:8], magic[:])
	off := 8
	bitio.PutUint32(b[off:off+4], h.Version)
	off += 4
	bitio.PutUint32(b[off:off+4], uint32(h.Flags))
	off += 4
	bitio.PutUint32(b[off:off+4], h.ChunkSize)
	off += 4
	copy(b[off:off+16], h.GUID[:])
	off += 16
	bitio.PutUint16(b[off:off+2], h.PartNumber)
	off += 2
	bitio.PutUint16(b[off:off+2], h.TotalParts)
	off += 2
	bitio.PutUint32(b[off:off+4], h.ImageCount)
	off += 4
	bitio.PutUint32(b[off:off+4], h.BootIndex)
	off += 4
	bitio.PutUint32(b[off:off+4], uint32(h.CodecID))
	off += 4

	for _, e := range []resource.Entry{h.BlobTable, h.XML, h.IntegrityTable, h.BootMetadata} {
		e.Encode(b[off : off+resource.EntrySize])
		off += resource.EntrySize
	}
}

// Bytes returns h's HeaderSize-byte on-disk encoding.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	h.Encode(b)
	return b
}

// warnIfStale logs a diagnostic when two views of the same fact disagree
// (such as the header's ImageCount and the live catalog count), matching
// resource.DecodeEntry's own warn-rather-than-fail treatment of
// inconsistent on-disk state. Nothing in this package calls it; Save
// overwrites the header fields from live state without comparing.
func warnIfStale(what string, header, live int) {
	if header != live {
		log.Printf("wimarchive: header %s (%d) does not match live state (%d), will be rewritten", what, header, live)
	}
}
