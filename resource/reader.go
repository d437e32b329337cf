package resource

import (
	"io"

	"github.com/gowim/wim/bitio"
	"github.com/gowim/wim/codec"
	"github.com/gowim/wim/werror"
)

// Reader performs random-access reads over one resource's byte run.
// A Reader is not safe for concurrent use; callers needing concurrent
// reads open one Reader per goroutine against the same underlying
// io.ReaderAt (matching the teacher's per-goroutine *os.File handles).
type Reader struct {
	r     io.ReaderAt
	entry Entry
	c     codec.Codec // nil iff entry.Flags has no FlagCompressed bit
}

// NewReader returns a Reader over entry's byte run in r. c may be nil
// when entry is not compressed.
func NewReader(r io.ReaderAt, entry Entry, c codec.Codec) *Reader {
	return &Reader{r: r, entry: entry, c: c}
}

// readAtFull calls r.ReadAt(buf, off) and retries exactly once, from
// where the short read left off, if the first attempt returns fewer
// bytes than requested without otherwise failing the whole read. This
// matches the retry the reference implementation performs for a file
// shrunk concurrently by another process mid-read.
func readAtFull(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil {
		return nil
	}
	rest := buf[n:]
	m, err2 := r.ReadAt(rest, off+int64(n))
	if m == len(rest) {
		return nil
	}
	if err2 != nil {
		return err2
	}
	return err
}

// ReadAt decompresses exactly len(dst) bytes starting at offset within
// the resource's uncompressed content into dst. It requires
// offset+len(dst) <= entry.OriginalSize.
func (rd *Reader) ReadAt(dst []byte, offset int64) error {
	if offset < 0 || uint64(offset)+uint64(len(dst)) > rd.entry.OriginalSize {
		return werror.Errorf(werror.InvalidParam, "resource read: offset %d len %d exceeds original size %d", offset, len(dst), rd.entry.OriginalSize)
	}
	if len(dst) == 0 {
		return nil
	}
	if rd.entry.Flags&FlagCompressed == 0 {
		if err := readAtFull(rd.r, dst, int64(rd.entry.Offset)+offset); err != nil {
			return werror.Wrap(werror.Read, "resource read: verbatim resource", err)
		}
		return nil
	}
	return rd.readCompressed(dst, offset)
}

func (rd *Reader) readCompressed(dst []byte, offset int64) error {
	originalSize := rd.entry.OriginalSize
	totalChunks := TotalChunks(originalSize)
	entryWidth := ChunkTableEntryWidth(originalSize)
	tableSize := ChunkTableSize(originalSize)
	// base is the file offset at which chunk data begins, i.e. just past
	// the chunk table; every chunk offset loaded from the table (or the
	// implicit 0 for chunk 0) is relative to base.
	base := int64(rd.entry.Offset) + tableSize

	startChunk := int(offset / ChunkSize)
	endChunk := int((offset + int64(len(dst)) - 1) / ChunkSize)

	loadOffset := func(chunk int) (uint64, error) {
		if chunk == 0 {
			return 0, nil
		}
		idx := chunk - 1
		buf := make([]byte, entryWidth)
		if err := readAtFull(rd.r, buf, int64(rd.entry.Offset)+int64(idx)*int64(entryWidth)); err != nil {
			return 0, werror.Wrap(werror.InvalidResource, "resource read: chunk table malformed", err)
		}
		if entryWidth == 4 {
			return uint64(bitio.Uint32(buf)), nil
		}
		return bitio.Uint64(buf), nil
	}

	chunkOff, err := loadOffset(startChunk)
	if err != nil {
		return err
	}

	written := 0
	for chunk := startChunk; chunk <= endChunk; chunk++ {
		var compSize uint64
		var nextOff uint64
		if chunk < totalChunks-1 {
			nextOff, err = loadOffset(chunk + 1)
			if err != nil {
				return err
			}
			compSize = nextOff - chunkOff
		} else {
			compSize = rd.entry.Size - uint64(tableSize) - chunkOff
		}

		uncompSize := ChunkSize
		if chunk == totalChunks-1 {
			if rem := int(originalSize % ChunkSize); rem != 0 {
				uncompSize = rem
			}
		}

		chunkStart := int64(chunk) * ChunkSize
		wantStart := maxInt64(offset, chunkStart) - chunkStart
		wantEnd := minInt64(offset+int64(len(dst)), chunkStart+int64(uncompSize)) - chunkStart

		raw := make([]byte, compSize)
		if compSize > 0 {
			if err := readAtFull(rd.r, raw, base+int64(chunkOff)); err != nil {
				return werror.Wrap(werror.Read, "resource read: reading chunk body", err)
			}
		}
		chunkOff = nextOff

		if compSize == uint64(uncompSize) {
			copy(dst[written:], raw[wantStart:wantEnd])
			written += int(wantEnd - wantStart)
			continue
		}

		if rd.c == nil {
			return werror.New(werror.Decompression, "resource read: compressed chunk but no codec configured")
		}

		if wantStart == 0 && wantEnd == int64(uncompSize) {
			sub := dst[written : written+uncompSize]
			if err := rd.c.Decompress(sub, raw); err != nil {
				return werror.Wrap(werror.Decompression, "resource read: decompressing chunk", err)
			}
			written += uncompSize
		} else {
			scratch := make([]byte, uncompSize)
			if err := rd.c.Decompress(scratch, raw); err != nil {
				return werror.Wrap(werror.Decompression, "resource read: decompressing partial chunk", err)
			}
			copy(dst[written:], scratch[wantStart:wantEnd])
			written += int(wantEnd - wantStart)
		}
	}
	return nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
