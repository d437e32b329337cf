package resource

import (
	"io"

	"github.com/gowim/wim/bitio"
	"github.com/gowim/wim/codec"
	"github.com/gowim/wim/werror"
)

// Write consumes src in ChunkSize chunks, compresses each with c (falling
// back to storing it verbatim when compression does not shrink it, the
// complement of the reader's verbatim rule), and writes the chunk table
// followed by the chunks to w starting at the stream's current position.
// It returns the Entry describing the byte run just written.
//
// Because the chunk table must be written before the chunks it
// describes, and the table's entry width depends on the total original
// size, the whole resource is buffered in memory (as a list of
// already-compressed-or-verbatim chunk byte slices) before anything is
// written to w; this mirrors the way the teacher's squashfs writer
// defers its superblock to the very end of Flush once final sizes are
// known, just with the deferred piece moved earlier in this format.
func Write(src io.Reader, codecID codec.ID, c codec.Codec, w io.WriteSeeker) (Entry, error) {
	startOff, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return Entry{}, werror.Wrap(werror.Write, "resource write: seeking start", err)
	}

	type chunk struct {
		data []byte
	}
	var chunks []chunk
	var originalSize uint64
	anyCompressed := false

	buf := make([]byte, ChunkSize)
	for {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			raw := make([]byte, n)
			copy(raw, buf[:n])
			originalSize += uint64(n)

			stored := raw
			if c != nil {
				compData, cerr := c.Compress(raw)
				if cerr != nil {
					return Entry{}, werror.Wrap(werror.Write, "resource write: compressing chunk", cerr)
				}
				if len(compData) < len(raw) {
					stored = compData
					anyCompressed = true
				}
			}
			chunks = append(chunks, chunk{data: stored})
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return Entry{}, werror.Wrap(werror.Read, "resource write: reading source", readErr)
		}
	}
	if len(chunks) == 0 {
		chunks = append(chunks, chunk{data: nil})
	}

	entryWidth := ChunkTableEntryWidth(originalSize)
	numTableEntries := len(chunks) - 1
	if numTableEntries < 0 {
		numTableEntries = 0
	}

	if anyCompressed {
		table := make([]byte, numTableEntries*entryWidth)
		var off uint64
		for i := 0; i < numTableEntries; i++ {
			off += uint64(len(chunks[i].data))
			entryBuf := table[i*entryWidth : (i+1)*entryWidth]
			if entryWidth == 4 {
				bitio.PutUint32(entryBuf, uint32(off))
			} else {
				bitio.PutUint64(entryBuf, off)
			}
		}
		if len(table) > 0 {
			if _, err := w.Write(table); err != nil {
				return Entry{}, werror.Wrap(werror.Write, "resource write: writing chunk table", err)
			}
		}
	}

	var written int64
	for _, ck := range chunks {
		if len(ck.data) == 0 {
			continue
		}
		n, err := w.Write(ck.data)
		if err != nil {
			return Entry{}, werror.Wrap(werror.Write, "resource write: writing chunk", err)
		}
		written += int64(n)
	}

	size := written
	if anyCompressed {
		size += int64(numTableEntries) * int64(entryWidth)
	}

	entry := Entry{
		Size:         uint64(size),
		Offset:       uint64(startOff),
		OriginalSize: originalSize,
	}
	if anyCompressed {
		entry.Flags |= FlagCompressed
	}
	_ = codecID // carried for callers that need it alongside the entry (e.g. blob descriptors); the entry itself does not store a codec id
	return entry, nil
}
