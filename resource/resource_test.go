package resource_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/gowim/wim/codec"
	"github.com/gowim/wim/resource"
	"github.com/orcaman/writerseeker"
)

func writeAndRead(t *testing.T, src []byte, c codec.Codec) (resource.Entry, *bytes.Reader) {
	t.Helper()
	var ws writerseeker.WriterSeeker
	entry, err := resource.Write(bytes.NewReader(src), codec.ID(99), c, &ws)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return entry, ws.BytesReader()
}

func TestRoundTripUncompressed(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte{0xAB}, resource.ChunkSize*3+17)
	entry, r := writeAndRead(t, src, nil)

	rd := resource.NewReader(r, entry, nil)
	got := make([]byte, len(src))
	if err := rd.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("round-tripped content mismatch")
	}
}

func TestRoundTripCompressedPartialRead(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 4000)
	c := codec.NewFlate(6)
	entry, r := writeAndRead(t, src, c)
	if entry.Flags&resource.FlagCompressed == 0 {
		t.Fatal("expected FlagCompressed to be set for compressible content")
	}

	rd := resource.NewReader(r, entry, c)

	// Whole-resource read.
	full := make([]byte, len(src))
	if err := rd.ReadAt(full, 0); err != nil {
		t.Fatalf("ReadAt(full): %v", err)
	}
	if !bytes.Equal(full, src) {
		t.Fatal("full read mismatch")
	}

	// Partial read spanning a chunk boundary.
	start := int64(resource.ChunkSize - 50)
	n := 200
	partial := make([]byte, n)
	if err := rd.ReadAt(partial, start); err != nil {
		t.Fatalf("ReadAt(partial): %v", err)
	}
	if !bytes.Equal(partial, src[start:int(start)+n]) {
		t.Fatal("partial cross-boundary read mismatch")
	}

	// Read confined entirely to the final (possibly verbatim) chunk.
	lastChunkStart := (len(src) / resource.ChunkSize) * resource.ChunkSize
	tail := src[lastChunkStart:]
	got := make([]byte, len(tail))
	if err := rd.ReadAt(got, int64(lastChunkStart)); err != nil {
		t.Fatalf("ReadAt(tail): %v", err)
	}
	if !bytes.Equal(got, tail) {
		t.Fatal("tail read mismatch")
	}
}

func TestVerbatimChunkBypassesCodec(t *testing.T) {
	t.Parallel()

	// Random-looking data that flate will not shrink; every chunk should
	// fall back to verbatim storage, so FlagCompressed stays clear even
	// though a codec was supplied.
	src := []byte{0x00, 0x01, 0x02, 0x03}
	for i := 1; i < 4; i++ {
		src = append(src, src[i-1]^0x5A)
	}
	c := codec.NewFlate(9)
	entry, r := writeAndRead(t, src, c)

	rd := resource.NewReader(r, entry, c)
	got := make([]byte, len(src))
	if err := rd.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("verbatim-bypass round trip mismatch")
	}
}

func TestEmptyResource(t *testing.T) {
	t.Parallel()

	entry, r := writeAndRead(t, nil, codec.NewFlate(6))
	if entry.OriginalSize != 0 {
		t.Fatalf("OriginalSize = %d, want 0", entry.OriginalSize)
	}
	rd := resource.NewReader(r, entry, nil)
	if err := rd.ReadAt(nil, 0); err != nil {
		t.Fatalf("ReadAt of empty resource: %v", err)
	}
}

// shortReadOnceReaderAt returns one byte fewer than requested on the
// first multi-byte call at each offset, then serves the remainder when it
// is requested from where the short read stopped, mimicking a file shrunk
// concurrently by another process mid-read.
type shortReadOnceReaderAt struct {
	r     io.ReaderAt
	short map[int64]bool
}

func (s *shortReadOnceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if !s.short[off] && len(p) > 1 {
		s.short[off] = true
		n, err := s.r.ReadAt(p[:len(p)-1], off)
		if err != nil {
			return n, err
		}
		return n, io.ErrUnexpectedEOF
	}
	return s.r.ReadAt(p, off)
}

func TestVerbatimReadRetriesShortReadOnce(t *testing.T) {
	t.Parallel()

	src := bytes.Repeat([]byte{0x42}, 4096)
	entry, r := writeAndRead(t, src, nil)

	flaky := &shortReadOnceReaderAt{r: r, short: make(map[int64]bool)}
	rd := resource.NewReader(flaky, entry, nil)
	got := make([]byte, len(src))
	if err := rd.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("content mismatch after retried short read")
	}
}

func TestEntryEncodeDecodeMasksReservedBits(t *testing.T) {
	t.Parallel()

	e := resource.Entry{
		Size:         0x00FF_FFFF_FFFF_FF, // 0xFFFF_FFFF_FFFF, fits the 56-bit size field
		Flags:        resource.FlagCompressed,
		Offset:       0xC000_0000_0000_0001,
		OriginalSize: 0xC000_0000_0000_0002,
	}
	b := e.Bytes()
	got, err := resource.DecodeEntry(b)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if got.Offset != 1 {
		t.Errorf("Offset = %#x, want 1 (reserved bits masked)", got.Offset)
	}
	if got.OriginalSize != 2 {
		t.Errorf("OriginalSize = %#x, want 2 (reserved bits masked)", got.OriginalSize)
	}
	if got.Flags != resource.FlagCompressed {
		t.Errorf("Flags = %v, want %v", got.Flags, resource.FlagCompressed)
	}
}
