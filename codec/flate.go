package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"golang.org/x/xerrors"
)

// Flate is a concrete Codec backed by github.com/klauspost/compress/flate.
// It exists to exercise the resource reader/writer's chunk round-trip and
// partial-read paths against a real compressor; it is not an
// implementation of the out-of-scope LZX/XPRESS algorithms. Registry
// accepts it under any ID, theirs included.
type Flate struct {
	level int
}

// NewFlate returns a Flate codec at the given compression level, per the
// level constants in compress/flate.
func NewFlate(level int) *Flate {
	return &Flate{level: level}
}

// Decompress implements Codec.
func (f *Flate) Decompress(dst, src []byte) error {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()

	n, err := io.ReadFull(r, dst)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return xerrors.Errorf("flate decompress: %w", err)
	}
	if n != len(dst) {
		return xerrors.Errorf("flate decompress: got %d bytes, want %d", n, len(dst))
	}
	return nil
}

// Compress implements Codec.
func (f *Flate) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, f.level)
	if err != nil {
		return nil, xerrors.Errorf("flate compress: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, xerrors.Errorf("flate compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, xerrors.Errorf("flate compress: %w", err)
	}
	return buf.Bytes(), nil
}
