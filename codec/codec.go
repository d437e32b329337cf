// Package codec defines the pluggable chunk-compressor abstraction used
// by the resource engine. A codec only ever decompresses (and, for the
// one concrete codec registered here, compresses) a single chunk of
// bounded size; it never sees chunk framing, offsets, or hashes.
//
// The two compression methods a real archive may declare, LZX and
// XPRESS, are treated as out-of-scope opaque algorithms: this package
// defines their numeric IDs so resource entries and container headers
// can carry them, but registers no decoder body for either, the same
// way icza-mpq dispatches on a block's compression flag without
// re-implementing PKWare implosion itself.
package codec

import "golang.org/x/xerrors"

// ID identifies a chunk compression method, as stored in a container
// header's compression-type field.
type ID uint32

const (
	// None means chunks are never compressed; every chunk is verbatim.
	None ID = 0
	// LZX is the out-of-scope LZX algorithm. No Codec is registered for it.
	LZX ID = 1
	// XPRESS is the out-of-scope XPRESS algorithm. No Codec is registered for it.
	XPRESS ID = 2
)

func (id ID) String() string {
	switch id {
	case None:
		return "none"
	case LZX:
		return "LZX"
	case XPRESS:
		return "XPRESS"
	default:
		return "unknown"
	}
}

// Codec compresses and decompresses individual chunks. dst must be
// exactly the expected decompressed length on entry to Decompress; it is
// a fatal caller error, not a returned error, to pass a short buffer,
// matching resource.Reader.ReadAt's pattern of sizing scratch buffers up front
// from the chunk table before ever calling into a codec.
type Codec interface {
	// Decompress decompresses src into dst, which must have exactly the
	// expected uncompressed length.
	Decompress(dst, src []byte) error

	// Compress compresses src into a freshly allocated buffer. Callers
	// compare len(result) against len(src) themselves and fall back to
	// storing the chunk verbatim when compression does not shrink it.
	Compress(src []byte) ([]byte, error)
}

// ErrCodecUnregistered is returned by Registry.Lookup when no Codec has
// been registered for an ID, including the intentionally-unimplemented
// LZX and XPRESS out-of-scope algorithms.
var ErrCodecUnregistered = xerrors.New("codec: no implementation registered for this compression id")

// Registry maps compression IDs to Codec implementations. The zero
// Registry is empty and ready to use.
type Registry struct {
	codecs map[ID]Codec
}

// Register installs codec under id, replacing any previous registration.
func (r *Registry) Register(id ID, c Codec) {
	if r.codecs == nil {
		r.codecs = make(map[ID]Codec)
	}
	r.codecs[id] = c
}

// Lookup returns the Codec registered for id, or ErrCodecUnregistered.
func (r *Registry) Lookup(id ID) (Codec, error) {
	c, ok := r.codecs[id]
	if !ok {
		return nil, xerrors.Errorf("codec id %s: %w", id, ErrCodecUnregistered)
	}
	return c, nil
}
