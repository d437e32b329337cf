package wimarchive

import (
	"bytes"
	"time"

	"github.com/gowim/wim/bitio"
	"github.com/gowim/wim/ingest"
	"github.com/gowim/wim/werror"
	"github.com/gowim/wim/wimhash"
)

// encodeMetadata serializes an image's directory tree into the byte form
// that encodeImageMetadata places in its metadata resource; the security
// descriptor table is not part of it.
// The shape is a hand-rolled recursive binary record, the same
// discipline the teacher's squashfs writer uses for its directory
// entries (fixed-width fields written in a known order, length-prefixed
// variable-width ones) rather than a general-purpose encoding like gob,
// since the fields here are a closed, stable set.
func encodeMetadata(root *ingest.Node) []byte {
	var buf bytes.Buffer

	putUint32 := func(v uint32) {
		var b [4]byte
		bitio.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	putUint16 := func(v uint16) {
		var b [2]byte
		bitio.PutUint16(b[:], v)
		buf.Write(b[:])
	}
	putInt64 := func(v int64) { putUint32(uint32(v)); putUint32(uint32(v >> 32)) }
	putString := func(s string) {
		putUint16(uint16(len(s)))
		buf.WriteString(s)
	}

	var encodeNode func(n *ingest.Node)
	encodeNode = func(n *ingest.Node) {
		putString(n.Name)
		putUint32(uint32(n.Attr))
		putInt64(n.CreationTime.UnixNano())
		putInt64(n.LastWriteTime.UnixNano())
		putInt64(n.LastAccessTime.UnixNano())
		putInt64(int64(n.SecurityID))
		putString(n.ShortName)

		if n.Reparse != nil {
			buf.WriteByte(1)
			putUint32(n.Reparse.Tag)
			putUint16(n.Reparse.Reserved)
		} else {
			buf.WriteByte(0)
		}

		putUint16(uint16(len(n.Streams)))
		for _, s := range n.Streams {
			putString(s.Name)
			buf.Write(s.Hash[:])
		}

		putUint32(uint32(len(n.Children)))
		for _, c := range n.Children {
			encodeNode(c)
		}
	}
	encodeNode(root)

	return buf.Bytes()
}

// decodeMetadata is the inverse of encodeMetadata.
func decodeMetadata(data []byte) (root *ingest.Node, err error) {
	r := &byteReader{data: data}

	var decodeNode func() (*ingest.Node, error)
	decodeNode = func() (*ingest.Node, error) {
		name, err := r.string()
		if err != nil {
			return nil, err
		}
		attr, err := r.uint32()
		if err != nil {
			return nil, err
		}
		creation, err := r.int64()
		if err != nil {
			return nil, err
		}
		lastWrite, err := r.int64()
		if err != nil {
			return nil, err
		}
		lastAccess, err := r.int64()
		if err != nil {
			return nil, err
		}
		secID, err := r.int64()
		if err != nil {
			return nil, err
		}
		shortName, err := r.string()
		if err != nil {
			return nil, err
		}

		n := &ingest.Node{
			Name:           name,
			Attr:           ingest.Attr(attr),
			CreationTime:   time.Unix(0, creation),
			LastWriteTime:  time.Unix(0, lastWrite),
			LastAccessTime: time.Unix(0, lastAccess),
			SecurityID:     int32(secID),
			ShortName:      shortName,
		}

		hasReparse, err := r.byte_()
		if err != nil {
			return nil, err
		}
		if hasReparse == 1 {
			tag, err := r.uint32()
			if err != nil {
				return nil, err
			}
			reserved, err := r.uint16()
			if err != nil {
				return nil, err
			}
			n.Reparse = &ingest.ReparseData{Tag: tag, Reserved: reserved}
		}

		streamCount, err := r.uint16()
		if err != nil {
			return nil, err
		}
		for i := uint16(0); i < streamCount; i++ {
			sname, err := r.string()
			if err != nil {
				return nil, err
			}
			hb, err := r.bytes(wimhash.Size)
			if err != nil {
				return nil, err
			}
			var hash wimhash.Hash
			copy(hash[:], hb)
			n.Streams = append(n.Streams, ingest.Stream{Name: sname, Hash: hash})
		}

		childCount, err := r.uint32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < childCount; i++ {
			child, err := decodeNode()
			if err != nil {
				return nil, err
			}
			n.AddChild(child)
		}
		return n, nil
	}

	root, err = decodeNode()
	if err != nil {
		return nil, err
	}
	return root, nil
}

// encodeImageMetadata packs one image's directory tree and its already-
// encoded security descriptor table blob (catalog.Image.SecurityTable,
// itself produced by encodeSecurityTable) into the single byte blob
// stored in the image's metadata resource: a 4-byte tree length, the
// tree, then the security table blob verbatim. The two are logically
// distinct fields on catalog.Image, but the container format has no
// separate per-image resource slot for security descriptors, so they
// travel together on disk.
func encodeImageMetadata(root *ingest.Node, securityTableBlob []byte) []byte {
	tree := encodeMetadata(root)

	var buf bytes.Buffer
	var b4 [4]byte
	bitio.PutUint32(b4[:], uint32(len(tree)))
	buf.Write(b4[:])
	buf.Write(tree)
	buf.Write(securityTableBlob)
	return buf.Bytes()
}

// decodeImageMetadata is the inverse of encodeImageMetadata.
func decodeImageMetadata(data []byte) (root *ingest.Node, securityTableBlob []byte, err error) {
	r := &byteReader{data: data}
	treeLen, err := r.uint32()
	if err != nil {
		return nil, nil, err
	}
	treeBytes, err := r.bytes(int(treeLen))
	if err != nil {
		return nil, nil, err
	}
	root, err = decodeMetadata(treeBytes)
	if err != nil {
		return nil, nil, err
	}
	return root, data[r.pos:], nil
}

// encodeSecurityTable serializes a per-image security descriptor table
// (deduplicated raw descriptor byte slices, indexed by Node.SecurityID)
// into the opaque blob form stored in catalog.Image.SecurityTable.
func encodeSecurityTable(table [][]byte) []byte {
	var buf bytes.Buffer
	var b4 [4]byte
	bitio.PutUint32(b4[:], uint32(len(table)))
	buf.Write(b4[:])
	for _, sd := range table {
		bitio.PutUint32(b4[:], uint32(len(sd)))
		buf.Write(b4[:])
		buf.Write(sd)
	}
	return buf.Bytes()
}

// decodeSecurityTable is the inverse of encodeSecurityTable.
func decodeSecurityTable(data []byte) ([][]byte, error) {
	r := &byteReader{data: data}
	count, err := r.uint32()
	if err != nil {
		return nil, err
	}
	table := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		n, err := r.uint32()
		if err != nil {
			return nil, err
		}
		sd, err := r.bytes(int(n))
		if err != nil {
			return nil, err
		}
		table = append(table, sd)
	}
	return table, nil
}

// byteReader is a minimal sequential decoder over a fixed byte slice,
// erroring rather than panicking on truncation, since a short metadata
// resource is a corrupt-archive condition the caller must be able to
// report instead of crashing on.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) need(n int) error {
	if r.pos+n > len(r.data) {
		return werror.Errorf(werror.InvalidResource, "metadata: truncated record, need %d bytes at offset %d, have %d total", n, r.pos, len(r.data))
	}
	return nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) byte_() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return bitio.Uint16(b), nil
}

func (r *byteReader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return bitio.Uint32(b), nil
}

func (r *byteReader) int64() (int64, error) {
	lo, err := r.uint32()
	if err != nil {
		return 0, err
	}
	hi, err := r.uint32()
	if err != nil {
		return 0, err
	}
	return int64(uint64(hi)<<32 | uint64(lo)), nil
}

func (r *byteReader) string() (string, error) {
	n, err := r.uint16()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
