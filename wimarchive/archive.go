package wimarchive

import (
	"crypto/rand"
	"io"
	"os"
	"sync"

	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/catalog"
	"github.com/gowim/wim/codec"
	"github.com/gowim/wim/ingest"
	"github.com/gowim/wim/manifest"
	"github.com/gowim/wim/resource"
	"github.com/gowim/wim/werror"
)

// Archive is the top-level handle (the spec's WIMStruct): the open file,
// the parsed header, the live blob table, the image catalog, the XML
// manifest, the compression codec, and an auxiliary pool of extra file
// handles for concurrent reads guarded by one mutex, matching the
// teacher's pattern of a small pooled-resource type guarded by a single
// mutex rather than a full connection-pool library (there is no such
// library in the example pack to reach for, and the pool here is a
// handful of *os.File, not a scarce network resource).
type Archive struct {
	path   string
	file   *os.File
	header Header
	codec  codec.Codec

	table    *blob.Table
	catalog  *catalog.Catalog
	manifest *manifest.Manifest

	poolMu sync.Mutex
	pool   []*os.File
}

// ReaderAt implements blob.ArchiveHandle.
func (a *Archive) ReaderAt() io.ReaderAt { return a.file }

// Codec implements blob.ArchiveHandle.
func (a *Archive) Codec() codec.Codec { return a.codec }

// BorrowReaderAt implements blob.ArchiveHandle by lazily growing a pool
// of extra read-only file handles under a.poolMu. The mutex is held only
// across the O(1) pool pop/push, never across I/O, matching §5's
// "handle-pool mutex is held only across a tiny scan" requirement.
func (a *Archive) BorrowReaderAt() (io.ReaderAt, func(), error) {
	a.poolMu.Lock()
	var f *os.File
	if n := len(a.pool); n > 0 {
		f = a.pool[n-1]
		a.pool = a.pool[:n-1]
	}
	a.poolMu.Unlock()

	if f == nil {
		var err error
		f, err = os.Open(a.path)
		if err != nil {
			return nil, nil, werror.Wrap(werror.Open, "wimarchive: opening pooled handle for "+a.path, err)
		}
	}

	release := func() {
		a.poolMu.Lock()
		a.pool = append(a.pool, f)
		a.poolMu.Unlock()
	}
	return f, release, nil
}

// Close closes the archive's primary file handle and every pooled
// handle. It does not flush any pending mutations; call Save first.
func (a *Archive) Close() error {
	a.poolMu.Lock()
	pool := a.pool
	a.pool = nil
	a.poolMu.Unlock()
	for _, f := range pool {
		f.Close()
	}
	return a.file.Close()
}

// Catalog returns the archive's image catalog.
func (a *Archive) Catalog() *catalog.Catalog { return a.catalog }

// Table returns the archive's blob table.
func (a *Archive) Table() *blob.Table { return a.table }

// Manifest returns the archive's XML manifest document.
func (a *Archive) Manifest() *manifest.Manifest { return a.manifest }

// Create initializes a brand-new, empty archive backed by a new file at
// path, compressing resources with codecID/c (c may be nil for an
// uncompressed archive).
func Create(path string, codecID codec.ID, c codec.Codec) (*Archive, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, werror.Wrap(werror.Open, "wimarchive: creating "+path, err)
	}
	var guid [16]byte
	if _, err := rand.Read(guid[:]); err != nil {
		return nil, werror.Wrap(werror.NoMem, "wimarchive: generating archive GUID", err)
	}
	return &Archive{
		path: path,
		file: f,
		header: Header{
			Version:    1,
			ChunkSize:  resource.ChunkSize,
			GUID:       guid,
			PartNumber: 1,
			TotalParts: 1,
			CodecID:    codecID,
		},
		codec:    c,
		table:    blob.NewTable(),
		catalog:  catalog.New(),
		manifest: manifest.New(),
	}, nil
}

// Open reads an existing archive at path, decoding its header, blob
// table, XML manifest, and image catalog. c must implement the codec
// named by the on-disk header's CodecID for any compressed resource read
// to succeed; it may be nil if the archive holds no compressed
// resources.
func Open(path string, c codec.Codec) (*Archive, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, werror.Wrap(werror.Open, "wimarchive: opening "+path, err)
	}

	hdrBuf := make([]byte, HeaderSize)
	if err := readAtFull(f, hdrBuf, 0); err != nil {
		f.Close()
		return nil, werror.Wrap(werror.Read, "wimarchive: reading header of "+path, err)
	}
	header, err := DecodeHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	a := &Archive{path: path, file: f, header: header, codec: c}

	blobBody, err := readResourceBody(f, header.BlobTable, c)
	if err != nil {
		f.Close()
		return nil, werror.Wrap(werror.Read, "wimarchive: reading blob table", err)
	}
	decoded, err := decodeBlobTable(blobBody)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.table = decoded.table

	xmlBody, err := readResourceBody(f, header.XML, c)
	if err != nil {
		f.Close()
		return nil, werror.Wrap(werror.Read, "wimarchive: reading XML manifest", err)
	}
	m, err := manifest.Parse(xmlBody)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.manifest = m

	a.catalog = catalog.New()
	for i, desc := range decoded.imageMetadata {
		name := ""
		if i < len(m.Images) {
			name = m.Images[i].Name
		}
		idx, err := a.catalog.Add(name, nil, nil)
		if err != nil {
			f.Close()
			return nil, err
		}
		img, _ := a.catalog.Get(idx)
		img.MetadataEntry = desc.Location.Resource
	}
	if header.BootIndex > 0 {
		if err := a.catalog.SetBoot(int(header.BootIndex)); err != nil {
			f.Close()
			return nil, err
		}
	}

	return a, nil
}

// readResourceBody reads a whole resource's decompressed content into a
// freshly allocated buffer, returning an empty slice for a zero-length
// resource without touching the codec or the underlying file.
func readResourceBody(r io.ReaderAt, entry resource.Entry, c codec.Codec) ([]byte, error) {
	if entry.OriginalSize == 0 {
		return nil, nil
	}
	buf := make([]byte, entry.OriginalSize)
	rd := resource.NewReader(r, entry, c)
	if err := rd.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// loadImageTree is the catalog.LoadFunc Select uses to materialize an
// image's directory tree on first access.
func (a *Archive) loadImageTree(img *catalog.Image) (*ingest.Node, error) {
	body, err := readResourceBody(a.file, img.MetadataEntry, a.codec)
	if err != nil {
		return nil, err
	}
	root, securityTableBlob, err := decodeImageMetadata(body)
	if err != nil {
		return nil, err
	}
	img.SecurityTable = securityTableBlob
	return root, nil
}

// readAtFull retries a short ReadAt exactly once, matching resource's own
// defensive retry for a file shrunk concurrently by another process.
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
