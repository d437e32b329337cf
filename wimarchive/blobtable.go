package wimarchive

import (
	"github.com/gowim/wim/bitio"
	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/resource"
	"github.com/gowim/wim/werror"
	"github.com/gowim/wim/wimhash"
)

// lookupEntrySize is the on-disk size of one blob-table entry: a hash,
// a refcount, a one-byte flag set (currently only "this entry's resource
// holds image metadata rather than file content"), and the resource
// entry locating its bytes.
const lookupEntrySize = wimhash.Size + 8 + 1 + resource.EntrySize

const lookupFlagMetadata = 1 << 0

// encodeBlobTable serializes every InThisArchive descriptor in table
// plus the per-image metadata descriptors into one resource body, in an
// order that doubles as image ordering: metadata entries are emitted in
// the order imageMetadata lists them (image 1 first), so a reader that
// filters for the metadata flag recovers catalog order without a
// separate on-disk image index.
func encodeBlobTable(table *blob.Table, imageMetadata []*blob.Descriptor) []byte {
	var body []byte
	emit := func(d *blob.Descriptor, flags byte) {
		entry := make([]byte, lookupEntrySize)
		copy(entry[0:wimhash.Size], d.Hash[:])
		bitio.PutUint64(entry[wimhash.Size:wimhash.Size+8], d.Refcnt)
		entry[wimhash.Size+8] = flags
		d.Location.Resource.Encode(entry[wimhash.Size+9:])
		body = append(body, entry...)
	}
	for _, d := range imageMetadata {
		emit(d, lookupFlagMetadata)
	}
	table.Iterate(func(d *blob.Descriptor) {
		if d.Location.Kind == blob.InThisArchive {
			emit(d, 0)
		}
	})
	return body
}

// decodedBlobTable is the result of parsing a blob-table resource body:
// every InThisArchive descriptor (inserted into the returned Table) plus
// the metadata descriptors in on-disk (== image) order, kept separate
// since they are not addressed through the main table by ingest paths.
type decodedBlobTable struct {
	table         *blob.Table
	imageMetadata []*blob.Descriptor
}

func decodeBlobTable(body []byte) (decodedBlobTable, error) {
	if len(body)%lookupEntrySize != 0 {
		return decodedBlobTable{}, werror.Errorf(werror.InvalidResource, "blob table: body length %d is not a multiple of entry size %d", len(body), lookupEntrySize)
	}
	out := decodedBlobTable{table: blob.NewTable()}
	for off := 0; off < len(body); off += lookupEntrySize {
		entry := body[off : off+lookupEntrySize]
		var hash wimhash.Hash
		copy(hash[:], entry[0:wimhash.Size])
		refcnt := bitio.Uint64(entry[wimhash.Size : wimhash.Size+8])
		flags := entry[wimhash.Size+8]
		resEntry, err := resource.DecodeEntry(entry[wimhash.Size+9:])
		if err != nil {
			return decodedBlobTable{}, err
		}
		d := &blob.Descriptor{
			Hash:   hash,
			Refcnt: refcnt,
			Location: blob.Location{
				Kind:     blob.InThisArchive,
				Resource: resEntry,
			},
		}
		if flags&lookupFlagMetadata != 0 {
			out.imageMetadata = append(out.imageMetadata, d)
			continue
		}
		if err := out.table.Insert(d); err != nil {
			return decodedBlobTable{}, err
		}
	}
	return out, nil
}
