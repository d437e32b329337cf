package wimarchive

import (
	"testing"

	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/resource"
	"github.com/gowim/wim/wimhash"
)

func TestBlobTableRoundTrip(t *testing.T) {
	t.Parallel()

	table := blob.NewTable()
	d1 := &blob.Descriptor{
		Hash:     wimhash.Of([]byte("one")),
		Refcnt:   2,
		Location: blob.Location{Kind: blob.InThisArchive, Resource: resource.Entry{Size: 10, Offset: 0, OriginalSize: 10}},
	}
	d2 := &blob.Descriptor{
		Hash:     wimhash.Of([]byte("two")),
		Refcnt:   1,
		Location: blob.Location{Kind: blob.InThisArchive, Resource: resource.Entry{Size: 20, Offset: 10, OriginalSize: 20}},
	}
	if err := table.Insert(d1); err != nil {
		t.Fatalf("Insert d1: %v", err)
	}
	if err := table.Insert(d2); err != nil {
		t.Fatalf("Insert d2: %v", err)
	}

	meta := []*blob.Descriptor{
		{
			Hash:     wimhash.Of([]byte("image1-meta")),
			Refcnt:   1,
			Location: blob.Location{Kind: blob.InThisArchive, Resource: resource.Entry{Size: 5, Offset: 100, OriginalSize: 5}},
		},
	}

	body := encodeBlobTable(table, meta)
	decoded, err := decodeBlobTable(body)
	if err != nil {
		t.Fatalf("decodeBlobTable: %v", err)
	}

	if decoded.table.Len() != 2 {
		t.Fatalf("decoded table has %d entries, want 2", decoded.table.Len())
	}
	got1 := decoded.table.Lookup(d1.Hash)
	if got1 == nil || got1.Refcnt != 2 || got1.Location.Resource != d1.Location.Resource {
		t.Fatalf("decoded d1 = %+v, want refcnt 2 and matching resource", got1)
	}

	if len(decoded.imageMetadata) != 1 {
		t.Fatalf("decoded %d metadata entries, want 1", len(decoded.imageMetadata))
	}
	if decoded.imageMetadata[0].Hash != meta[0].Hash {
		t.Fatalf("decoded metadata hash mismatch")
	}
}

func TestDecodeBlobTableRejectsMisalignedBody(t *testing.T) {
	t.Parallel()

	if _, err := decodeBlobTable(make([]byte, lookupEntrySize+1)); err == nil {
		t.Fatal("decodeBlobTable with misaligned body: want error, got nil")
	}
}
