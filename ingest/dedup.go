package ingest

import (
	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/wimhash"
)

// dedup looks hash up in table: on a hit it increfs the existing
// descriptor; on a miss it inserts a fresh one built by makeLocation,
// starting at refcnt 1. An all-zero hash (the empty-stream sentinel)
// never creates or increfs a descriptor, matching the rule that empty
// streams carry no blob.
//
// This is the one dedup step every ingest path (POSIX filesystem,
// source volume, cpio) funnels through, rather than three copies of the
// same lookup-or-create logic.
func dedup(table *blob.Table, hash wimhash.Hash, makeLocation func() blob.Location) {
	if hash.IsZero() {
		return
	}
	if existing := table.Lookup(hash); existing != nil {
		table.Incref(existing)
		return
	}
	table.Insert(&blob.Descriptor{
		Hash:     hash,
		Refcnt:   1,
		Location: makeLocation(),
	})
}
