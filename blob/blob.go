// Package blob implements the content-addressed blob table: every
// deduplicated stream in an archive is one blob descriptor keyed by its
// hash, with a location telling the read path where its bytes actually
// live (this archive, another archive, a file on disk, a staging file,
// an in-memory buffer, or a mounted source volume).
//
// The table itself is grounded on the teacher's content-lookup pattern
// in internal/repo/reader.go (one read path dispatching over several
// physical backing sources) generalized here to a closed six-variant
// sum type, and its refcount lifecycle mirrors cmd/distri/gc.go's rule
// that an item is kept iff still reachable from a root set.
package blob

import (
	"github.com/gowim/wim/resource"
	"github.com/gowim/wim/wimhash"
)

// LocationKind discriminates the variant held by a Location.
type LocationKind int

const (
	_ LocationKind = iota
	// InThisArchive means the blob's bytes are a resource inside the
	// archive handle that owns this Table.
	InThisArchive
	// InAnotherArchive means the blob's bytes are a resource inside a
	// different, currently-open archive, reached through a borrowed
	// foreign handle.
	InAnotherArchive
	// InFileOnDisk means the blob's bytes are a plain file outside any
	// archive (e.g. newly added content not yet written out).
	InFileOnDisk
	// InStagingFile is structurally identical to InFileOnDisk but
	// semantically mutable: the file may still be appended to or
	// replaced before the next write-out.
	InStagingFile
	// InAttachedBuffer means the blob's bytes are an in-memory buffer
	// supplied directly by the caller.
	InAttachedBuffer
	// InSourceVolume means the blob's bytes are a stream on a mounted
	// source volume, read through a VolumeDriver.
	InSourceVolume
)

// ForeignHandle is an opaque reference to another open archive, resolved
// through a process-wide registry rather than held as a raw pointer, so
// that a borrowed archive's lifetime is never assumed by the borrower.
type ForeignHandle uint64

// VolumeDriver is the external collaborator that knows how to read
// attribute content off a mounted source volume. No concrete
// implementation ships in this module: volume mounting and the
// underlying filesystem driver are out of scope, and callers that need
// IN_SOURCE_VOLUME blobs supply their own VolumeDriver.
type VolumeDriver interface {
	// ReadAttribute performs a positional read of length len(dst) at
	// offset within the named attribute of the stream at path.
	ReadAttribute(path string, streamName string, offset int64, dst []byte) error
}

// Location identifies where a blob's bytes physically live. Exactly one
// of the payload fields is meaningful, selected by Kind; treat this as a
// closed sum type and switch exhaustively on Kind rather than checking
// fields for zero values.
type Location struct {
	Kind LocationKind

	// Valid when Kind == InThisArchive or InAnotherArchive. For the
	// not-yet-materialized kinds below (InFileOnDisk, InSourceVolume),
	// only Resource.OriginalSize is meaningful, set as a length hint.
	Resource resource.Entry
	// Valid when Kind == InAnotherArchive.
	Foreign ForeignHandle
	Codec   uint32

	// Valid when Kind == InFileOnDisk or InStagingFile.
	Path string

	// Valid when Kind == InAttachedBuffer.
	Buffer []byte

	// Valid when Kind == InSourceVolume.
	Volume         VolumeDriver
	VolumePath     string
	StreamName     string
	IsReparsePoint bool
}

// Descriptor is one content-addressed blob: a hash, a reference count,
// and the location of its bytes, plus scratch fields used only during
// export/write-out.
type Descriptor struct {
	Hash     wimhash.Hash
	Refcnt   uint64
	Location Location

	// Scratch fields, meaningful only mid-export/write-out; zero at rest.
	OutRefcnt           uint64
	PartNumber          uint32
	OutputResourceEntry resource.Entry
}
