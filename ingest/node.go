// Package ingest builds directory-tree Node structures from external
// sources (a POSIX filesystem, a mounted source volume, or a cpio
// archive) and deduplicates their content through a shared blob table.
//
// The tree shape itself plays the same role here that squashfs's
// Directory/file hierarchy plays for the teacher: a walk that, at each
// entry, stats the thing, creates a node, recurses for directories, and
// streams file content elsewhere for storage.
package ingest

import (
	"time"

	"github.com/gowim/wim/wimhash"
)

// Attr holds NT-style file attribute bits (FILE_ATTRIBUTE_* in the
// source format this container mirrors): directory, readonly, hidden,
// system, reparse point, and so on. The exact bit values are carried
// opaquely from the ingest source to the catalog; this package never
// interprets individual bits beyond IsDir.
type Attr uint32

const (
	AttrReadonly     Attr = 1 << 0
	AttrHidden       Attr = 1 << 1
	AttrSystem       Attr = 1 << 2
	AttrDirectory    Attr = 1 << 4
	AttrArchive      Attr = 1 << 5
	AttrSparseFile   Attr = 1 << 9
	AttrReparsePoint Attr = 1 << 10
	AttrCompressed   Attr = 1 << 11
	AttrEncrypted    Attr = 1 << 14
)

// IsDir reports whether a has the directory bit set.
func (a Attr) IsDir() bool { return a&AttrDirectory != 0 }

// Stream is one named or unnamed data stream attached to a Node. The
// unnamed stream (Name == "") is a regular file's main content, or a
// reparse point's payload when AttrReparsePoint is set; named streams
// are NTFS alternate data streams.
type Stream struct {
	Name string
	Hash wimhash.Hash // wimhash.Hash{} (all-zero) for an empty stream
}

// ReparseData holds the header fields of a reparse point (tag and
// reserved), captured separately from its stream content because the
// first 8 bytes of the attribute are metadata, not part of the logical
// stream a blob descriptor addresses.
type ReparseData struct {
	Tag      uint32
	Reserved uint16
}

// Node is one entry in an ingested directory tree: a file, directory,
// or reparse point, with NT-style metadata and zero or more data
// streams.
type Node struct {
	Name string // UTF-16-representable; stored as Go string (valid UTF-8)

	Attr            Attr
	CreationTime    time.Time
	LastWriteTime   time.Time
	LastAccessTime  time.Time
	SecurityID      int32 // -1 if no security descriptor

	// ShortName is the optional DOS 8.3 name bound to this node, or ""
	// if the source had none.
	ShortName string

	// Reparse is non-nil iff Attr has AttrReparsePoint set.
	Reparse *ReparseData

	// Streams holds every stream on this node: at most one unnamed
	// (Name == "") plus any number of named alternate streams.
	Streams []Stream

	Parent   *Node
	Children []*Node
}

// AddChild appends child to n's children and sets child's Parent. n must
// be a directory.
func (n *Node) AddChild(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// UnnamedStream returns the node's unnamed stream, or nil if it has
// none.
func (n *Node) UnnamedStream() *Stream {
	for i := range n.Streams {
		if n.Streams[i].Name == "" {
			return &n.Streams[i]
		}
	}
	return nil
}

// Walk calls fn for n and every descendant, depth-first, pre-order.
func Walk(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}
