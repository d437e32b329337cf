package ingest

import (
	"log"
	"strings"
	"time"

	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/werror"
	"github.com/gowim/wim/wimhash"
)

// VolumeStream describes one data or reparse-point attribute a
// SourceVolumeDriver reports for an inode.
type VolumeStream struct {
	Name           string // "" for the unnamed stream
	IsReparsePoint bool
	Size           int64 // logical length in bytes, as driver.ReadAttribute addresses it
}

// VolumeEntry is one inode as enumerated by a SourceVolumeDriver walk.
// A short-name-only entry (ShortNameOnly == true) carries no other
// metadata and exists solely to bind a DOS 8.3 name to InodeNumber,
// mirroring how NTFS stores the long and short names of one file as two
// separate directory index entries pointing at the same MFT record.
type VolumeEntry struct {
	Path        string // volume-internal path of the long-name entry
	InodeNumber uint64
	ParentInode uint64 // 0 names the root

	ShortNameOnly bool
	ShortName     string // meaningful when ShortNameOnly, or set directly otherwise

	Attr               Attr
	CreationTime       time.Time
	LastWriteTime      time.Time
	LastAccessTime     time.Time
	SecurityDescriptor []byte // raw bytes, nil if the inode has none
	Streams            []VolumeStream
}

// SourceVolumeDriver is the external collaborator a source-volume
// ingest drives: it knows how to enumerate a mounted volume's inodes
// and stream attribute content from them. No concrete implementation
// ships in this module — volume mounting is out of scope — but ingest
// defines and drives the interface so a caller-supplied driver (e.g.
// wrapping a read-only NTFS mount) can be used directly.
type SourceVolumeDriver interface {
	blob.VolumeDriver

	// Walk calls fn once per VolumeEntry in the volume, depth-first.
	// Returning a non-nil error from fn aborts the walk and is returned
	// from Walk unchanged.
	Walk(fn func(VolumeEntry) error) error

	// StreamHash streams the named attribute of path through SHA-1. For
	// a reparse-point attribute, the first 8 bytes (tag + reserved) are
	// excluded from the hash, matching blob.Read's IN_SOURCE_VOLUME
	// offset adjustment, so the hash addresses only the logical
	// reparse payload.
	StreamHash(path, streamName string, isReparsePoint bool) (wimhash.Hash, error)
}

// ExcludePattern reports whether path should be skipped entirely,
// including its whole subtree if it names a directory. Callers supply
// one or more patterns; FromSourceVolume evaluates them per path before
// creating a node.
type ExcludePattern func(path string) bool

// FromSourceVolume drives driver's Walk to build a Node tree,
// deduplicating data and reparse-point streams through table and
// security descriptors through a parallel hash-to-id index whose values
// become indexes into the per-image security table returned alongside
// the root node. Paths matching any of excludes are skipped, along with
// their entire subtree.
func FromSourceVolume(driver SourceVolumeDriver, table *blob.Table, excludes []ExcludePattern) (root *Node, securityTable [][]byte, err error) {
	nodesByInode := make(map[uint64]*Node)
	shortNames := make(map[uint64]string)
	securityIDs := make(map[wimhash.Hash]int32)
	excludedInodes := make(map[uint64]bool)

	root = &Node{Name: "", Attr: AttrDirectory, SecurityID: -1}
	nodesByInode[0] = root

	excluded := func(path string) bool {
		for _, ex := range excludes {
			if ex(path) {
				return true
			}
		}
		return false
	}

	walkErr := driver.Walk(func(ve VolumeEntry) error {
		if ve.ShortNameOnly {
			shortNames[ve.InodeNumber] = ve.ShortName
			return nil
		}
		if excluded(ve.Path) || excludedInodes[ve.ParentInode] {
			excludedInodes[ve.InodeNumber] = true
			return nil
		}

		n := &Node{
			Name:           volumeBaseName(ve.Path),
			Attr:           ve.Attr,
			CreationTime:   ve.CreationTime,
			LastWriteTime:  ve.LastWriteTime,
			LastAccessTime: ve.LastAccessTime,
			ShortName:      ve.ShortName,
			SecurityID:     -1,
		}

		if len(ve.SecurityDescriptor) > 0 {
			sdHash := wimhash.Of(ve.SecurityDescriptor)
			id, ok := securityIDs[sdHash]
			if !ok {
				id = int32(len(securityTable))
				securityTable = append(securityTable, ve.SecurityDescriptor)
				securityIDs[sdHash] = id
			}
			n.SecurityID = id
		}

		var reparse *ReparseData
		hasUnnamed := false
		for _, s := range ve.Streams {
			if s.IsReparsePoint {
				if s.Size < 8 {
					return werror.New(werror.NTFS3G, "ingest: reparse attribute payload < 8 bytes for "+ve.Path)
				}
				rd, err := readReparseHeader(driver, ve.Path, s.Name)
				if err != nil {
					return err
				}
				reparse = rd
			}

			hash, err := driver.StreamHash(ve.Path, s.Name, s.IsReparsePoint)
			if err != nil {
				return werror.Wrap(werror.Read, "ingest: hashing volume stream "+ve.Path, err)
			}

			if s.Name == "" {
				if hasUnnamed {
					// second unnamed stream on this inode: warn and
					// drop it, the first one wins.
					log.Printf("ingest: %s has a second unnamed data stream, keeping the first", ve.Path)
					continue
				}
				hasUnnamed = true
			}

			n.Streams = append(n.Streams, Stream{Name: s.Name, Hash: hash})
			size := s.Size
			dedup(table, hash, func() blob.Location {
				return blob.Location{
					Kind:           blob.InSourceVolume,
					Volume:         driver,
					VolumePath:     ve.Path,
					StreamName:     s.Name,
					IsReparsePoint: s.IsReparsePoint,
					Resource:       resourceWithOriginalSize(size),
				}
			})
		}
		n.Reparse = reparse

		nodesByInode[ve.InodeNumber] = n

		parent, ok := nodesByInode[ve.ParentInode]
		if !ok {
			return werror.Errorf(werror.InvalidParam, "ingest: volume entry %q references unseen parent inode %d", ve.Path, ve.ParentInode)
		}
		parent.AddChild(n)
		return nil
	})
	if walkErr != nil {
		return nil, nil, walkErr
	}

	for inode, shortName := range shortNames {
		n, ok := nodesByInode[inode]
		if !ok {
			continue
		}
		if !needsShortName(n.Name) {
			continue
		}
		n.ShortName = shortName
	}

	return root, securityTable, nil
}

// needsShortName reports whether name requires a distinct DOS 8.3 short
// name binding at all: a name that is already 8.3-compliant has no
// separate short-name directory entry to bind.
func needsShortName(name string) bool {
	base, ext, hasExt := strings.Cut(name, ".")
	if len(base) > 8 || (hasExt && len(ext) > 3) {
		return true
	}
	if hasExt && strings.Contains(ext, ".") {
		return true
	}
	return strings.ContainsAny(name, " +,;=[]") || name != strings.ToUpper(name)
}

func readReparseHeader(driver SourceVolumeDriver, path, streamName string) (*ReparseData, error) {
	hdr := make([]byte, 8)
	if err := driver.ReadAttribute(path, streamName, 0, hdr); err != nil {
		return nil, werror.Wrap(werror.NTFS3G, "ingest: reading reparse header for "+path, err)
	}
	return &ReparseData{
		Tag:      uint32(hdr[0]) | uint32(hdr[1])<<8 | uint32(hdr[2])<<16 | uint32(hdr[3])<<24,
		Reserved: uint16(hdr[4]) | uint16(hdr[5])<<8,
	}, nil
}

func volumeBaseName(path string) string {
	_, b := splitPath(path)
	return b
}
