package blob

import (
	"io"
	"os"

	"github.com/gowim/wim/codec"
	"github.com/gowim/wim/resource"
	"github.com/gowim/wim/werror"
)

// ReadFlags modify how Read dispatches a blob read.
type ReadFlags uint32

const (
	// Multithreaded tells an InThisArchive read to borrow a handle from
	// the owning archive's handle pool instead of using its primary
	// handle, so the caller's read can run concurrently with other
	// reads against the same archive.
	Multithreaded ReadFlags = 1 << 0
)

// ArchiveHandle is the capability an open archive exposes to the blob
// package so that InThisArchive and InAnotherArchive reads can run
// without this package importing the archive type itself (which would
// create an import cycle, since the archive package depends on blob).
type ArchiveHandle interface {
	// ReaderAt returns the archive's primary positional reader.
	ReaderAt() io.ReaderAt
	// Codec returns the codec registered for the archive's resources.
	Codec() codec.Codec
	// BorrowReaderAt hands out a pooled reader for concurrent use; the
	// returned release func must be called exactly once when done.
	BorrowReaderAt() (io.ReaderAt, func(), error)
}

// Read dispatches a positional read of len(dst) bytes at offset within
// desc's logical content, according to desc.Location.Kind. archive is
// the handle owning desc when Kind is InThisArchive; it may be nil for
// all other kinds.
func Read(desc *Descriptor, offset int64, dst []byte, archive ArchiveHandle, flags ReadFlags) error {
	switch desc.Location.Kind {
	case InThisArchive:
		ra := archive.ReaderAt()
		if flags&Multithreaded != 0 {
			borrowed, release, err := archive.BorrowReaderAt()
			if err != nil {
				return werror.Wrap(werror.Read, "blob read: borrowing pooled handle", err)
			}
			defer release()
			ra = borrowed
		}
		rd := resource.NewReader(ra, desc.Location.Resource, archive.Codec())
		return rd.ReadAt(dst, offset)

	case InAnotherArchive:
		foreign, err := Resolve(desc.Location.Foreign)
		if err != nil {
			return err
		}
		rd := resource.NewReader(foreign.ReaderAt(), desc.Location.Resource, foreign.Codec())
		return rd.ReadAt(dst, offset)

	case InFileOnDisk, InStagingFile:
		f, err := os.Open(desc.Location.Path)
		if err != nil {
			return werror.Wrap(werror.Open, "blob read: opening "+desc.Location.Path, err)
		}
		defer f.Close()
		if _, err := f.ReadAt(dst, offset); err != nil {
			return werror.Wrap(werror.Read, "blob read: reading "+desc.Location.Path, err)
		}
		return nil

	case InAttachedBuffer:
		buf := desc.Location.Buffer
		if offset < 0 || offset+int64(len(dst)) > int64(len(buf)) {
			return werror.New(werror.InvalidParam, "blob read: attached buffer read out of range")
		}
		copy(dst, buf[offset:offset+int64(len(dst))])
		return nil

	case InSourceVolume:
		physOffset := offset
		if desc.Location.IsReparsePoint {
			// the tag+reserved 8-byte header precedes the logical
			// reparse payload on the volume but is not part of it.
			physOffset += 8
		}
		if err := desc.Location.Volume.ReadAttribute(desc.Location.VolumePath, desc.Location.StreamName, physOffset, dst); err != nil {
			return werror.Wrap(werror.NTFS3G, "blob read: source volume attribute read", err)
		}
		return nil

	default:
		return werror.New(werror.InvalidParam, "blob read: descriptor has no recognized location kind")
	}
}
