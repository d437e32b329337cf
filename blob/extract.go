package blob

import (
	"github.com/gowim/wim/werror"
	"github.com/gowim/wim/wimhash"
)

// ChunkCallback receives successive pieces of a blob's decompressed
// content during Extract. Returning a non-nil error aborts the
// extraction; the caller's error is returned from Extract unchanged so
// the caller can distinguish "I stopped it" from a verification
// failure.
type ChunkCallback func(chunk []byte) error

// extractChunkSize bounds how much of a blob Extract reads into memory
// at once; it is independent of resource.ChunkSize (the on-disk
// compression unit) and only bounds the caller-visible callback chunks.
const extractChunkSize = 1 << 20

// Extract streams desc's full logical content through cb in
// extractChunkSize pieces, verifying that the streamed bytes hash to
// desc.Hash once the whole blob has been read. A mismatch is reported as
// werror.InvalidResourceHash and the partially-delivered content the
// caller already saw via cb is not retracted.
func Extract(desc *Descriptor, archive ArchiveHandle, flags ReadFlags, cb ChunkCallback) error {
	hasher := wimhash.NewHasher()

	total := desc.Location.Resource.OriginalSize
	if desc.Location.Kind == InAttachedBuffer {
		total = uint64(len(desc.Location.Buffer))
	}

	var offset int64
	buf := make([]byte, extractChunkSize)
	for uint64(offset) < total {
		n := extractChunkSize
		if remaining := total - uint64(offset); remaining < uint64(n) {
			n = int(remaining)
		}
		chunk := buf[:n]
		if err := Read(desc, offset, chunk, archive, flags); err != nil {
			return err
		}
		if _, err := hasher.Write(chunk); err != nil {
			return werror.Wrap(werror.Read, "blob extract: hashing chunk", err)
		}
		if err := cb(chunk); err != nil {
			return err
		}
		offset += int64(n)
	}

	if got := hasher.Sum(); !got.Equal(desc.Hash) {
		return werror.Errorf(werror.InvalidResourceHash, "blob extract: hash mismatch, got %s want %s", got, desc.Hash)
	}
	return nil
}
