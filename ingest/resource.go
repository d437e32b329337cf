package ingest

import "github.com/gowim/wim/resource"

// resourceWithOriginalSize builds a placeholder resource.Entry carrying
// only the original (uncompressed) size, for descriptors whose bytes
// live outside any archive (IN_FILE_ON_DISK, IN_SOURCE_VOLUME): there is
// no on-disk resource layout to describe yet, only the logical length
// the blob will have once written out.
func resourceWithOriginalSize(size int64) resource.Entry {
	return resource.Entry{OriginalSize: uint64(size)}
}
