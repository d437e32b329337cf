package blob

import (
	"sync"
	"sync/atomic"

	"github.com/gowim/wim/werror"
)

var (
	foreignMu         sync.RWMutex
	foreignHandles    = make(map[ForeignHandle]ArchiveHandle)
	nextForeignHandle uint64
)

// Register publishes archive under a fresh ForeignHandle so that blobs
// in other archives can reference it as IN_ANOTHER_ARCHIVE without
// holding a raw pointer. The caller must Unregister the handle once the
// archive is closed; borrowers never assume the archive outlives them.
func Register(archive ArchiveHandle) ForeignHandle {
	id := ForeignHandle(atomic.AddUint64(&nextForeignHandle, 1))
	foreignMu.Lock()
	foreignHandles[id] = archive
	foreignMu.Unlock()
	return id
}

// Unregister removes a previously Register-ed handle. Reads against
// descriptors still pointing at it will fail with werror.Open.
func Unregister(h ForeignHandle) {
	foreignMu.Lock()
	delete(foreignHandles, h)
	foreignMu.Unlock()
}

// Resolve looks up a ForeignHandle previously returned by Register.
func Resolve(h ForeignHandle) (ArchiveHandle, error) {
	foreignMu.RLock()
	defer foreignMu.RUnlock()
	archive, ok := foreignHandles[h]
	if !ok {
		return nil, werror.New(werror.Open, "blob read: foreign archive handle is no longer registered")
	}
	return archive, nil
}
