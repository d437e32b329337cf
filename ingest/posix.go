package ingest

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/werror"
	"github.com/gowim/wim/wimhash"
)

// posixConcurrency bounds how many files are hashed at once during a
// FromFilesystem walk, the same way the teacher bounds concurrent
// network fetches in its export path rather than firing one goroutine
// per item unbounded.
const posixConcurrency = 8

// modeToAttr translates a POSIX os.FileMode into the subset of NT
// attribute bits this ingest path can infer: the directory bit, and the
// readonly bit when no write permission bit is set. Hidden, system and
// archive are never set, since POSIX has no concept of its own that maps
// cleanly onto them.
func modeToAttr(mode os.FileMode) Attr {
	var a Attr
	if mode.IsDir() {
		a |= AttrDirectory
	}
	if mode&0222 == 0 {
		a |= AttrReadonly
	}
	return a
}

// FromFilesystem walks root depth-first and builds a Node tree,
// deduplicating every regular file's content through table. Each
// directory entry is stat-ed, turned into a Node, and — for regular
// files — hashed with a streaming hash; sibling files within one
// directory are hashed concurrently, bounded by posixConcurrency.
func FromFilesystem(root string, table *blob.Table) (*Node, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, werror.Wrap(werror.Stat, "ingest: stat root", err)
	}
	var tableMu sync.Mutex
	return walkPosix(root, info, table, &tableMu)
}

func walkPosix(path string, info os.FileInfo, table *blob.Table, tableMu *sync.Mutex) (*Node, error) {
	st, _ := info.Sys().(*unix.Stat_t)

	n := &Node{
		Name:           info.Name(),
		Attr:           modeToAttr(info.Mode()),
		LastWriteTime:  info.ModTime(),
		CreationTime:   info.ModTime(),
		LastAccessTime: info.ModTime(),
		SecurityID:     -1,
	}
	if st != nil {
		n.LastAccessTime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
		n.CreationTime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, werror.Wrap(werror.Read, "ingest: reading directory "+path, err)
		}

		children := make([]*Node, len(entries))
		var eg errgroup.Group
		eg.SetLimit(posixConcurrency)
		for i, ent := range entries {
			i, ent := i, ent
			eg.Go(func() error {
				childInfo, err := ent.Info()
				if err != nil {
					return werror.Wrap(werror.Stat, "ingest: stat "+ent.Name(), err)
				}
				childPath := filepath.Join(path, ent.Name())

				child, err := walkPosix(childPath, childInfo, table, tableMu)
				if err != nil {
					return err
				}
				children[i] = child
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		for _, c := range children {
			n.AddChild(c)
		}
		return n, nil
	}

	hash, size, err := hashRegularFile(path)
	if err != nil {
		return nil, err
	}
	n.Streams = []Stream{{Hash: hash}}

	tableMu.Lock()
	dedup(table, hash, func() blob.Location {
		return blob.Location{
			Kind:     blob.InFileOnDisk,
			Path:     path,
			Resource: resourceWithOriginalSize(size),
		}
	})
	tableMu.Unlock()

	return n, nil
}

func hashRegularFile(path string) (wimhash.Hash, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return wimhash.Hash{}, 0, werror.Wrap(werror.Open, "ingest: opening "+path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return wimhash.Hash{}, 0, werror.Wrap(werror.Stat, "ingest: stat "+path, err)
	}
	if info.Size() == 0 {
		return wimhash.Hash{}, 0, nil
	}

	hash, err := wimhash.SumReader(f)
	if err != nil {
		return wimhash.Hash{}, 0, werror.Wrap(werror.Read, "ingest: hashing "+path, err)
	}
	return hash, info.Size(), nil
}
