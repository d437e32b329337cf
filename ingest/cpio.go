package ingest

import (
	"io"
	"io/ioutil"
	"strings"

	"github.com/cavaliercoder/go-cpio"

	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/werror"
	"github.com/gowim/wim/wimhash"
)

// FromCPIO reads a cpio archive sequentially and builds a Node tree from
// its entries, the reverse of how the teacher's initrd builder turns a
// directory tree into cpio entries: here, sequential cpio entries become
// directory nodes. Regular-file content is buffered in memory and
// deduplicated through table as an attached buffer, since a cpio
// stream's entries are not independently seekable once read.
func FromCPIO(r io.Reader, table *blob.Table) (*Node, error) {
	root := &Node{Name: "", Attr: AttrDirectory, SecurityID: -1}
	dirs := map[string]*Node{"": root}

	cr := cpio.NewReader(r)
	for {
		hdr, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, werror.Wrap(werror.Read, "ingest: reading cpio entry", err)
		}

		name := strings.Trim(hdr.Name, "/")
		if name == "" || name == "." {
			continue
		}
		parentPath, base := splitPath(name)
		parent := ensureDir(dirs, parentPath)

		if hdr.Mode&cpio.ModeDir != 0 {
			dir := &Node{Name: base, Attr: AttrDirectory, SecurityID: -1, LastWriteTime: hdr.ModTime}
			parent.AddChild(dir)
			dirs[name] = dir
			continue
		}

		content, err := ioutil.ReadAll(cr)
		if err != nil {
			return nil, werror.Wrap(werror.Read, "ingest: reading cpio entry content for "+name, err)
		}

		n := &Node{Name: base, SecurityID: -1, LastWriteTime: hdr.ModTime}

		var hash wimhash.Hash
		if len(content) > 0 {
			hash = wimhash.Of(content)
		}
		n.Streams = []Stream{{Hash: hash}}

		buf := content
		dedup(table, hash, func() blob.Location {
			return blob.Location{Kind: blob.InAttachedBuffer, Buffer: buf}
		})

		parent.AddChild(n)
	}

	return root, nil
}

func splitPath(name string) (dir, base string) {
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

// ensureDir returns the Node for path, creating any missing ancestor
// directories (cpio archives are not required to list every ancestor
// directory explicitly before a nested file).
func ensureDir(dirs map[string]*Node, path string) *Node {
	if n, ok := dirs[path]; ok {
		return n
	}
	parentPath, base := splitPath(path)
	parent := ensureDir(dirs, parentPath)
	n := &Node{Name: base, Attr: AttrDirectory, SecurityID: -1}
	parent.AddChild(n)
	dirs[path] = n
	return n
}
