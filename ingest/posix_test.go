package ingest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/ingest"
	"github.com/gowim/wim/wimhash"
)

func TestFromFilesystemDedupesIdenticalContent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "a.txt"), "shared content")
	mustWriteFile(t, filepath.Join(root, "b.txt"), "shared content")
	mustWriteFile(t, filepath.Join(root, "c.txt"), "different content")
	if err := os.Mkdir(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	mustWriteFile(t, filepath.Join(root, "sub", "d.txt"), "shared content")
	mustWriteFile(t, filepath.Join(root, "empty.txt"), "")

	table := blob.NewTable()
	n, err := ingest.FromFilesystem(root, table)
	if err != nil {
		t.Fatalf("FromFilesystem: %v", err)
	}

	if !n.Attr.IsDir() {
		t.Fatal("root node should be a directory")
	}
	if got, want := len(n.Children), 5; got != want {
		t.Fatalf("root has %d children, want %d", got, want)
	}

	// a.txt, b.txt, and sub/d.txt share one descriptor at refcnt 3;
	// c.txt gets its own at refcnt 1; empty.txt creates no descriptor.
	if got, want := table.Len(), 2; got != want {
		t.Fatalf("table has %d descriptors, want %d", got, want)
	}

	var sharedHash, soloHash = findStreamHash(t, n, "a.txt"), findStreamHash(t, n, "c.txt")
	if d := table.Lookup(sharedHash); d == nil || d.Refcnt != 3 {
		t.Fatalf("shared descriptor refcnt = %+v, want 3", d)
	}
	if d := table.Lookup(soloHash); d == nil || d.Refcnt != 1 {
		t.Fatalf("solo descriptor refcnt = %+v, want 1", d)
	}

	emptyHash := findStreamHash(t, n, "empty.txt")
	if !emptyHash.IsZero() {
		t.Fatal("empty file should hash to the zero sentinel")
	}
	if table.Lookup(emptyHash) != nil {
		t.Fatal("empty file must not create a blob descriptor")
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func findStreamHash(t *testing.T, root *ingest.Node, name string) wimhash.Hash {
	t.Helper()
	for _, c := range root.Children {
		if c.Name == name {
			return c.UnnamedStream().Hash
		}
	}
	t.Fatalf("no child named %q", name)
	return wimhash.Hash{}
}
