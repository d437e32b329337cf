package wimarchive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/codec"
	"github.com/gowim/wim/ingest"
)

func writeTestTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0644); err != nil {
		t.Fatalf("writing hello.txt: %v", err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "nested.txt"), []byte("nested data"), 0644); err != nil {
		t.Fatalf("writing nested.txt: %v", err)
	}
	return dir
}

func findByName(n *ingest.Node, name string) *ingest.Node {
	if n.Name == name {
		return n
	}
	for _, c := range n.Children {
		if found := findByName(c, name); found != nil {
			return found
		}
	}
	return nil
}

func TestCreateAddSaveOpenRoundTrip(t *testing.T) {
	t.Parallel()

	srcDir := writeTestTree(t)
	archivePath := filepath.Join(t.TempDir(), "test.wim")

	a, err := Create(archivePath, codec.None, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := a.Add(srcDir, "image1", true); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	opened, err := Open(archivePath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer opened.Close()

	if opened.Catalog().Count() != 1 {
		t.Fatalf("Count() = %d, want 1", opened.Catalog().Count())
	}
	if opened.Catalog().BootIndex() != 1 {
		t.Fatalf("BootIndex() = %d, want 1", opened.Catalog().BootIndex())
	}
	if !opened.Manifest().HasName("image1") {
		t.Fatal(`Manifest().HasName("image1") = false`)
	}

	if err := opened.SelectImage(1); err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	img, err := opened.Catalog().Get(1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}

	hello := findByName(img.Root, "hello.txt")
	if hello == nil {
		t.Fatal("hello.txt not found in round-tripped tree")
	}
	u := hello.UnnamedStream()
	if u == nil {
		t.Fatal("hello.txt has no unnamed stream")
	}
	d := opened.Table().Lookup(u.Hash)
	if d == nil {
		t.Fatal("blob table has no descriptor for hello.txt's stream")
	}
	got := make([]byte, d.Location.Resource.OriginalSize)
	if err := blob.Read(d, 0, got, opened, 0); err != nil {
		t.Fatalf("blob.Read: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("round-tripped content = %q, want %q", got, "hello world")
	}

	nested := findByName(img.Root, "nested.txt")
	if nested == nil {
		t.Fatal("nested.txt not found in round-tripped tree")
	}
}

func TestAddRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	srcDir := writeTestTree(t)
	archivePath := filepath.Join(t.TempDir(), "test.wim")

	a, err := Create(archivePath, codec.None, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := a.Add(srcDir, "image1", false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.Add(srcDir, "image1", false); err == nil {
		t.Fatal("second Add with duplicate name: want error, got nil")
	}
}
