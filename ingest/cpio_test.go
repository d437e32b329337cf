package ingest_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/cavaliercoder/go-cpio"

	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/ingest"
	"github.com/gowim/wim/wimhash"
)

func TestFromCPIOBuildsTreeAndDedupes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := cpio.NewWriter(&buf)
	writeEntry := func(name string, mode cpio.FileMode, content string) {
		t.Helper()
		if err := w.WriteHeader(&cpio.Header{
			Name:    name,
			Mode:    mode,
			Size:    int64(len(content)),
			ModTime: time.Unix(1700000000, 0),
		}); err != nil {
			t.Fatalf("WriteHeader(%s): %v", name, err)
		}
		if content != "" {
			if _, err := w.Write([]byte(content)); err != nil {
				t.Fatalf("Write(%s): %v", name, err)
			}
		}
	}

	writeEntry("bin", cpio.ModeDir|0755, "")
	writeEntry("bin/sh", 0755, "shared binary")
	writeEntry("bin/bash", 0755, "shared binary")
	writeEntry("README", 0644, "unique text")
	writeEntry("EMPTY", 0644, "")
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	table := blob.NewTable()
	root, err := ingest.FromCPIO(&buf, table)
	if err != nil {
		t.Fatalf("FromCPIO: %v", err)
	}

	var bin *ingest.Node
	for _, c := range root.Children {
		if c.Name == "bin" {
			bin = c
		}
	}
	if bin == nil {
		t.Fatal("expected a bin/ directory node")
	}
	if !bin.Attr.IsDir() {
		t.Fatal("bin should be a directory")
	}
	if got, want := len(bin.Children), 2; got != want {
		t.Fatalf("bin has %d children, want %d", got, want)
	}
	if got, want := len(root.Children), 3; got != want {
		t.Fatalf("root has %d children, want %d", got, want)
	}

	if got, want := table.Len(), 2; got != want {
		t.Fatalf("table has %d descriptors, want %d", got, want)
	}

	var empty *ingest.Node
	for _, c := range root.Children {
		if c.Name == "EMPTY" {
			empty = c
		}
	}
	if empty == nil {
		t.Fatal("expected an EMPTY node")
	}
	if got := empty.UnnamedStream().Hash; got != (wimhash.Hash{}) {
		t.Fatalf("EMPTY's stream hash = %x, want the all-zero sentinel", got)
	}
	// the empty stream must not have created a spurious blob descriptor.
	if got, want := table.Len(), 2; got != want {
		t.Fatalf("table has %d descriptors after ingesting an empty file, want %d", got, want)
	}
}
