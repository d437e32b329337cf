package wimarchive

import (
	"testing"
	"time"

	"github.com/gowim/wim/ingest"
	"github.com/gowim/wim/wimhash"
)

func buildSampleTree() *ingest.Node {
	root := &ingest.Node{Name: "", Attr: ingest.AttrDirectory, SecurityID: -1}
	dir := &ingest.Node{
		Name:           "sub",
		Attr:           ingest.AttrDirectory,
		SecurityID:     0,
		CreationTime:   time.Unix(1000, 0).UTC(),
		LastWriteTime:  time.Unix(2000, 0).UTC(),
		LastAccessTime: time.Unix(3000, 0).UTC(),
	}
	root.AddChild(dir)

	file := &ingest.Node{
		Name:       "FILE.TXT",
		Attr:       ingest.AttrArchive,
		SecurityID: -1,
		ShortName:  "FILE.TXT",
		Streams: []ingest.Stream{
			{Name: "", Hash: wimhash.Of([]byte("file content"))},
			{Name: "ads", Hash: wimhash.Of([]byte("alternate stream"))},
		},
	}
	dir.AddChild(file)

	link := &ingest.Node{
		Name:       "link",
		Attr:       ingest.AttrReparsePoint,
		SecurityID: -1,
		Reparse:    &ingest.ReparseData{Tag: 0xA0000003, Reserved: 0},
	}
	root.AddChild(link)

	return root
}

func TestMetadataTreeRoundTrip(t *testing.T) {
	t.Parallel()

	root := buildSampleTree()
	body := encodeMetadata(root)

	got, err := decodeMetadata(body)
	if err != nil {
		t.Fatalf("decodeMetadata: %v", err)
	}

	if got.Name != "" || len(got.Children) != 2 {
		t.Fatalf("root = %+v, want 2 children", got)
	}
	dir := got.Children[0]
	if dir.Name != "sub" || !dir.Attr.IsDir() {
		t.Fatalf("dir = %+v", dir)
	}
	if len(dir.Children) != 1 {
		t.Fatalf("dir has %d children, want 1", len(dir.Children))
	}
	file := dir.Children[0]
	if file.Name != "FILE.TXT" || file.ShortName != "FILE.TXT" {
		t.Fatalf("file = %+v", file)
	}
	if len(file.Streams) != 2 || file.Streams[1].Name != "ads" {
		t.Fatalf("file streams = %+v", file.Streams)
	}

	link := got.Children[1]
	if link.Reparse == nil || link.Reparse.Tag != 0xA0000003 {
		t.Fatalf("link.Reparse = %+v", link.Reparse)
	}
}

func TestDecodeMetadataRejectsTruncatedData(t *testing.T) {
	t.Parallel()

	body := encodeMetadata(buildSampleTree())
	if _, err := decodeMetadata(body[:len(body)-1]); err == nil {
		t.Fatal("decodeMetadata on truncated body: want error, got nil")
	}
}

func TestSecurityTableRoundTrip(t *testing.T) {
	t.Parallel()

	table := [][]byte{[]byte("sd-one"), []byte("sd-two"), {}}
	body := encodeSecurityTable(table)
	got, err := decodeSecurityTable(body)
	if err != nil {
		t.Fatalf("decodeSecurityTable: %v", err)
	}
	if len(got) != 3 || string(got[0]) != "sd-one" || string(got[1]) != "sd-two" || len(got[2]) != 0 {
		t.Fatalf("round-tripped security table = %+v", got)
	}
}

func TestImageMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	root := buildSampleTree()
	securityBlob := encodeSecurityTable([][]byte{[]byte("descriptor")})

	body := encodeImageMetadata(root, securityBlob)
	gotRoot, gotSecurity, err := decodeImageMetadata(body)
	if err != nil {
		t.Fatalf("decodeImageMetadata: %v", err)
	}
	if len(gotRoot.Children) != 2 {
		t.Fatalf("gotRoot = %+v", gotRoot)
	}
	decodedSecurity, err := decodeSecurityTable(gotSecurity)
	if err != nil {
		t.Fatalf("decodeSecurityTable(gotSecurity): %v", err)
	}
	if len(decodedSecurity) != 1 || string(decodedSecurity[0]) != "descriptor" {
		t.Fatalf("decodedSecurity = %+v", decodedSecurity)
	}
}
