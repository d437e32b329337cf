package wimarchive

import (
	"github.com/gowim/wim/blob"
	"github.com/gowim/wim/ingest"
	"github.com/gowim/wim/manifest"
	"github.com/gowim/wim/werror"
	"github.com/gowim/wim/wimhash"
)

// AllImages selects every image in an Export or Delete call, instead of
// one specific 1-based index.
const AllImages = 0

// SelectImage loads image's directory tree, if not already loaded, and
// marks it current.
func (a *Archive) SelectImage(image int) error {
	return a.catalog.Select(image, a.loadImageTree)
}

// treeStats is the recomputed DIRCOUNT/FILECOUNT/TOTALBYTES triple
// stored in a newly added image's manifest entry, restored from
// xml_windows.c's per-image counters (see the supplemented-features
// notes).
type treeStats struct {
	dirs, files, bytes int64
}

func walkStats(root *ingest.Node, table *blob.Table) (treeStats, error) {
	var s treeStats
	err := ingest.Walk(root, func(n *ingest.Node) error {
		if n.Attr.IsDir() {
			s.dirs++
			return nil
		}
		s.files++
		if u := n.UnnamedStream(); u != nil && !u.Hash.IsZero() {
			if d := table.Lookup(u.Hash); d != nil {
				s.bytes += int64(d.Location.Resource.OriginalSize)
			}
		}
		return nil
	})
	return s, err
}

// Add ingests rootPath from the local filesystem as a new image named
// name, optionally marking it bootable. name must be non-empty and
// unused by any existing image.
func (a *Archive) Add(rootPath, name string, bootable bool) error {
	if name == "" {
		return werror.New(werror.InvalidParam, "wimarchive: add: image name must not be empty")
	}
	if a.manifest.HasName(name) {
		return werror.Errorf(werror.ImageNameCollision, "wimarchive: add: image name %q already exists", name)
	}

	root, err := ingest.FromFilesystem(rootPath, a.table)
	if err != nil {
		return err
	}

	idx, err := a.catalog.Add(name, root, nil)
	if err != nil {
		return err
	}

	stats, err := walkStats(root, a.table)
	if err != nil {
		return err
	}
	a.manifest.AddImage(name, "", "", stats.dirs, stats.files, stats.bytes)

	if bootable {
		if err := a.catalog.SetBoot(idx); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes image (a 1-based catalog index) or, if image ==
// AllImages, every image in the archive, repeatedly deleting image 1
// until none remain so that catalog.Delete's boot-index adjustment runs
// correctly at each step rather than being computed once against a
// stale index set.
func (a *Archive) Delete(image int) error {
	if image == AllImages {
		for a.catalog.Count() > 0 {
			if err := a.deleteOne(1); err != nil {
				return err
			}
		}
		return nil
	}
	return a.deleteOne(image)
}

func (a *Archive) deleteOne(image int) error {
	if err := a.catalog.Select(image, a.loadImageTree); err != nil {
		return err
	}
	img, err := a.catalog.Get(image)
	if err != nil {
		return err
	}

	if err := ingest.Walk(img.Root, func(n *ingest.Node) error {
		for _, s := range n.Streams {
			if s.Hash.IsZero() {
				continue
			}
			if d := a.table.Lookup(s.Hash); d != nil {
				a.table.Decref(d)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	img.SecurityTable = nil

	if err := a.catalog.Delete(image); err != nil {
		return err
	}
	return a.manifest.DeleteImage(image)
}

// Export copies srcImage from src into dst, or every image in src if
// srcImage == AllImages, propagating the bootable flag only to src's own
// boot image (returning an error if bootable is requested for ALL but
// src has no boot image). name and description rename only the single-
// image case; they are ignored (srcInfo's own values are kept) for ALL.
func Export(src *Archive, srcImage int, dst *Archive, name, description string, bootable bool) error {
	foreign := blob.Register(src)
	used := false
	defer func() {
		if !used {
			blob.Unregister(foreign)
		}
	}()

	if srcImage == AllImages {
		if bootable && src.catalog.BootIndex() == 0 {
			return werror.New(werror.InvalidParam, "wimarchive: export: bootable requested for ALL but source archive has no boot image")
		}
		for i := 1; i <= src.catalog.Count(); i++ {
			wantBoot := bootable && i == src.catalog.BootIndex()
			if err := exportOne(src, i, dst, "", "", wantBoot, foreign, &used); err != nil {
				return err
			}
		}
		return nil
	}
	return exportOne(src, srcImage, dst, name, description, bootable, foreign, &used)
}

// exportOne implements the single-image case of Export. It first walks
// the source tree increffing every referenced blob on A's side (the
// descriptor is not going anywhere, this just records the new cross-
// archive reference), then walks again staging the B-side change: an
// Incref on a blob B already has, or a brand-new IN_ANOTHER_ARCHIVE
// descriptor for one B doesn't. The staged list is only inserted into
// dst.table once the whole walk has succeeded, so a mid-walk failure
// (an unreferenced hash, say) leaves dst.table exactly as it was.
func exportOne(src *Archive, srcImage int, dst *Archive, name, description string, bootable bool, foreign blob.ForeignHandle, used *bool) error {
	if err := src.catalog.Select(srcImage, src.loadImageTree); err != nil {
		return err
	}
	srcImg, err := src.catalog.Get(srcImage)
	if err != nil {
		return err
	}

	effectiveName := name
	if effectiveName == "" {
		if info, ok := manifestInfoByIndex(src.manifest, srcImage); ok {
			effectiveName = info.Name
		}
	}
	if dst.manifest.HasName(effectiveName) {
		return werror.Errorf(werror.ImageNameCollision, "wimarchive: export: image name %q already exists in destination", effectiveName)
	}

	if err := ingest.Walk(srcImg.Root, func(n *ingest.Node) error {
		for _, s := range n.Streams {
			if s.Hash.IsZero() {
				continue
			}
			if d := src.table.Lookup(s.Hash); d != nil {
				src.table.Incref(d)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	var staged []*blob.Descriptor
	var toIncref []*blob.Descriptor
	stagedByHash := make(map[wimhash.Hash]*blob.Descriptor)

	if err := ingest.Walk(srcImg.Root, func(n *ingest.Node) error {
		for _, s := range n.Streams {
			if s.Hash.IsZero() {
				continue
			}
			if existing := dst.table.Lookup(s.Hash); existing != nil {
				toIncref = append(toIncref, existing)
				continue
			}
			if d, ok := stagedByHash[s.Hash]; ok {
				// a second reference, within the same exported tree, to
				// a blob that is itself new to dst: the staged
				// descriptor isn't in dst.table yet for Lookup to find,
				// so track repeats locally instead of double-staging.
				d.Refcnt++
				continue
			}
			srcDesc := src.table.Lookup(s.Hash)
			if srcDesc == nil {
				return werror.Errorf(werror.InvalidResourceHash, "wimarchive: export: stream %s referenced by tree has no blob-table entry", s.Hash)
			}
			d := &blob.Descriptor{
				Hash:   s.Hash,
				Refcnt: 1,
				Location: blob.Location{
					Kind:     blob.InAnotherArchive,
					Foreign:  foreign,
					Resource: srcDesc.Location.Resource,
				},
			}
			staged = append(staged, d)
			stagedByHash[s.Hash] = d
		}
		return nil
	}); err != nil {
		return err
	}

	for _, d := range staged {
		if err := dst.table.Insert(d); err != nil {
			return err
		}
	}
	for _, d := range toIncref {
		dst.table.Incref(d)
	}
	if len(staged) > 0 {
		*used = true
	}

	idx, err := dst.catalog.Add(effectiveName, srcImg.Root, srcImg.SecurityTable)
	if err != nil {
		return err
	}
	if _, err := dst.manifest.ExportImage(src.manifest, srcImage, name, description); err != nil {
		return err
	}
	if bootable {
		if err := dst.catalog.SetBoot(idx); err != nil {
			return err
		}
	}

	return nil
}

func manifestInfoByIndex(m *manifest.Manifest, index int) (*manifest.ImageInfo, bool) {
	for _, info := range m.Images {
		if info.Index == index {
			return info, true
		}
	}
	return nil, false
}
