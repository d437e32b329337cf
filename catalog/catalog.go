// Package catalog implements the per-archive image catalog: an ordered,
// 1-indexed array of image metadata records, the currently-selected
// image, and the boot index, including the adjustment rule that keeps
// the boot index correct across deletes.
//
// The array itself generalizes the teacher's single embedded superblock
// (internal/squashfs's one Reader/Writer per image) to many images per
// archive; the boot-index shift rule has no teacher analogue and follows
// directly from the stated rule for this format.
package catalog

import (
	"github.com/gowim/wim/ingest"
	"github.com/gowim/wim/resource"
	"github.com/gowim/wim/werror"
)

// Image is one entry in the catalog: the in-memory directory tree once
// loaded (nil until Select loads it), the metadata resource describing
// where that tree lives on disk, and the display name used for
// collision checks on Add.
type Image struct {
	Name           string
	Root           *ingest.Node
	MetadataEntry  resource.Entry
	SecurityTable  []byte // raw security descriptor table blob, opaque here
}

// Catalog holds the ordered image array for one archive. Images are
// addressed by a 1-based index; index 0 never names an image and is
// used as the "no boot image" sentinel.
type Catalog struct {
	images       []*Image // images[i] is image index i+1
	currentImage int      // 0 means none selected
	bootIndex    int
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{}
}

// Count returns the number of images currently in the catalog.
func (c *Catalog) Count() int {
	return len(c.images)
}

// BootIndex returns the current boot index, or 0 if no image is marked
// bootable.
func (c *Catalog) BootIndex() int {
	return c.bootIndex
}

// CurrentImage returns the index of the currently selected image, or 0
// if none is selected.
func (c *Catalog) CurrentImage() int {
	return c.currentImage
}

func (c *Catalog) valid(image int) bool {
	return image >= 1 && image <= len(c.images)
}

// Get returns the Image at the given 1-based index.
func (c *Catalog) Get(image int) (*Image, error) {
	if !c.valid(image) {
		return nil, werror.Errorf(werror.InvalidParam, "catalog: image index %d out of range [1,%d]", image, len(c.images))
	}
	return c.images[image-1], nil
}

// LoadFunc lazily materializes an image's directory tree from its
// metadata resource; Select calls it only when Root is still nil.
type LoadFunc func(*Image) (*ingest.Node, error)

// Select loads image's metadata tree (via load, if not already loaded)
// and sets it as the current image. Selecting the already-current image
// is a no-op beyond re-confirming it is still loaded.
func (c *Catalog) Select(image int, load LoadFunc) error {
	img, err := c.Get(image)
	if err != nil {
		return err
	}
	if img.Root == nil {
		root, err := load(img)
		if err != nil {
			return err
		}
		img.Root = root
	}
	c.currentImage = image
	return nil
}

// Add appends a new image built from root, with the given name and
// security table, returning its new 1-based index. name must not
// collide with an existing image's name.
func (c *Catalog) Add(name string, root *ingest.Node, securityTable []byte) (int, error) {
	for _, img := range c.images {
		if img.Name == name {
			return 0, werror.Errorf(werror.ImageNameCollision, "catalog: image name %q already exists", name)
		}
	}
	c.images = append(c.images, &Image{Name: name, Root: root, SecurityTable: securityTable})
	return len(c.images), nil
}

// Delete removes the image at the given 1-based index. The caller is
// responsible for decrementing blob refcounts for every stream the
// image's tree referenced before calling Delete (the walk itself lives
// in the wimarchive orchestrator, which has access to the blob table);
// Delete only performs the catalog-local bookkeeping: array shift,
// boot-index adjustment, and current-image invalidation.
func (c *Catalog) Delete(image int) error {
	if !c.valid(image) {
		return werror.Errorf(werror.InvalidParam, "catalog: image index %d out of range [1,%d]", image, len(c.images))
	}
	c.images = append(c.images[:image-1], c.images[image:]...)

	switch {
	case c.bootIndex == image:
		c.bootIndex = 0
	case c.bootIndex > image:
		c.bootIndex--
	}

	c.currentImage = 0
	return nil
}

// SetBoot marks image as the archive's boot image, or clears the boot
// index if image is 0.
func (c *Catalog) SetBoot(image int) error {
	if image == 0 {
		c.bootIndex = 0
		return nil
	}
	if !c.valid(image) {
		return werror.Errorf(werror.InvalidParam, "catalog: image index %d out of range [1,%d]", image, len(c.images))
	}
	c.bootIndex = image
	return nil
}
