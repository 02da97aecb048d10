package imaging

import (
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/ironsheep/region-lens/internal/failure"
)

// Photo is a decoded source image. It is immutable once loaded and is shared
// by every pipeline stage; stages borrow it and never write to it.
type Photo struct {
	Path   string
	Format string
	Image  image.Image
}

// Size returns the photo's pixel dimensions.
func (p *Photo) Size() Size { return SizeOf(p.Image) }

// PhotoInfo is the metadata returned for a loaded photo.
type PhotoInfo struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Format        string `json:"format"`
	HasAlpha      bool   `json:"has_alpha"`
	FileSizeBytes int64  `json:"file_size_bytes"`
}

// PhotoCache keeps decoded photos keyed by path so that repeated pipeline runs
// over the same file skip the decode.
//
// PhotoCache is safe for concurrent use. It holds at most maxEntries photos
// and evicts the oldest insertion first.
type PhotoCache struct {
	mu         sync.RWMutex
	photos     map[string]*Photo
	order      []string
	maxEntries int
}

// DefaultCacheEntries bounds a cache created by NewPhotoCache(0).
const DefaultCacheEntries = 16

// NewPhotoCache creates an empty cache. maxEntries <= 0 selects
// DefaultCacheEntries.
func NewPhotoCache(maxEntries int) *PhotoCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &PhotoCache{
		photos:     make(map[string]*Photo),
		maxEntries: maxEntries,
	}
}

// Load returns the cached photo for path or decodes it from disk.
//
// Supported formats are PNG, JPEG and GIF. The format is detected from the
// file contents. A file that cannot be decoded, or that decodes to an empty
// image, yields failure.ErrDecodeFailure.
func (c *PhotoCache) Load(path string) (*Photo, error) {
	c.mu.RLock()
	if p, ok := c.photos[path]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image")
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, failure.Wrapf(failure.ErrDecodeFailure, "decode %s: %v", path, err)
	}
	if img.Bounds().Empty() {
		return nil, failure.Wrapf(failure.ErrDecodeFailure, "decode %s: empty image", path)
	}

	p := &Photo{Path: path, Format: format, Image: img}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.photos[path]; ok {
		return existing, nil
	}
	c.photos[path] = p
	c.order = append(c.order, path)
	for len(c.order) > c.maxEntries {
		delete(c.photos, c.order[0])
		c.order = c.order[1:]
	}
	return p, nil
}

// Len returns the number of cached photos.
func (c *PhotoCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.photos)
}

// Clear drops every cached photo.
func (c *PhotoCache) Clear() {
	c.mu.Lock()
	c.photos = make(map[string]*Photo)
	c.order = nil
	c.mu.Unlock()
}

// Evict drops one photo. Unknown paths are ignored.
func (c *PhotoCache) Evict(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.photos[path]; !ok {
		return
	}
	delete(c.photos, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Info loads path and describes it.
func (c *PhotoCache) Info(path string) (*PhotoInfo, error) {
	p, err := c.Load(path)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat file")
	}

	hasAlpha := false
	switch p.Image.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64, *image.Paletted:
		hasAlpha = true
	}

	b := p.Image.Bounds()
	return &PhotoInfo{
		Width:         b.Dx(),
		Height:        b.Dy(),
		Format:        p.Format,
		HasAlpha:      hasAlpha,
		FileSizeBytes: stat.Size(),
	}, nil
}
