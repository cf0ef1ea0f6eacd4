package detection

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/menta2k/cropmatrix/pkg/types"
)

// DefaultCacheSize is the number of images whose faces are remembered
const DefaultCacheSize = 32

// ImageKey identifies image content independent of the image value
type ImageKey [sha256.Size]byte

// KeyOf hashes the dimensions and pixels of img
func KeyOf(img image.Image) ImageKey {
	h := sha256.New()
	b := img.Bounds()
	var dims [16]byte
	binary.LittleEndian.PutUint64(dims[:8], uint64(b.Dx()))
	binary.LittleEndian.PutUint64(dims[8:], uint64(b.Dy()))
	h.Write(dims[:])

	switch src := img.(type) {
	case *image.NRGBA:
		writeRows(h.Write, src.Pix, src.Stride, b.Dx()*4, b.Dy())
	case *image.RGBA:
		writeRows(h.Write, src.Pix, src.Stride, b.Dx()*4, b.Dy())
	case *image.Gray:
		writeRows(h.Write, src.Pix, src.Stride, b.Dx(), b.Dy())
	default:
		dst := imaging.Clone(img)
		h.Write(dst.Pix)
	}

	var key ImageKey
	copy(key[:], h.Sum(nil))
	return key
}

// sub-images share Pix with their parent, so hash row by row
func writeRows(write func([]byte) (int, error), pix []byte, stride, rowLen, rows int) {
	for y := 0; y < rows; y++ {
		off := y * stride
		write(pix[off : off+rowLen])
	}
}

type cacheEntry struct {
	key   ImageKey
	faces []types.Face
}

// FaceCache is a bounded LRU of detection results. An empty result is
// cached too, so a face-less image is not scanned twice.
type FaceCache struct {
	mu      sync.Mutex
	size    int
	order   *list.List
	entries map[ImageKey]*list.Element
}

// NewFaceCache creates a cache holding at most size images
func NewFaceCache(size int) *FaceCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &FaceCache{
		size:    size,
		order:   list.New(),
		entries: make(map[ImageKey]*list.Element, size),
	}
}

// Get returns the cached faces for key and marks it recently used
func (c *FaceCache) Get(key ImageKey) ([]types.Face, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return cloneFaces(el.Value.(*cacheEntry).faces), true
}

// Put stores faces for key, evicting the least recently used entry when full
func (c *FaceCache) Put(key ImageKey, faces []types.Face) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).faces = cloneFaces(faces)
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, faces: cloneFaces(faces)})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Evict drops a single entry
func (c *FaceCache) Evict(key ImageKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
}

// Purge empties the cache
func (c *FaceCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[ImageKey]*list.Element, c.size)
}

// Len returns the number of cached images
func (c *FaceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func cloneFaces(faces []types.Face) []types.Face {
	if len(faces) == 0 {
		return nil
	}
	return append([]types.Face(nil), faces...)
}

// CachedDetector memoizes another detector by image content
type CachedDetector struct {
	inner FaceDetector
	cache *FaceCache
}

// NewCachedDetector wraps inner with cache; a nil cache gets the default size
func NewCachedDetector(inner FaceDetector, cache *FaceCache) *CachedDetector {
	if cache == nil {
		cache = NewFaceCache(DefaultCacheSize)
	}
	return &CachedDetector{inner: inner, cache: cache}
}

// Detect implements FaceDetector. Failed detections are not cached.
func (d *CachedDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	key := KeyOf(img)
	if faces, ok := d.cache.Get(key); ok {
		return faces, nil
	}
	faces, err := d.inner.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	d.cache.Put(key, faces)
	return cloneFaces(faces), nil
}

// Cached returns previously detected faces without running detection
func (d *CachedDetector) Cached(img image.Image) ([]types.Face, bool) {
	return d.cache.Get(KeyOf(img))
}

// Forget evicts img from the cache
func (d *CachedDetector) Forget(img image.Image) {
	d.cache.Evict(KeyOf(img))
}

// Cache exposes the underlying cache
func (d *CachedDetector) Cache() *FaceCache {
	return d.cache
}
