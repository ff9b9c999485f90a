package preview

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/modshelf/previewcache/internal/cache"
)

// Default thumbnail bounds in pixels.
const (
	DefaultThumbWidth  = 32
	DefaultThumbHeight = 32
)

// Loader implements the read-through protocol for preview images: ask the
// cache first, and on a miss decode the file and hand the result back.
type Loader struct {
	cache  *cache.CacheManager
	width  int
	height int
	decode func(path string) (*Bitmap, error)
	logger *log.Logger
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithThumbnailSize sets the bounds thumbnails are scaled into.
func WithThumbnailSize(width, height int) LoaderOption {
	return func(l *Loader) {
		if width > 0 && height > 0 {
			l.width, l.height = width, height
		}
	}
}

// WithDecoder replaces Decode, mainly for tests.
func WithDecoder(decode func(path string) (*Bitmap, error)) LoaderOption {
	return func(l *Loader) {
		l.decode = decode
	}
}

// NewLoader returns a loader backed by cm.
func NewLoader(cm *cache.CacheManager, opts ...LoaderOption) *Loader {
	l := &Loader{
		cache:  cm,
		width:  DefaultThumbWidth,
		height: DefaultThumbHeight,
		decode: Decode,
		logger: log.Default().WithPrefix("preview"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Cache returns the cache manager the loader reads through.
func (l *Loader) Cache() *cache.CacheManager {
	return l.cache
}

// Full returns the full decoded image for path from the asset tier,
// decoding it on a miss. Concurrent misses on one path decode once.
func (l *Loader) Full(path cache.AssetPath) (*Bitmap, error) {
	img, err := l.cache.Asset().GetOrLoad(path, func() (cache.Image, error) {
		start := time.Now()
		bm, err := l.decode(string(path))
		if err != nil {
			return nil, err
		}
		l.logger.Debug("decoded image",
			"path", path,
			"format", bm.Format(),
			"width", bm.Width(),
			"height", bm.Height(),
			"took", time.Since(start))
		return bm, nil
	})
	if err != nil {
		return nil, err
	}
	return asBitmap(img)
}

// Thumbnail returns the grid thumbnail for id from the fast-path tier,
// building it from the full image at path on a miss.
func (l *Loader) Thumbnail(path cache.AssetPath, id cache.ModID) (*Bitmap, error) {
	img, err := l.cache.FastPath().GetOrLoad(id, func() (cache.Image, error) {
		full, err := l.Full(path)
		if err != nil {
			return nil, err
		}
		return Thumbnail(full, l.width, l.height), nil
	})
	if err != nil {
		return nil, err
	}
	return asBitmap(img)
}

// Reload decodes path again and overwrites both tiers, used when the file
// changed on disk. On failure the stale entries are dropped instead.
func (l *Loader) Reload(path cache.AssetPath, id cache.ModID) (*Bitmap, error) {
	full, err := l.decode(string(path))
	if err != nil {
		l.cache.Invalidate(path, id)
		return nil, err
	}

	thumb := Thumbnail(full, l.width, l.height)
	l.cache.PutAsset(path, full)
	l.cache.PutFastPath(id, thumb)
	l.logger.Debug("reloaded image", "path", path, "id", id)
	return thumb, nil
}

func asBitmap(img cache.Image) (*Bitmap, error) {
	bm, ok := img.(*Bitmap)
	if !ok || bm == nil {
		return nil, fmt.Errorf("unexpected cached image type %T", img)
	}
	return bm, nil
}
