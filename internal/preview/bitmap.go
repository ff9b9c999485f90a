// Package preview decodes preview images and serves them through the cache:
// full decodes go to the asset tier, grid thumbnails to the fast-path tier.
package preview

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"

	"github.com/modshelf/previewcache/internal/cache"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// ErrUnsupportedFormat is returned for files no registered decoder accepts.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Bitmap is a decoded image. It is immutable once constructed and may be
// shared freely between the cache and any number of readers.
type Bitmap struct {
	img    image.Image
	format string
}

var _ cache.Image = (*Bitmap)(nil)

// NewBitmap wraps an already decoded image.
func NewBitmap(img image.Image, format string) *Bitmap {
	return &Bitmap{img: img, format: format}
}

// Width returns the width in pixels.
func (b *Bitmap) Width() int {
	if b == nil || b.img == nil {
		return 0
	}
	return b.img.Bounds().Dx()
}

// Height returns the height in pixels.
func (b *Bitmap) Height() int {
	if b == nil || b.img == nil {
		return 0
	}
	return b.img.Bounds().Dy()
}

// Image returns the underlying pixels. Callers must not modify them.
func (b *Bitmap) Image() image.Image {
	return b.img
}

// Format returns the name of the decoder that produced the bitmap.
func (b *Bitmap) Format() string {
	return b.format
}

// Decode reads and decodes the image at path.
func Decode(path string) (*Bitmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open image: %w", err)
	}
	defer f.Close() //nolint:errcheck

	img, format, err := image.Decode(f)
	if errors.Is(err, image.ErrFormat) {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", path, err)
	}
	return NewBitmap(img, format), nil
}

// Thumbnail scales src to fit within width x height, keeping its aspect
// ratio. Images that already fit are returned unchanged.
func Thumbnail(src *Bitmap, width, height int) *Bitmap {
	sw, sh := src.Width(), src.Height()
	if sw == 0 || sh == 0 || width <= 0 || height <= 0 {
		return src
	}
	if sw <= width && sh <= height {
		return src
	}

	tw, th := width, sh*width/sw
	if th > height {
		tw, th = sw*height/sh, height
	}
	tw, th = max(tw, 1), max(th, 1)

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src.img, src.img.Bounds(), draw.Src, nil)
	return NewBitmap(dst, src.format)
}
