package cache

import (
	"github.com/charmbracelet/log"
)

// bytesPerPixel assumes RGBA storage. It is an approximation, not an exact
// accounting of the decoder's memory.
const bytesPerPixel = 4

// EstimateSize returns the approximate in-memory footprint of img in bytes:
// width * height * 4. It never fails; nil images, non-positive dimensions
// and panicking dimension queries all estimate to 0.
func EstimateSize(img Image) int64 {
	return estimateSize(img, log.Default())
}

func estimateSize(img Image, logger *log.Logger) (size int64) {
	if img == nil {
		return 0
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("image size estimation failed", "panic", r)
			size = 0
		}
	}()

	w, h := img.Width(), img.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return int64(w) * int64(h) * bytesPerPixel
}
