package service

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ImageOptimizer downsizes images whose longest edge exceeds a limit.
type ImageOptimizer struct {
	maxDimension int
	jpegQuality  int
}

// NewImageOptimizer returns nil when maxDimension is not positive, which
// disables optimisation.
func NewImageOptimizer(maxDimension int) *ImageOptimizer {
	if maxDimension <= 0 {
		return nil
	}
	return &ImageOptimizer{maxDimension: maxDimension, jpegQuality: 85}
}

// Optimize returns a resized copy of data when it is a JPEG, PNG or GIF larger
// than the configured dimension. Other inputs are returned unchanged.
func (o *ImageOptimizer) Optimize(data []byte, mimeType string) ([]byte, bool, error) {
	if o == nil {
		return data, false, nil
	}
	format, ok := imageFormat(mimeType)
	if !ok {
		return data, false, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("read image header: %w", err)
	}
	if cfg.Width <= o.maxDimension && cfg.Height <= o.maxDimension {
		return data, false, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, false, fmt.Errorf("decode image: %w", err)
	}
	resized := imaging.Fit(img, o.maxDimension, o.maxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(o.jpegQuality)); err != nil {
		return nil, false, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), true, nil
}

func imageFormat(mimeType string) (imaging.Format, bool) {
	switch mimeType {
	case "image/jpeg":
		return imaging.JPEG, true
	case "image/png":
		return imaging.PNG, true
	case "image/gif":
		return imaging.GIF, true
	}
	return 0, false
}
