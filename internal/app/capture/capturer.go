package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/jpeg"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"
)

// Config represents capture configuration.
type Config struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// Capturer turns the current frame of a source into a base64 JPEG.
type Capturer struct {
	source Source
	config Config
}

// NewCapturer creates a new Capturer. Zero config values fall back to 1280x720 at quality 85.
func NewCapturer(source Source, cfg Config) *Capturer {
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 1280
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = 720
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 85
	}
	return &Capturer{source: source, config: cfg}
}

// Source returns the underlying source.
func (c *Capturer) Source() Source {
	return c.source
}

// Capture grabs the current frame, fits it into the configured resolution
// and returns it as base64 encoded JPEG.
func (c *Capturer) Capture(ctx context.Context) (string, error) {
	frame, err := c.source.Frame(ctx)
	if err != nil {
		return "", err
	}

	b := frame.Bounds()
	if b.Empty() {
		return "", ErrNotReady
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fit(frame, c.config.MaxWidth, c.config.MaxHeight), &jpeg.Options{Quality: c.config.Quality}); err != nil {
		return "", errors.Wrap(err, "failed to encode frame")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// fit scales the image down to fit within maxW x maxH, preserving the aspect ratio.
// Smaller images are returned as is.
func fit(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return src
	}

	nw, nh := maxW, h*maxW/w
	if nh > maxH {
		nw, nh = w*maxH/h, maxH
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
