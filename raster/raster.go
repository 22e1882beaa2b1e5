// Package raster decodes uploaded images and re-renders them at the size an
// image attachment is displayed at.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPreview bounds both dimensions of a newly fitted image.
const MaxPreview = 300

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
)

var (
	ErrUnknownFormat = errors.New("unrecognized image format")
	ErrEmptyImage    = errors.New("image has no pixels")
)

// JPEGQuality is used when re-encoding JPEG sources.
var JPEGQuality = 92

// Result is a re-encoded image and the size it was rendered at.
type Result struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Decode reads any registered format (JPEG, PNG, GIF, BMP, TIFF, WebP) and
// returns the image with the MIME type it should be re-encoded as: JPEG
// stays JPEG, everything else becomes PNG.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnknownFormat
		}
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if format == "jpeg" {
		return img, MIMEJPEG, nil
	}
	return img, MIMEPNG, nil
}

// Sniff reports the MIME type of encoded image bytes without decoding
// pixels. Unknown formats return "".
func Sniff(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return "image/" + format
}

// Fit scales (w, h) down, keeping the aspect ratio, so neither side exceeds
// max. Sizes already inside the bound are returned unchanged.
func Fit(w, h, max float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := math.Min(max/w, max/h)
	if scale >= 1 {
		return w, h
	}
	return w * scale, h * scale
}

// Rasterize renders img into a width x height canvas and encodes it as
// mime (JPEG or PNG). Sizes are rounded to whole pixels, never below one.
func Rasterize(img image.Image, width, height float64, mime string) (Result, error) {
	if img == nil || img.Bounds().Empty() {
		return Result{}, ErrEmptyImage
	}
	w := pixels(width)
	h := pixels(height)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if mime == MIMEJPEG {
		// JPEG has no alpha; composite onto white like a canvas export.
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	switch mime {
	case MIMEJPEG:
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
			return Result{}, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		mime = MIMEPNG
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, dst); err != nil {
			return Result{}, fmt.Errorf("encode png: %w", err)
		}
	}
	return Result{Data: buf.Bytes(), MIME: mime, Width: w, Height: h}, nil
}

func pixels(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}
