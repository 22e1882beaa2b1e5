package builder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/wudi/pdfannot/filters"
	"github.com/wudi/pdfannot/ir/raw"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

// Image is an image XObject ready to be written. Build one per source and
// reuse it; an Overlay writes each Image once.
type Image struct {
	Width  int
	Height int

	stream *raw.StreamObj
	smask  *raw.StreamObj
}

// NewImage converts encoded image bytes. JPEG data is embedded as is with
// DCTDecode; PNG is decoded and re-compressed with its alpha channel split
// into a soft mask. Other types return ErrUnsupportedImage.
func NewImage(data []byte, mime string) (*Image, error) {
	switch mime {
	case "image/jpeg", "image/jpg":
		return jpegImage(data)
	case "image/png":
		src, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode png: %w", err)
		}
		return FromImage(src)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedImage, mime)
}

func jpegImage(data []byte) (*Image, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	d := imageDict(cfg.Width, cfg.Height)
	switch cfg.ColorModel {
	case color.GrayModel:
		d.Put("ColorSpace", raw.NameLiteral("DeviceGray"))
	case color.CMYKModel:
		d.Put("ColorSpace", raw.NameLiteral("DeviceCMYK"))
		// Adobe writes CMYK JPEGs inverted.
		d.Put("Decode", raw.Numbers(1, 0, 1, 0, 1, 0, 1, 0))
	default:
		d.Put("ColorSpace", raw.NameLiteral("DeviceRGB"))
	}
	d.Put("Filter", raw.NameLiteral("DCTDecode"))
	return &Image{Width: cfg.Width, Height: cfg.Height, stream: raw.NewStream(d, data)}, nil
}

// FromImage converts a decoded image to flate-compressed RGB samples. Any
// transparency becomes a DeviceGray soft mask.
func FromImage(src image.Image) (*Image, error) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("image has no pixels")
	}

	// Non-premultiplied, so color samples are independent of alpha.
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		off := i * 4
		pixels = append(pixels, nrgba.Pix[off], nrgba.Pix[off+1], nrgba.Pix[off+2])
		a := nrgba.Pix[off+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}

	stream, err := flateImage(w, h, "DeviceRGB", pixels)
	if err != nil {
		return nil, err
	}
	img := &Image{Width: w, Height: h, stream: stream}
	if hasAlpha {
		if img.smask, err = flateImage(w, h, "DeviceGray", alpha); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func flateImage(w, h int, cs string, samples []byte) (*raw.StreamObj, error) {
	enc, err := filters.FlateEncode(samples)
	if err != nil {
		return nil, fmt.Errorf("compress image: %w", err)
	}
	d := imageDict(w, h)
	d.Put("ColorSpace", raw.NameLiteral(cs))
	d.Put("Filter", raw.NameLiteral("FlateDecode"))
	return raw.NewStream(d, enc), nil
}

func imageDict(w, h int) *raw.DictObj {
	d := raw.Dict()
	d.Put("Type", raw.NameLiteral("XObject"))
	d.Put("Subtype", raw.NameLiteral("Image"))
	d.Put("Width", raw.NumberInt(int64(w)))
	d.Put("Height", raw.NumberInt(int64(h)))
	d.Put("BitsPerComponent", raw.NumberInt(8))
	return d
}
