// Package attachment holds the overlay data model: text, image and drawing
// attachments partitioned by page, and the Store that owns them while a
// document is being edited.
package attachment

import (
	"image"

	"github.com/wudi/pdfannot/gesture"
)

type Kind string

const (
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindDrawing Kind = "drawing"
)

// Box is an attachment's position and size in page space.
type Box = gesture.Rect

// File is an encoded image as handed over by an upload or a signature
// picker.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Attachment is one overlay element. The concrete types are
// *TextAttachment, *ImageAttachment and *DrawingAttachment.
type Attachment interface {
	Kind() Kind
	Bounds() Box
	SetBounds(Box)
	Clone() Attachment
	common() *Base
	apply(Patch)
}

// ID returns the store-assigned identifier of a.
func ID(a Attachment) string { return a.common().ID }

// Base carries the fields every attachment has.
type Base struct {
	ID                  string
	X, Y, Width, Height float64
}

func (b *Base) Bounds() Box { return Box{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height} }

func (b *Base) SetBounds(r Box) { b.X, b.Y, b.Width, b.Height = r.X, r.Y, r.Width, r.Height }

func (b *Base) common() *Base { return b }

func (b *Base) applyBase(p Patch) {
	setFloat(&b.X, p.X)
	setFloat(&b.Y, p.Y)
	setFloat(&b.Width, p.Width)
	setFloat(&b.Height, p.Height)
}

type TextAttachment struct {
	Base
	Text string
	// Lines is the text as committed by the editor; the serializer rewraps
	// Text at Width.
	Lines      []string
	Size       float64
	LineHeight float64 // multiple of Size
	FontFamily string
}

func (t *TextAttachment) Kind() Kind { return KindText }

func (t *TextAttachment) Clone() Attachment {
	c := *t
	c.Lines = append([]string(nil), t.Lines...)
	return &c
}

func (t *TextAttachment) apply(p Patch) {
	t.applyBase(p)
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Lines != nil {
		t.Lines = append([]string(nil), p.Lines...)
	}
	setFloat(&t.Size, p.Size)
	setFloat(&t.LineHeight, p.LineHeight)
	if p.FontFamily != nil {
		t.FontFamily = *p.FontFamily
	}
}

type ImageAttachment struct {
	Base
	File File
	// Img is the decoded bitmap the preview and File are rendered from.
	Img image.Image
}

func (i *ImageAttachment) Kind() Kind { return KindImage }

func (i *ImageAttachment) Clone() Attachment {
	c := *i
	c.File.Data = append([]byte(nil), i.File.Data...)
	return &c
}

func (i *ImageAttachment) apply(p Patch) {
	i.applyBase(p)
	if p.File != nil {
		i.File = *p.File
	}
	if p.Img != nil {
		i.Img = p.Img
	}
}

// DrawingAttachment is a freehand path normalized to its own origin. Path
// coordinates are multiplied by Scale when drawn.
type DrawingAttachment struct {
	Base
	Path         string
	Stroke       string
	StrokeWidth  float64
	Scale        float64
	OriginWidth  float64
	OriginHeight float64
}

func (d *DrawingAttachment) Kind() Kind { return KindDrawing }

func (d *DrawingAttachment) Clone() Attachment {
	c := *d
	return &c
}

// SetBounds moves and resizes the drawing. A size change rescales the path
// so it still fits the box.
func (d *DrawingAttachment) SetBounds(r Box) {
	resized := r.Width != d.Width || r.Height != d.Height
	d.Base.SetBounds(r)
	if resized && d.OriginWidth > 0 && d.OriginHeight > 0 {
		d.Scale = min(r.Width/d.OriginWidth, r.Height/d.OriginHeight)
	}
}

func (d *DrawingAttachment) apply(p Patch) {
	d.applyBase(p)
	if p.Path != nil {
		d.Path = *p.Path
	}
	if p.Stroke != nil {
		d.Stroke = *p.Stroke
	}
	setFloat(&d.StrokeWidth, p.StrokeWidth)
	setFloat(&d.Scale, p.Scale)
}

// Patch lists optional field updates. Fields that do not exist on the
// target's kind are ignored.
type Patch struct {
	X, Y, Width, Height *float64

	Text       *string
	Lines      []string
	Size       *float64
	LineHeight *float64
	FontFamily *string

	File *File
	Img  image.Image

	Path        *string
	Stroke      *string
	StrokeWidth *float64
	Scale       *float64
}

// BoundsPatch sets all four geometry fields.
func BoundsPatch(r Box) Patch {
	return Patch{X: Float(r.X), Y: Float(r.Y), Width: Float(r.Width), Height: Float(r.Height)}
}

func Float(v float64) *float64 { return &v }
func String(v string) *string  { return &v }

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
