package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/component"
	"github.com/wudi/pdfannot/fonts"
	"github.com/wudi/pdfannot/gesture"
	"github.com/wudi/pdfannot/loader"
	"github.com/wudi/pdfannot/observability"
	"github.com/wudi/pdfannot/raster"
)

// annotationDoc is the apply command's input: one attachment list per page,
// in page-space coordinates.
type annotationDoc struct {
	Pages [][]entry `json:"pages"`

	// dir resolves relative image paths.
	dir string
}

type entry struct {
	Type   attachment.Kind `json:"type"`
	X      float64         `json:"x"`
	Y      float64         `json:"y"`
	Width  float64         `json:"width,omitempty"`
	Height float64         `json:"height,omitempty"`

	Text       string  `json:"text,omitempty"`
	Size       float64 `json:"size,omitempty"`
	LineHeight float64 `json:"lineHeight,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`

	File string `json:"file,omitempty"`

	Path        string  `json:"path,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Scale       float64 `json:"scale,omitempty"`
}

func decodeAnnotations(f *os.File) (*annotationDoc, error) {
	doc, err := readAnnotations(f)
	if err != nil {
		return nil, err
	}
	doc.dir = filepath.Dir(f.Name())
	return doc, nil
}

func readAnnotations(r io.Reader) (*annotationDoc, error) {
	var doc annotationDoc
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode annotations: %w", err)
	}
	return &doc, nil
}

// attachments builds the entries through an attachment store, so they are
// clamped to their pages exactly as interactive edits would be.
func (d *annotationDoc) attachments(pdf *loader.PdfDocument, defaultFont string, logger observability.Logger) ([][]attachment.Attachment, error) {
	if len(d.Pages) > pdf.PageCount() {
		return nil, fmt.Errorf("annotations for %d pages, document has %d", len(d.Pages), pdf.PageCount())
	}
	store := attachment.NewStore(pdf.PageCount(), attachment.WithLogger(logger))
	store.SetPageSizes(pdf.Sizes())
	registry := fonts.NewRegistry()
	for i, list := range d.Pages {
		if err := store.SetPageIndex(i); err != nil {
			return nil, err
		}
		page, _ := pdf.Page(i)
		for j, e := range list {
			a, err := d.build(e, page.Size(), registry, defaultFont)
			if err != nil {
				return nil, fmt.Errorf("page %d entry %d: %w", i+1, j+1, err)
			}
			store.Add(a)
		}
	}
	return store.All(), nil
}

func (d *annotationDoc) build(e entry, page gesture.Size, registry *fonts.Registry, defaultFont string) (attachment.Attachment, error) {
	switch e.Type {
	case attachment.KindText:
		return d.text(e, page, registry, defaultFont)
	case attachment.KindImage:
		return d.image(e, page)
	case attachment.KindDrawing:
		return d.drawing(e)
	}
	return nil, fmt.Errorf("unknown attachment type %q", e.Type)
}

func (d *annotationDoc) text(e entry, page gesture.Size, registry *fonts.Registry, defaultFont string) (attachment.Attachment, error) {
	family := e.FontFamily
	if family == "" {
		family = defaultFont
	}
	f, err := registry.Lookup(family)
	if err != nil {
		return nil, err
	}
	a := component.NewTextAttachment(gesture.Point{X: e.X, Y: e.Y}, f, family)
	a.Text = e.Text
	a.Lines = []string{e.Text}
	if e.Size > 0 {
		a.Size = e.Size
	}
	if e.LineHeight > 0 {
		a.LineHeight = e.LineHeight
	}
	a.Width = e.Width
	if a.Width <= 0 {
		a.Width = page.Width - e.X
	}
	lines := fonts.Layout(f, a.Text, a.Size, a.Width)
	a.Height = max(e.Height, fonts.Height(len(lines), a.Size, a.LineHeight))
	return a, nil
}

func (d *annotationDoc) image(e entry, page gesture.Size) (attachment.Attachment, error) {
	path := e.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a, err := component.NewImageAttachment(attachment.File{Name: filepath.Base(path), Data: data}, page)
	if err != nil {
		return nil, err
	}
	a.X, a.Y = e.X, e.Y
	if e.Width > 0 && e.Height > 0 {
		res, err := raster.Rasterize(a.Img, e.Width, e.Height, a.File.MIME)
		if err != nil {
			return nil, err
		}
		a.Width, a.Height = float64(res.Width), float64(res.Height)
		a.File.Data, a.File.MIME = res.Data, res.MIME
	}
	return a, nil
}

func (d *annotationDoc) drawing(e entry) (attachment.Attachment, error) {
	a, err := component.NewDrawingAttachment(component.DrawingResult{
		Path:        e.Path,
		Stroke:      e.Stroke,
		StrokeWidth: e.StrokeWidth,
	})
	if err != nil {
		return nil, err
	}
	a.X, a.Y = e.X, e.Y
	if e.Scale > 0 {
		a.Scale = e.Scale
		a.Width, a.Height = a.OriginWidth*e.Scale, a.OriginHeight*e.Scale
	}
	return a, nil
}
