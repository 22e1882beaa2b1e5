package component

import (
	"fmt"
	"image"

	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/gesture"
	"github.com/wudi/pdfannot/observability"
	"github.com/wudi/pdfannot/raster"
)

// NewImageAttachment decodes file and fits it into MaxPreview (and the
// page), re-encoding it at the fitted size. The stored size is always the
// rendered size.
func NewImageAttachment(file attachment.File, page gesture.Size) (*attachment.ImageAttachment, error) {
	img, mime, err := raster.Decode(file.Data)
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", file.Name, err)
	}
	b := img.Bounds()
	w, h := raster.Fit(float64(b.Dx()), float64(b.Dy()), raster.MaxPreview)
	if page.Width > 0 && page.Height > 0 {
		w, h = fitInto(w, h, page)
	}
	res, err := raster.Rasterize(img, w, h, mime)
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", file.Name, err)
	}
	return &attachment.ImageAttachment{
		Base: attachment.Base{Width: float64(res.Width), Height: float64(res.Height)},
		File: attachment.File{Name: file.Name, MIME: res.MIME, Data: res.Data},
		Img:  img,
	}, nil
}

func fitInto(w, h float64, page gesture.Size) (float64, float64) {
	if w <= page.Width && h <= page.Height {
		return w, h
	}
	s := min(page.Width/w, page.Height/h)
	return w * s, h * s
}

// Image is the image widget. Every committed resize re-renders the bitmap
// at the new size so the embedded bytes match what is displayed.
type Image struct {
	widget
	confirm
	img  image.Image
	name string
	mime string
	log  observability.Logger
}

func NewImage(store Store, a *attachment.ImageAttachment, page gesture.Size) *Image {
	i := &Image{img: a.Img, name: a.File.Name, mime: a.File.MIME, log: observability.NopLogger{}}
	i.init(a.ID, store, a.Bounds(), page, i.commit)
	return i
}

// SetLogger receives re-render failures. A nil l discards them.
func (i *Image) SetLogger(l observability.Logger) { i.log = observability.OrNop(l) }

// commit stores the size the bitmap was actually rendered at. When
// rendering fails the box still moves and the previous bytes are kept.
func (i *Image) commit(r gesture.Rect) {
	p := attachment.BoundsPatch(r)
	if i.img != nil {
		res, err := raster.Rasterize(i.img, r.Width, r.Height, i.mime)
		if err != nil {
			i.log.Warn("image re-render failed, keeping previous bitmap",
				observability.String("id", i.id),
				observability.Error("error", err))
		} else {
			p = attachment.BoundsPatch(gesture.Rect{X: r.X, Y: r.Y, Width: float64(res.Width), Height: float64(res.Height)})
			p.File = &attachment.File{Name: i.name, MIME: res.MIME, Data: res.Data}
		}
	}
	i.store.Update(i.id, p)
}

// SetImage swaps the bitmap and re-renders it at the current size.
func (i *Image) SetImage(img image.Image) bool {
	i.img = img
	r := i.Rect()
	res, err := raster.Rasterize(img, r.Width, r.Height, i.mime)
	if err != nil {
		i.log.Warn("image re-render failed", observability.String("id", i.id), observability.Error("error", err))
		return false
	}
	return i.store.Update(i.id, attachment.Patch{
		Img:  img,
		File: &attachment.File{Name: i.name, MIME: res.MIME, Data: res.Data},
	})
}

// ConfirmDelete removes the image if the delete overlay is armed.
func (i *Image) ConfirmDelete() bool {
	if !i.confirmed() {
		return false
	}
	return i.store.Remove(i.id)
}
