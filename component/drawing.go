package component

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/gesture"
	"github.com/wudi/pdfannot/svgpath"
)

const (
	// DrawingScale shrinks a freehand result to its default on-page size.
	DrawingScale       = 0.15
	DefaultStroke      = "black"
	DefaultStrokeWidth = 5
)

var ErrEmptyDrawing = errors.New("drawing has no extent")

// DrawingResult is what the freehand surface returns, in its own pixels.
type DrawingResult struct {
	Path        string
	Width       float64
	Height      float64
	Stroke      string
	StrokeWidth float64
}

// NewDrawingAttachment normalizes the path to its own origin and sizes the
// attachment at DrawingScale of the path's span.
func NewDrawingAttachment(res DrawingResult) (*attachment.DrawingAttachment, error) {
	p, bounds, err := svgpath.Normalize(res.Path)
	if err != nil {
		return nil, fmt.Errorf("drawing path: %w", err)
	}
	ow, oh := bounds.Width(), bounds.Height()
	if ow <= 0 && oh <= 0 {
		return nil, ErrEmptyDrawing
	}
	// A straight stroke has one zero side; keep it drawable.
	if ow <= 0 {
		ow = oh
	}
	if oh <= 0 {
		oh = ow
	}
	stroke := res.Stroke
	if stroke == "" {
		stroke = DefaultStroke
	}
	sw := res.StrokeWidth
	if sw <= 0 {
		sw = DefaultStrokeWidth
	}
	return &attachment.DrawingAttachment{
		Base:         attachment.Base{Width: ow * DrawingScale, Height: oh * DrawingScale},
		Path:         p.String(),
		Stroke:       stroke,
		StrokeWidth:  sw,
		Scale:        DrawingScale,
		OriginWidth:  ow,
		OriginHeight: oh,
	}, nil
}

// Drawing is the drawing widget: move, eight-handle resize, wheel resize
// and a two-step delete.
type Drawing struct {
	widget
	confirm
	originW, originH float64
}

func NewDrawing(store Store, a *attachment.DrawingAttachment, page gesture.Size) *Drawing {
	d := &Drawing{originW: a.OriginWidth, originH: a.OriginHeight}
	d.init(a.ID, store, a.Bounds(), page, d.commit)
	return d
}

// ScaleFor returns the path scale that fits the origin span into r.
func ScaleFor(r gesture.Rect, originW, originH float64) float64 {
	if originW <= 0 || originH <= 0 {
		return DrawingScale
	}
	return min(r.Width/originW, r.Height/originH)
}

func (d *Drawing) commit(r gesture.Rect) {
	p := attachment.BoundsPatch(r)
	p.Scale = attachment.Float(ScaleFor(r, d.originW, d.originH))
	d.store.Update(d.id, p)
}

// Wheel resizes by one wheel tick and commits.
func (d *Drawing) Wheel(up bool) bool { return d.box.Wheel(up) }

// ConfirmDelete removes the drawing if the delete overlay is armed.
func (d *Drawing) ConfirmDelete() bool {
	if !d.confirmed() {
		return false
	}
	return d.store.Remove(d.id)
}
