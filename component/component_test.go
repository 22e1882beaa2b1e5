package component

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/gesture"
	"github.com/wudi/pdfannot/observability"
	"github.com/wudi/pdfannot/raster"
	"github.com/wudi/pdfannot/svgpath"
)

var page = gesture.Size{Width: 600, Height: 800}

// halfEm measures every rune as half the font size.
type halfEm struct{}

func (halfEm) Width(text string, size float64) float64 {
	return float64(len([]rune(text))) * size * 0.5
}

func newStore(t *testing.T) *attachment.Store {
	t.Helper()
	s := attachment.NewStore(1)
	s.SetPageSizes([]gesture.Size{page})
	return s
}

func stored[T attachment.Attachment](t *testing.T, s *attachment.Store, id string) T {
	t.Helper()
	a, ok := s.Get(id)
	if !ok {
		t.Fatalf("attachment %q not in store", id)
	}
	return a.(T)
}

func mouse(kind gesture.EventKind, dx, dy float64) gesture.PointerEvent {
	return gesture.PointerEvent{Kind: kind, Source: gesture.Mouse, MovementX: dx, MovementY: dy}
}

func drag(w interface {
	PointerDown(gesture.PointerEvent)
	PointerMove(gesture.PointerEvent) bool
	PointerUp(gesture.PointerEvent) bool
}, dx, dy float64) bool {
	w.PointerDown(mouse(gesture.PointerDown, 0, 0))
	w.PointerMove(mouse(gesture.PointerMove, dx, dy))
	return w.PointerUp(mouse(gesture.PointerUp, 0, 0))
}

func TestNewTextAttachment(t *testing.T) {
	a := NewTextAttachment(gesture.Point{X: 10, Y: 20}, halfEm{}, "")
	if a.Width != 112 || a.Height != gesture.DefaultMinSize {
		t.Fatalf("size = %vx%v", a.Width, a.Height)
	}
	if a.Size != DefaultTextSize || a.LineHeight != DefaultLineHeight || a.FontFamily != "Times-Roman" {
		t.Fatalf("defaults = %+v", a)
	}
	if diff := cmp.Diff([]string{DefaultTextPlaceholder}, a.Lines); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
}

func TestTextEditCommitsOnBlur(t *testing.T) {
	s := newStore(t)
	id := s.Add(NewTextAttachment(gesture.Point{X: 10, Y: 20}, halfEm{}, ""))
	w := NewText(s, stored[*attachment.TextAttachment](t, s, id), page, halfEm{})

	w.Input("ignored in command mode")
	if w.Draft() != DefaultTextPlaceholder {
		t.Fatalf("draft changed outside insert: %q", w.Draft())
	}

	w.DoubleClick()
	if w.Mode() != ModeInsert {
		t.Fatalf("mode = %v, want insert", w.Mode())
	}
	if drag(w, 40, 40) {
		t.Fatal("box moved while editing")
	}

	w.Input("hello world")
	if got := stored[*attachment.TextAttachment](t, s, id).Text; got != DefaultTextPlaceholder {
		t.Fatalf("store changed before commit: %q", got)
	}
	if !w.Blur() {
		t.Fatal("Blur did not commit")
	}
	got := stored[*attachment.TextAttachment](t, s, id)
	if got.Text != "hello world" || w.Mode() != ModeCommand {
		t.Fatalf("after blur text=%q mode=%v", got.Text, w.Mode())
	}
	if diff := cmp.Diff([]string{"hello world"}, got.Lines); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
	if w.Blur() {
		t.Fatal("second Blur committed again")
	}
}

func TestTextGrowsWithWrappedLines(t *testing.T) {
	s := newStore(t)
	id := s.Add(NewTextAttachment(gesture.Point{}, halfEm{}, ""))
	w := NewText(s, stored[*attachment.TextAttachment](t, s, id), page, halfEm{})

	w.ToggleMode()
	w.Input("aaaaa bbbbb ccccc ddddd eeeee fffff")
	if !w.PointerLeave() {
		t.Fatal("PointerLeave did not commit")
	}
	// 112pt at 8pt per rune fits two words per line.
	if diff := cmp.Diff([]string{"aaaaa bbbbb", "ccccc ddddd", "eeeee fffff"}, w.Lines()); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
	want := 16 + 2*16*1.4
	if h := stored[*attachment.TextAttachment](t, s, id).Height; math.Abs(h-want) > 1e-9 {
		t.Fatalf("height = %v, want %v", h, want)
	}
}

func TestTextDragAndDelete(t *testing.T) {
	s := newStore(t)
	id := s.Add(NewTextAttachment(gesture.Point{X: 50, Y: 50}, halfEm{}, ""))
	w := NewText(s, stored[*attachment.TextAttachment](t, s, id), page, halfEm{})

	if !drag(w, 20, 10) {
		t.Fatal("drag did not commit")
	}
	if b := stored[*attachment.TextAttachment](t, s, id).Bounds(); b.X != 70 || b.Y != 60 {
		t.Fatalf("bounds after drag = %+v", b)
	}
	if !w.Delete() {
		t.Fatal("Delete returned false")
	}
	if _, ok := s.Get(id); ok {
		t.Fatal("text still present after delete")
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNewImageAttachmentFits(t *testing.T) {
	a, err := NewImageAttachment(attachment.File{Name: "wide.png", Data: pngBytes(t, 600, 300)}, page)
	if err != nil {
		t.Fatal(err)
	}
	if a.Width != 300 || a.Height != 150 || a.File.MIME != raster.MIMEPNG {
		t.Fatalf("fitted = %vx%v %s", a.Width, a.Height, a.File.MIME)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(a.File.Data))
	if err != nil || cfg.Width != 300 || cfg.Height != 150 {
		t.Fatalf("re-encoded %dx%d err=%v", cfg.Width, cfg.Height, err)
	}

	_, err = NewImageAttachment(attachment.File{Name: "x.txt", Data: []byte("not an image")}, page)
	if !errors.Is(err, raster.ErrUnknownFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestImageResizeRerenders(t *testing.T) {
	s := newStore(t)
	a, err := NewImageAttachment(attachment.File{Name: "wide.png", Data: pngBytes(t, 600, 300)}, page)
	if err != nil {
		t.Fatal(err)
	}
	id := s.Add(a)
	w := NewImage(s, stored[*attachment.ImageAttachment](t, s, id), page)

	w.HandleDown(mouse(gesture.PointerDown, 0, 0), gesture.SE)
	w.PointerMove(mouse(gesture.PointerMove, -100, -50))
	if !w.PointerUp(mouse(gesture.PointerUp, 0, 0)) {
		t.Fatal("resize did not commit")
	}
	got := stored[*attachment.ImageAttachment](t, s, id)
	if got.Width != 200 || got.Height != 100 {
		t.Fatalf("size = %vx%v", got.Width, got.Height)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(got.File.Data))
	if err != nil || cfg.Width != 200 || cfg.Height != 100 {
		t.Fatalf("re-rendered %dx%d err=%v", cfg.Width, cfg.Height, err)
	}
}

func TestImageResizeStoresRenderedSize(t *testing.T) {
	s := newStore(t)
	a, err := NewImageAttachment(attachment.File{Name: "wide.png", Data: pngBytes(t, 600, 300)}, page)
	if err != nil {
		t.Fatal(err)
	}
	id := s.Add(a)
	w := NewImage(s, stored[*attachment.ImageAttachment](t, s, id), page)

	w.HandleDown(mouse(gesture.PointerDown, 0, 0), gesture.SE)
	w.PointerMove(mouse(gesture.PointerMove, -99.6, -49.6))
	if !w.PointerUp(mouse(gesture.PointerUp, 0, 0)) {
		t.Fatal("resize did not commit")
	}
	got := stored[*attachment.ImageAttachment](t, s, id)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(got.File.Data))
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != float64(cfg.Width) || got.Height != float64(cfg.Height) {
		t.Fatalf("stored %vx%v, bitmap %dx%d", got.Width, got.Height, cfg.Width, cfg.Height)
	}
}

func TestImageRenderFailureIsLogged(t *testing.T) {
	s := newStore(t)
	orig := attachment.File{Name: "a.png", MIME: raster.MIMEPNG, Data: pngBytes(t, 100, 50)}
	id := s.Add(&attachment.ImageAttachment{
		Base: attachment.Base{Width: 100, Height: 50},
		File: orig,
		Img:  image.NewRGBA(image.Rect(0, 0, 0, 0)),
	})
	var buf bytes.Buffer
	w := NewImage(s, stored[*attachment.ImageAttachment](t, s, id), page)
	w.SetLogger(observability.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	w.HandleDown(mouse(gesture.PointerDown, 0, 0), gesture.SE)
	w.PointerMove(mouse(gesture.PointerMove, 50, 25))
	w.PointerUp(mouse(gesture.PointerUp, 0, 0))

	if !strings.Contains(buf.String(), "image re-render failed") {
		t.Fatalf("log = %q", buf.String())
	}
	got := stored[*attachment.ImageAttachment](t, s, id)
	if !bytes.Equal(got.File.Data, orig.Data) {
		t.Fatal("bitmap replaced after failed render")
	}
	if got.Width != 150 {
		t.Fatalf("width = %v, box did not move", got.Width)
	}
}

func TestImageDeleteNeedsConfirm(t *testing.T) {
	s := newStore(t)
	a, err := NewImageAttachment(attachment.File{Name: "sq.png", Data: pngBytes(t, 40, 40)}, page)
	if err != nil {
		t.Fatal(err)
	}
	id := s.Add(a)
	w := NewImage(s, stored[*attachment.ImageAttachment](t, s, id), page)

	if w.ConfirmDelete() {
		t.Fatal("deleted without arming")
	}
	w.Click()
	w.Cancel()
	if w.Armed() || w.ConfirmDelete() {
		t.Fatal("Cancel did not disarm")
	}
	w.Click()
	w.ClickOutside()
	if w.ConfirmDelete() {
		t.Fatal("ClickOutside did not disarm")
	}
	if _, ok := s.Get(id); !ok {
		t.Fatal("image removed before confirmation")
	}
	w.Click()
	if !w.Armed() || !w.ConfirmDelete() {
		t.Fatal("armed delete was not confirmed")
	}
	if _, ok := s.Get(id); ok {
		t.Fatal("image still present")
	}
}

func TestNewDrawingAttachment(t *testing.T) {
	a, err := NewDrawingAttachment(DrawingResult{Path: "M 100 100 L 300 300 L 100 300", Width: 400, Height: 400})
	if err != nil {
		t.Fatal(err)
	}
	if a.Path != "M 0 0 L 200 200 L 0 200" {
		t.Fatalf("path = %q", a.Path)
	}
	if a.OriginWidth != 200 || a.OriginHeight != 200 || a.Scale != DrawingScale {
		t.Fatalf("origin %vx%v scale %v", a.OriginWidth, a.OriginHeight, a.Scale)
	}
	if math.Abs(a.Width-30) > 1e-9 || math.Abs(a.Height-30) > 1e-9 {
		t.Fatalf("size = %vx%v", a.Width, a.Height)
	}
	if a.Stroke != DefaultStroke || a.StrokeWidth != DefaultStrokeWidth {
		t.Fatalf("stroke = %q %v", a.Stroke, a.StrokeWidth)
	}

	if _, err := NewDrawingAttachment(DrawingResult{Path: "M 5 5"}); !errors.Is(err, ErrEmptyDrawing) {
		t.Fatalf("point path err = %v", err)
	}
	if _, err := NewDrawingAttachment(DrawingResult{Path: "M 0 0 A 5 5 0 0 1 10 10"}); !errors.Is(err, svgpath.ErrUnsupported) {
		t.Fatalf("arc err = %v", err)
	}
}

func TestDrawingResizeUpdatesScale(t *testing.T) {
	s := newStore(t)
	a, err := NewDrawingAttachment(DrawingResult{Path: "M 0 0 L 200 100 L 0 100 Z"})
	if err != nil {
		t.Fatal(err)
	}
	a.X, a.Y = 100, 100
	id := s.Add(a)
	w := NewDrawing(s, stored[*attachment.DrawingAttachment](t, s, id), page)

	// Widen only: the height bounds the scale.
	w.HandleDown(mouse(gesture.PointerDown, 0, 0), gesture.E)
	w.PointerMove(mouse(gesture.PointerMove, 70, 0))
	w.PointerUp(mouse(gesture.PointerUp, 0, 0))
	got := stored[*attachment.DrawingAttachment](t, s, id)
	if math.Abs(got.Width-100) > 1e-9 || math.Abs(got.Scale-0.2) > 1e-9 {
		t.Fatalf("after resize width=%v scale=%v", got.Width, got.Scale)
	}

	if !w.Wheel(true) {
		t.Fatal("wheel did not commit")
	}
	got = stored[*attachment.DrawingAttachment](t, s, id)
	if want := 0.2 * gesture.WheelUpFactor; math.Abs(got.Scale-want) > 1e-9 {
		t.Fatalf("scale after wheel = %v, want %v", got.Scale, want)
	}
}

func TestSmallDrawingScaleFollowsMinSize(t *testing.T) {
	s := newStore(t)
	a, err := NewDrawingAttachment(DrawingResult{Path: "M 0 0 L 50 50"})
	if err != nil {
		t.Fatal(err)
	}
	id := s.Add(a)
	got := stored[*attachment.DrawingAttachment](t, s, id)
	if got.Width < gesture.DefaultMinSize || got.Height < gesture.DefaultMinSize {
		t.Fatalf("size = %vx%v, below minimum", got.Width, got.Height)
	}
	if want := ScaleFor(got.Bounds(), got.OriginWidth, got.OriginHeight); math.Abs(got.Scale-want) > 1e-9 {
		t.Fatalf("scale = %v, want %v", got.Scale, want)
	}
	if math.Abs(got.Scale*got.OriginWidth-got.Width) > 1e-9 {
		t.Fatalf("drawn width %v, box width %v", got.Scale*got.OriginWidth, got.Width)
	}
}

func TestDrawingDeleteNeedsConfirm(t *testing.T) {
	s := newStore(t)
	a, err := NewDrawingAttachment(DrawingResult{Path: "M 0 0 L 200 200"})
	if err != nil {
		t.Fatal(err)
	}
	id := s.Add(a)
	w := NewDrawing(s, stored[*attachment.DrawingAttachment](t, s, id), page)

	if drag(w, 10, 10); w.Armed() {
		t.Fatal("dragging armed the delete overlay")
	}
	w.Click()
	if !w.ConfirmDelete() {
		t.Fatal("ConfirmDelete returned false")
	}
	if !s.Empty() {
		t.Fatal("store not empty after confirmed delete")
	}
}

func TestScaleFor(t *testing.T) {
	tests := []struct {
		r      gesture.Rect
		ow, oh float64
		want   float64
	}{
		{gesture.Rect{Width: 50, Height: 50}, 100, 100, 0.5},
		{gesture.Rect{Width: 50, Height: 20}, 100, 100, 0.2},
		{gesture.Rect{Width: 50, Height: 20}, 0, 100, DrawingScale},
	}
	for _, tt := range tests {
		if got := ScaleFor(tt.r, tt.ow, tt.oh); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ScaleFor(%+v, %v, %v) = %v, want %v", tt.r, tt.ow, tt.oh, got, tt.want)
		}
	}
}
