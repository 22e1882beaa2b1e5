package editor

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/component"
	"github.com/wudi/pdfannot/gesture"
	"github.com/wudi/pdfannot/loader"
	"github.com/wudi/pdfannot/serializer"
)

var (
	ErrNothingToDownload = errors.New("no generated file to download")
	ErrNoSignatures      = errors.New("no signature source configured")
)

// Signatures supplies saved signature images by id.
type Signatures interface {
	Pick(ctx context.Context, id string) (attachment.File, error)
}

// Toolbar dispatches the editor's menu actions to the session. Add actions
// place the new attachment on the current page and return its widget.
type Toolbar struct {
	s          *Session
	family     string
	signatures Signatures
}

type ToolbarOption func(*Toolbar)

// WithFontFamily sets the family new text boxes use.
func WithFontFamily(family string) ToolbarOption {
	return func(t *Toolbar) { t.family = family }
}

func WithSignatures(src Signatures) ToolbarOption {
	return func(t *Toolbar) { t.signatures = src }
}

func NewToolbar(s *Session, opts ...ToolbarOption) *Toolbar {
	t := &Toolbar{s: s}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddText places a placeholder text box with its top-left corner at pos.
func (t *Toolbar) AddText(pos gesture.Point) (*component.Text, error) {
	page, err := t.s.PageSize()
	if err != nil {
		return nil, err
	}
	m, err := t.s.cfg.Fonts.Lookup(t.family)
	if err != nil {
		return nil, err
	}
	a, err := added[*attachment.TextAttachment](t.s, component.NewTextAttachment(pos, m, t.family))
	if err != nil {
		return nil, err
	}
	return component.NewText(t.s.store, a, page, m), nil
}

// AddImage decodes file, fits it to the preview bound and the page, and
// adds it at the page origin.
func (t *Toolbar) AddImage(file attachment.File) (*component.Image, error) {
	page, err := t.s.PageSize()
	if err != nil {
		return nil, err
	}
	img, err := component.NewImageAttachment(file, page)
	if err != nil {
		return nil, err
	}
	a, err := added[*attachment.ImageAttachment](t.s, img)
	if err != nil {
		return nil, err
	}
	return component.NewImage(t.s.store, a, page), nil
}

// AddDrawing normalizes the drawing modal's output and adds it.
func (t *Toolbar) AddDrawing(res component.DrawingResult) (*component.Drawing, error) {
	page, err := t.s.PageSize()
	if err != nil {
		return nil, err
	}
	d, err := component.NewDrawingAttachment(res)
	if err != nil {
		return nil, err
	}
	a, err := added[*attachment.DrawingAttachment](t.s, d)
	if err != nil {
		return nil, err
	}
	return component.NewDrawing(t.s.store, a, page), nil
}

// AddSignature fetches a saved signature and adds it like an uploaded
// image.
func (t *Toolbar) AddSignature(ctx context.Context, id string) (*component.Image, error) {
	if t.signatures == nil {
		return nil, ErrNoSignatures
	}
	file, err := t.signatures.Pick(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("signature %s: %w", id, err)
	}
	return t.AddImage(file)
}

// UploadPDF replaces the active document.
func (t *Toolbar) UploadPDF(ctx context.Context, src loader.Source) error {
	return t.s.Open(ctx, src)
}

// CanDownload reports whether a generated file exists.
func (t *Toolbar) CanDownload() bool {
	_, ok := t.s.File()
	return ok
}

// Download serializes the current attachments and saves the result to dst.
func (t *Toolbar) Download(ctx context.Context, name string, dst serializer.Sink) error {
	doc := t.s.Document()
	if doc == nil {
		return ErrNoDocument
	}
	if !t.CanDownload() {
		return ErrNothingToDownload
	}
	if name == "" {
		name = t.s.cfg.OutputName
	}
	return t.s.cfg.Serializer.Download(ctx, doc.Bytes(), t.s.store.All(), name, dst)
}

func (t *Toolbar) NextPage() bool { return t.s.Next() }

func (t *Toolbar) PrevPage() bool { return t.s.Prev() }

func (t *Toolbar) GoToPage(i int) error { return t.s.GoToPage(i) }

// added stores a and returns the stored copy, which carries the assigned
// id and page clamping.
func added[T attachment.Attachment](s *Session, a T) (T, error) {
	var zero T
	id := s.store.Add(a)
	if id == "" {
		return zero, ErrNoDocument
	}
	got, ok := s.store.Get(id)
	if !ok {
		return zero, fmt.Errorf("attachment %s vanished after add", id)
	}
	return got.(T), nil
}
