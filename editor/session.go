// Package editor ties a loaded document, its attachment store and the
// serializer into one editing session, and exposes the toolbar actions a
// host wires its buttons to.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/component"
	"github.com/wudi/pdfannot/fonts"
	"github.com/wudi/pdfannot/gesture"
	"github.com/wudi/pdfannot/loader"
	"github.com/wudi/pdfannot/observability"
	"github.com/wudi/pdfannot/serializer"
)

var ErrNoDocument = errors.New("no document loaded")

// DefaultOutputName names generated files when Config.OutputName is empty.
const DefaultOutputName = "document.pdf"

// Config controls a Session. The zero value regenerates on every change
// without a timeout.
type Config struct {
	// Debounce delays regeneration until changes pause for this long.
	Debounce time.Duration
	// SerializeTimeout bounds one regeneration; zero means none.
	SerializeTimeout time.Duration
	OutputName       string
	// SetFile receives every newly generated file, and nil when the store
	// becomes empty.
	SetFile func(*attachment.File)

	Fonts      *fonts.Registry
	Loader     *loader.Loader
	Serializer *serializer.Serializer
	Logger     observability.Logger
}

// Session owns the active document and its attachments. Every content
// change in the store schedules a regeneration of the output file; results
// are published last-write-wins by generation.
type Session struct {
	cfg   Config
	store *attachment.Store
	log   observability.Logger

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
	wg     sync.WaitGroup

	mu        sync.Mutex
	doc       *loader.PdfDocument
	file      *attachment.File
	gen       uint64
	settled   uint64
	timer     *time.Timer
	publishMu sync.Mutex
}

func NewSession(cfg Config) *Session {
	cfg.Logger = observability.OrNop(cfg.Logger)
	if cfg.OutputName == "" {
		cfg.OutputName = DefaultOutputName
	}
	if cfg.Fonts == nil {
		cfg.Fonts = fonts.NewRegistry()
	}
	if cfg.Loader == nil {
		cfg.Loader = loader.New(loader.Config{Logger: cfg.Logger})
	}
	if cfg.Serializer == nil {
		cfg.Serializer = serializer.New(serializer.Config{Fonts: cfg.Fonts, Logger: cfg.Logger})
	}
	s := &Session{
		cfg:   cfg,
		store: attachment.NewStore(0, attachment.WithLogger(cfg.Logger)),
		log:   cfg.Logger.With(observability.String("component", "editor")),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.unsub = s.store.Subscribe(s.onChange)
	return s
}

func (s *Session) Store() *attachment.Store { return s.store }

// Document returns the active document, or nil before the first load.
func (s *Session) Document() *loader.PdfDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Open loads src and, on success, replaces the active document and resets
// the store to its page count. A failed load leaves the session unchanged.
func (s *Session) Open(ctx context.Context, src loader.Source) error {
	doc, err := s.cfg.Loader.Load(ctx, src)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	s.store.Reset(doc.PageCount())
	s.store.SetPageSizes(doc.Sizes())
	s.log.Info("document opened", observability.String("name", doc.Name()), observability.Int("pages", doc.PageCount()))
	return nil
}

// File returns the most recently generated file.
func (s *Session) File() (attachment.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return attachment.File{}, false
	}
	return *s.file, true
}

// GoToPage switches the document and the store to page i together.
func (s *Session) GoToPage(i int) error {
	doc := s.Document()
	if doc == nil {
		return ErrNoDocument
	}
	if err := doc.SetCurrentPage(i); err != nil {
		return err
	}
	return s.store.SetPageIndex(i)
}

// Next moves to the following page and reports whether the page changed.
func (s *Session) Next() bool { return s.step((*loader.PdfDocument).Next) }

// Prev moves to the preceding page and reports whether the page changed.
func (s *Session) Prev() bool { return s.step((*loader.PdfDocument).Prev) }

func (s *Session) step(move func(*loader.PdfDocument) bool) bool {
	doc := s.Document()
	if doc == nil || !move(doc) {
		return false
	}
	return s.store.SetPageIndex(doc.CurrentPage()) == nil
}

// PageSize is the size of the current page.
func (s *Session) PageSize() (gesture.Size, error) {
	doc := s.Document()
	if doc == nil {
		return gesture.Size{}, ErrNoDocument
	}
	p, _ := doc.Page(doc.CurrentPage())
	return p.Size(), nil
}

// Widget is the pointer surface shared by the text, image and drawing
// components.
type Widget interface {
	ID() string
	Rect() gesture.Rect
	PointerDown(ev gesture.PointerEvent)
	HandleDown(ev gesture.PointerEvent, dir gesture.Direction)
	PointerMove(ev gesture.PointerEvent) bool
	PointerUp(ev gesture.PointerEvent) bool
	Refresh(r gesture.Rect)
}

// Widgets builds components for the current page's attachments in stacking
// order.
func (s *Session) Widgets() ([]Widget, error) {
	page, err := s.PageSize()
	if err != nil {
		return nil, err
	}
	list := s.store.Page(s.store.PageIndex())
	out := make([]Widget, 0, len(list))
	for _, a := range list {
		w, err := s.widget(a, page)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *Session) widget(a attachment.Attachment, page gesture.Size) (Widget, error) {
	switch a := a.(type) {
	case *attachment.TextAttachment:
		m, err := s.cfg.Fonts.Lookup(a.FontFamily)
		if err != nil {
			return nil, err
		}
		return component.NewText(s.store, a, page, m), nil
	case *attachment.ImageAttachment:
		img := component.NewImage(s.store, a, page)
		img.SetLogger(s.log)
		return img, nil
	case *attachment.DrawingAttachment:
		return component.NewDrawing(s.store, a, page), nil
	}
	return nil, fmt.Errorf("unknown attachment type %T", a)
}

// Wait blocks until scheduled regenerations have finished.
func (s *Session) Wait() { s.wg.Wait() }

// Close stops listening to the store and abandons pending regenerations.
func (s *Session) Close() {
	s.unsub()
	s.mu.Lock()
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.timer = nil
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Session) onChange(ev attachment.Event) {
	if !ev.Content() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	s.gen++
	gen := s.gen
	s.wg.Add(1)
	if s.cfg.Debounce <= 0 {
		go s.regenerate(gen)
		return
	}
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.timer = time.AfterFunc(s.cfg.Debounce, func() { s.regenerate(gen) })
}

func (s *Session) regenerate(gen uint64) {
	defer s.wg.Done()
	doc := s.Document()
	if doc == nil {
		return
	}
	if s.store.Empty() {
		s.publish(gen, nil)
		return
	}
	ctx := s.ctx
	if s.cfg.SerializeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SerializeTimeout)
		defer cancel()
	}
	out, err := s.cfg.Serializer.Serialize(ctx, doc.Bytes(), s.store.All())
	if err != nil {
		s.log.Warn("regeneration failed, keeping previous file",
			observability.Int64("generation", int64(gen)),
			observability.Error("error", err))
		s.settle(gen)
		return
	}
	s.publish(gen, &attachment.File{Name: s.cfg.OutputName, MIME: serializer.MIMEPDF, Data: out})
}

// settle marks gen finished without a result; older results still in
// flight are then dropped.
func (s *Session) settle(gen uint64) {
	s.mu.Lock()
	if gen > s.settled {
		s.settled = gen
	}
	s.mu.Unlock()
}

func (s *Session) publish(gen uint64, f *attachment.File) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	if gen <= s.settled {
		s.mu.Unlock()
		s.log.Debug("stale generation dropped", observability.Int64("generation", int64(gen)))
		return
	}
	s.settled = gen
	s.file = f
	s.mu.Unlock()
	if s.cfg.SetFile != nil {
		s.cfg.SetFile(f)
	}
}
