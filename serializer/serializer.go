// Package serializer merges attachments into the original PDF. Every call
// parses the source bytes afresh and appends one incremental update holding
// the overlay content, so the original file stays byte-for-byte intact at
// the front of the output.
package serializer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/builder"
	"github.com/wudi/pdfannot/contentstream"
	"github.com/wudi/pdfannot/csscolor"
	"github.com/wudi/pdfannot/fonts"
	"github.com/wudi/pdfannot/observability"
	"github.com/wudi/pdfannot/parser"
	"github.com/wudi/pdfannot/raster"
	"github.com/wudi/pdfannot/svgpath"
	"github.com/wudi/pdfannot/writer"
)

// ErrUnsupportedImage is returned (inside an EmbedError) for images that are
// neither JPEG nor PNG.
var ErrUnsupportedImage = builder.ErrUnsupportedImage

var ErrPageRange = errors.New("attachments on a page the document does not have")

// EmbedError reports the attachment whose font, image or path could not be
// prepared.
type EmbedError struct {
	Kind attachment.Kind
	ID   string
	Err  error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embed %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

// Config controls serialization. The zero value writes an xref section in
// the style of the source with the base-14 default font.
type Config struct {
	Writer writer.Config
	Parser parser.Config
	// Fonts resolves text attachment families; nil uses a fresh registry.
	Fonts *fonts.Registry
	// DefaultFont replaces an empty FontFamily.
	DefaultFont string
	// Workers bounds concurrent embedding; zero uses GOMAXPROCS.
	Workers int
	Logger  observability.Logger
	Tracer  observability.Tracer
}

type Serializer struct {
	cfg Config
}

func New(cfg Config) *Serializer {
	if cfg.Fonts == nil {
		cfg.Fonts = fonts.NewRegistry()
	}
	if cfg.DefaultFont == "" {
		cfg.DefaultFont = fonts.DefaultFamily
	}
	if cfg.Workers <= 0 {
		cfg.Workers = max(runtime.GOMAXPROCS(0), 1)
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	if cfg.Parser.Logger == nil {
		cfg.Parser.Logger = cfg.Logger
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	return &Serializer{cfg: cfg}
}

// Serialize merges pages into original with the default configuration.
func Serialize(ctx context.Context, original []byte, pages [][]attachment.Attachment) ([]byte, error) {
	return New(Config{}).Serialize(ctx, original, pages)
}

// Serialize returns original with pages[i] drawn on page i, in slice
// order. A nil or empty list leaves its page untouched; with no
// attachments at all the result equals original.
func (s *Serializer) Serialize(ctx context.Context, original []byte, pages [][]attachment.Attachment) (out []byte, err error) {
	ctx, span := s.cfg.Tracer.StartSpan(ctx, observability.SpanSerialize)
	defer func() {
		if err != nil {
			span.SetError(err)
			s.cfg.Logger.Error("serialize failed", observability.Error("error", err))
		}
		span.Finish()
	}()

	total := 0
	for _, list := range pages {
		total += len(list)
	}
	span.SetTag(observability.TagAttachments, total)
	if total == 0 {
		return bytes.Clone(original), nil
	}

	doc, err := parser.NewDocumentParser(s.cfg.Parser).Parse(ctx, original)
	if err != nil {
		return nil, fmt.Errorf("parse original: %w", err)
	}
	for i := len(doc.Pages); i < len(pages); i++ {
		if len(pages[i]) > 0 {
			return nil, fmt.Errorf("%w: page %d of %d", ErrPageRange, i+1, len(doc.Pages))
		}
	}
	upd, err := writer.NewUpdate(original, doc.XRef, s.cfg.Writer)
	if err != nil {
		return nil, err
	}

	emb := &embedder{registry: s.cfg.Fonts, defaultFont: s.cfg.DefaultFont, fonts: make(map[string]fonts.Font)}
	prepared, err := emb.prepareAll(ctx, pages, s.cfg.Workers)
	if err != nil {
		return nil, err
	}

	overlay := builder.NewOverlay(doc, upd)
	for i, list := range prepared {
		if len(list) == 0 {
			continue
		}
		pb, err := overlay.Page(ctx, doc.Pages[i])
		if err != nil {
			return nil, err
		}
		for _, it := range list {
			it.draw(pb)
		}
		s.cfg.Logger.Debug("page drawn", observability.Int("page", i+1), observability.Int("attachments", len(list)))
	}
	if err := overlay.Finish(ctx); err != nil {
		return nil, fmt.Errorf("finish overlay: %w", err)
	}
	out, err = upd.Bytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("write update: %w", err)
	}

	span.SetTag(observability.TagEmbeddedFonts, len(emb.fonts))
	span.SetTag(observability.TagEmbeddedImages, emb.images)
	span.SetTag(observability.TagOutputBytes, len(out))
	s.cfg.Logger.Info("serialized pdf",
		observability.Int("attachments", total),
		observability.Int("fonts", len(emb.fonts)),
		observability.Int("bytes", len(out)))
	return out, nil
}

// Blob serializes into an in-memory File named name.
func (s *Serializer) Blob(ctx context.Context, original []byte, pages [][]attachment.Attachment, name string) (attachment.File, error) {
	data, err := s.Serialize(ctx, original, pages)
	if err != nil {
		return attachment.File{}, err
	}
	return attachment.File{Name: name, MIME: MIMEPDF, Data: data}, nil
}

// Download serializes and hands the result to dst under name.
func (s *Serializer) Download(ctx context.Context, original []byte, pages [][]attachment.Attachment, name string, dst Sink) error {
	data, err := s.Serialize(ctx, original, pages)
	if err != nil {
		return err
	}
	if err := dst.Save(ctx, name, data); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// item is an attachment with everything it needs to be drawn.
type item struct {
	a attachment.Attachment

	font  fonts.Font
	img   *builder.Image
	path  *contentstream.Path
	color *csscolor.Color
}

func (it item) draw(pb builder.PageBuilder) {
	switch a := it.a.(type) {
	case *attachment.TextAttachment:
		text := a.Text
		if text == "" {
			text = strings.Join(a.Lines, "\n")
		}
		size := a.Size
		if size <= 0 {
			size = builder.DefaultFontSize
		}
		pb.DrawText(fonts.Layout(it.font, text, size, a.Width), a.X, a.Y, builder.TextOptions{
			Font:       it.font,
			FontSize:   size,
			LineHeight: a.LineHeight,
		})
	case *attachment.ImageAttachment:
		pb.DrawImage(it.img, a.X, a.Y, a.Width, a.Height)
	case *attachment.DrawingAttachment:
		pb.DrawPath(it.path, a.X, a.Y, a.Scale, builder.PathOptions{
			StrokeColor: it.color,
			LineWidth:   a.StrokeWidth,
			LineCap:     contentstream.LineCapRound,
			LineJoin:    contentstream.LineJoinRound,
		})
	}
}

// embedder prepares attachments concurrently. Fonts are shared by family
// across the whole document, so lookups go through mu.
type embedder struct {
	registry    *fonts.Registry
	defaultFont string

	mu     sync.Mutex
	fonts  map[string]fonts.Font
	images int
}

type task struct {
	page, index int
	a           attachment.Attachment
}

// prepareAll resolves every attachment. The result keeps the input order
// regardless of the order preparation finishes in.
func (e *embedder) prepareAll(ctx context.Context, pages [][]attachment.Attachment, workers int) ([][]item, error) {
	out := make([][]item, len(pages))
	var tasks []task
	for p, list := range pages {
		out[p] = make([]item, len(list))
		for i, a := range list {
			tasks = append(tasks, task{page: p, index: i, a: a})
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sem := make(chan struct{}, workers)
	errs := make(chan error, len(tasks))
	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				errs <- err
				return
			}
			it, err := e.prepare(t.a)
			if err != nil {
				errs <- &EmbedError{Kind: t.a.Kind(), ID: attachment.ID(t.a), Err: err}
				cancel()
				return
			}
			out[t.page][t.index] = it
		}(t)
	}
	wg.Wait()
	close(errs)

	var first error
	for err := range errs {
		var embed *EmbedError
		if errors.As(err, &embed) {
			return nil, err
		}
		if first == nil {
			first = err
		}
	}
	if first != nil {
		return nil, first
	}
	return out, nil
}

func (e *embedder) prepare(a attachment.Attachment) (item, error) {
	it := item{a: a}
	switch a := a.(type) {
	case *attachment.TextAttachment:
		f, err := e.font(a.FontFamily)
		if err != nil {
			return it, err
		}
		it.font = f
	case *attachment.ImageAttachment:
		mime := a.File.MIME
		if mime == "" {
			mime = raster.Sniff(a.File.Data)
		}
		img, err := builder.NewImage(a.File.Data, mime)
		if err != nil {
			return it, err
		}
		it.img = img
		e.mu.Lock()
		e.images++
		e.mu.Unlock()
	case *attachment.DrawingAttachment:
		p, err := svgpath.Parse(a.Path)
		if err != nil {
			return it, fmt.Errorf("path: %w", err)
		}
		it.path = p.ContentPath()
		c, err := csscolor.Parse(a.Stroke)
		if err != nil {
			return it, err
		}
		it.color = &c
	default:
		return it, fmt.Errorf("unknown attachment type %T", a)
	}
	return it, nil
}

// font returns the document's font for family, creating it on first use.
func (e *embedder) font(family string) (fonts.Font, error) {
	if family == "" {
		family = e.defaultFont
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if f, ok := e.fonts[family]; ok {
		return f, nil
	}
	f, err := e.registry.Lookup(family)
	if err != nil {
		return nil, err
	}
	e.fonts[family] = f
	return f, nil
}
