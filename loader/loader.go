// Package loader obtains PDF bytes from memory, disk or HTTP and parses
// them into the page model the editor works against.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sync"
	"time"

	"github.com/wudi/pdfannot/gesture"
	"github.com/wudi/pdfannot/observability"
	"github.com/wudi/pdfannot/parser"
)

var (
	ErrPageRange = errors.New("page index out of range")
	ErrTooLarge  = errors.New("pdf exceeds size limit")
	ErrStatus    = errors.New("unexpected http status")
)

// DefaultMaxSize bounds the bytes read from a file or URL.
const DefaultMaxSize = 256 << 20

// Config controls fetching and parsing. The zero value is usable.
type Config struct {
	Parser     parser.Config
	HTTPClient *http.Client
	MaxSize    int64
	Logger     observability.Logger
	Tracer     observability.Tracer
}

// Loader turns Sources into documents.
type Loader struct {
	cfg Config
}

func New(cfg Config) *Loader {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	if cfg.Parser.Logger == nil {
		cfg.Parser.Logger = cfg.Logger
	}
	return &Loader{cfg: cfg}
}

// Load reads src with a default Loader.
func Load(ctx context.Context, src Source) (*PdfDocument, error) {
	return New(Config{}).Load(ctx, src)
}

// Source is where a PDF comes from. All sources are treated alike once
// their bytes are read.
type Source interface {
	Name() string
	read(ctx context.Context, l *Loader) ([]byte, error)
}

type bytesSource struct {
	name string
	data []byte
}

// FromBytes wraps an in-memory upload. The slice is retained, not copied.
func FromBytes(name string, data []byte) Source { return bytesSource{name: name, data: data} }

func (s bytesSource) Name() string { return s.name }

func (s bytesSource) read(_ context.Context, l *Loader) ([]byte, error) {
	if int64(len(s.data)) > l.cfg.MaxSize {
		return nil, ErrTooLarge
	}
	return s.data, nil
}

type fileSource string

func FromFile(path string) Source { return fileSource(path) }

func (s fileSource) Name() string { return path.Base(string(s)) }

func (s fileSource) read(_ context.Context, l *Loader) ([]byte, error) {
	f, err := os.Open(string(s))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f, l.cfg.MaxSize)
}

type urlSource string

// FromURL fetches the document with a GET request.
func FromURL(url string) Source { return urlSource(url) }

func (s urlSource) Name() string { return path.Base(string(s)) }

func (s urlSource) read(ctx context.Context, l *Loader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(s), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/pdf")
	resp, err := l.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}
	if resp.ContentLength > l.cfg.MaxSize {
		return nil, ErrTooLarge
	}
	return readLimited(resp.Body, l.cfg.MaxSize)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

// Load fetches and parses src. Failures are logged and returned; nothing
// is retained from a failed load.
func (l *Loader) Load(ctx context.Context, src Source) (doc *PdfDocument, err error) {
	ctx, span := l.cfg.Tracer.StartSpan(ctx, observability.SpanLoad)
	defer func() {
		if err != nil {
			span.SetError(err)
			l.cfg.Logger.Error("load pdf failed",
				observability.String("source", src.Name()),
				observability.Error("error", err))
		}
		span.Finish()
	}()

	data, err := src.read(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	parsed, err := parser.NewDocumentParser(l.cfg.Parser).Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Name(), err)
	}

	doc = &PdfDocument{name: src.Name(), data: data, parsed: parsed}
	doc.pages = make([]Page, len(parsed.Pages))
	for i, p := range parsed.Pages {
		w, h := p.Size()
		doc.pages[i] = Page{Index: i, Width: w, Height: h, Rotate: p.Rotate, MediaBox: p.MediaBox}
	}
	span.SetTag(observability.TagPageCount, len(doc.pages))
	l.cfg.Logger.Info("loaded pdf",
		observability.String("source", src.Name()),
		observability.Int("pages", len(doc.pages)),
		observability.Int("bytes", len(data)))
	return doc, nil
}

// Page is the editor's view of one source page.
type Page struct {
	Index         int
	Width, Height float64
	Rotate        int
	MediaBox      parser.Rect
}

func (p Page) Size() gesture.Size { return gesture.Size{Width: p.Width, Height: p.Height} }

// Preview describes what a host needs to render a page. Bitmap rendering
// itself happens outside this module.
type Preview struct {
	Page
	ContentLength int
}

// PdfDocument is one loaded file: its immutable bytes, the page list and
// the page currently being edited.
type PdfDocument struct {
	name   string
	data   []byte
	parsed *parser.Document
	pages  []Page

	mu      sync.RWMutex
	current int
}

func (d *PdfDocument) Name() string { return d.name }

// Bytes returns the original file. Callers must not modify it.
func (d *PdfDocument) Bytes() []byte { return d.data }

func (d *PdfDocument) PageCount() int { return len(d.pages) }

func (d *PdfDocument) Pages() []Page { return append([]Page(nil), d.pages...) }

func (d *PdfDocument) Page(i int) (Page, bool) {
	if i < 0 || i >= len(d.pages) {
		return Page{}, false
	}
	return d.pages[i], true
}

// Sizes lists every page's size in index order.
func (d *PdfDocument) Sizes() []gesture.Size {
	out := make([]gesture.Size, len(d.pages))
	for i, p := range d.pages {
		out[i] = p.Size()
	}
	return out
}

func (d *PdfDocument) CurrentPage() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

func (d *PdfDocument) SetCurrentPage(i int) error {
	if i < 0 || i >= len(d.pages) {
		return fmt.Errorf("%w: %d of %d", ErrPageRange, i, len(d.pages))
	}
	d.mu.Lock()
	d.current = i
	d.mu.Unlock()
	return nil
}

// Next advances one page and reports whether the page changed.
func (d *PdfDocument) Next() bool { return d.step(1) }

// Prev goes back one page and reports whether the page changed.
func (d *PdfDocument) Prev() bool { return d.step(-1) }

func (d *PdfDocument) step(delta int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.current + delta
	if next < 0 || next >= len(d.pages) {
		return false
	}
	d.current = next
	return true
}

func (d *PdfDocument) Preview(ctx context.Context, i int) (Preview, error) {
	page, ok := d.Page(i)
	if !ok {
		return Preview{}, fmt.Errorf("%w: %d of %d", ErrPageRange, i, len(d.pages))
	}
	n, err := d.parsed.ContentLength(ctx, d.parsed.Pages[i])
	if err != nil {
		return Preview{}, fmt.Errorf("page %d contents: %w", i, err)
	}
	return Preview{Page: page, ContentLength: n}, nil
}
