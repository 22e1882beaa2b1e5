package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfannot/filters"
	"github.com/wudi/pdfannot/ir/raw"
	"github.com/wudi/pdfannot/observability"
	"github.com/wudi/pdfannot/recovery"
	"github.com/wudi/pdfannot/xref"
)

var (
	ErrEncrypted = errors.New("encrypted documents are not supported")
	ErrNoPages   = errors.New("document has no pages")
	ErrNotPDF    = errors.New("missing %PDF header")
)

// Limits bounds the resources a single parse may consume.
type Limits struct {
	MaxIndirectDepth    int
	MaxStringLength     int64
	MaxDecompressedSize int64
	MaxPages            int
}

func DefaultLimits() Limits {
	return Limits{
		MaxIndirectDepth:    32,
		MaxStringLength:     16 << 20,
		MaxDecompressedSize: 256 << 20,
		MaxPages:            100000,
	}
}

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	XRef   xref.ResolverConfig
	Limits Limits
	Logger observability.Logger

	// Recovery decides whether a damaged page tree entry fails the parse.
	// Nil means recovery.Strict.
	Recovery recovery.Strategy
}

// DocumentParser builds a Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	def := DefaultLimits()
	if cfg.Limits.MaxIndirectDepth == 0 {
		cfg.Limits.MaxIndirectDepth = def.MaxIndirectDepth
	}
	if cfg.Limits.MaxPages == 0 {
		cfg.Limits.MaxPages = def.MaxPages
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.Strict{}
	}
	return &DocumentParser{cfg: cfg}
}

func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*Document, error) {
	version, err := headerVersion(data)
	if err != nil {
		return nil, err
	}
	pipeline := filters.NewDefaultPipeline(filters.Limits{MaxDecompressedSize: p.cfg.Limits.MaxDecompressedSize})
	xcfg := p.cfg.XRef
	if xcfg.Filters == nil {
		xcfg.Filters = pipeline
	}
	table, err := xref.NewResolver(xcfg).Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	if table.Type() == "repaired" {
		p.cfg.Logger.Warn("xref repaired by object scan", observability.Int("objects", len(table.Objects())))
	}
	trailer := table.Trailer()
	if _, ok := trailer.Lookup("Encrypt"); ok {
		return nil, ErrEncrypted
	}

	loader, err := (&ObjectLoaderBuilder{}).
		WithData(data).
		WithXRef(table).
		WithFilters(pipeline).
		WithLimits(p.cfg.Limits).
		Build()
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Data:    data,
		Version: version,
		XRef:    table,
		Trailer: trailer,
		loader:  loader,
		filters: pipeline,
		recover: p.cfg.Recovery,
		logger:  p.cfg.Logger,
	}

	rootObj, _ := trailer.Lookup("Root")
	rootRef, ok := rootObj.(raw.RefObj)
	if !ok {
		return nil, errors.New("trailer /Root is not a reference")
	}
	catalog, err := doc.Dict(ctx, rootRef)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	doc.CatalogRef = rootRef.R
	doc.Catalog = catalog
	if v, ok := raw.AsName(valueOf(catalog, "Version")); ok && v > doc.Version {
		doc.Version = v
	}

	pagesObj, ok := catalog.Lookup("Pages")
	if !ok {
		return nil, ErrNoPages
	}
	if err := doc.walkPages(ctx, pagesObj, inherited{}, 0, p.cfg.Limits.MaxPages, map[raw.ObjectRef]bool{}); err != nil {
		return nil, fmt.Errorf("page tree: %w", err)
	}
	if len(doc.Pages) == 0 {
		return nil, ErrNoPages
	}
	p.cfg.Logger.Debug("parsed document",
		observability.String("version", doc.Version),
		observability.String("xref", table.Type()),
		observability.Int("pages", len(doc.Pages)))
	return doc, nil
}

func headerVersion(data []byte) (string, error) {
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	idx := bytes.Index(data[:limit], []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	v := data[idx+5:]
	end := 0
	for end < len(v) && end < 4 && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	if end == 0 {
		return "1.4", nil
	}
	return string(v[:end]), nil
}

func valueOf(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Lookup(key)
	return v
}
