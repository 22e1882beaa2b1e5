// Package builder draws new content on top of the pages of an existing
// document. Pages are never rewritten in place: new content, resources and a
// replacement page dictionary are written into an incremental update.
package builder

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/wudi/pdfannot/contentstream"
	"github.com/wudi/pdfannot/coords"
	"github.com/wudi/pdfannot/csscolor"
	"github.com/wudi/pdfannot/fonts"
	"github.com/wudi/pdfannot/ir/raw"
	"github.com/wudi/pdfannot/parser"
)

// DefaultFontSize is used when TextOptions.FontSize is zero.
const DefaultFontSize = 12

// PageBuilder provides a fluent API for drawing on one page. Coordinates
// are page space: origin at the top-left of the MediaBox, y growing down.
type PageBuilder interface {
	DrawText(lines []string, x, y float64, opts TextOptions) PageBuilder
	DrawImage(img *Image, x, y, width, height float64) PageBuilder
	DrawPath(path *contentstream.Path, x, y, scale float64, opts PathOptions) PageBuilder
	Ops() []contentstream.Operation
}

// TextOptions configures text drawing.
type TextOptions struct {
	Font     fonts.Font
	FontSize float64
	// LineHeight multiplies FontSize to give the distance between baselines.
	LineHeight float64
	// Color defaults to black when nil. A fully transparent color draws
	// nothing.
	Color *csscolor.Color
}

// PathOptions configures path stroking.
type PathOptions struct {
	// StrokeColor defaults to black when nil. A fully transparent color
	// draws nothing.
	StrokeColor *csscolor.Color
	LineWidth   float64
	LineCap     contentstream.LineCap
	LineJoin    contentstream.LineJoin
}

// Resolver loads the objects an existing page refers to.
type Resolver interface {
	Resolve(ctx context.Context, obj raw.Object) (raw.Object, error)
	Dict(ctx context.Context, obj raw.Object) (*raw.DictObj, error)
}

// Overlay collects page drawings for one document. Fonts and images are
// written once no matter how many pages use them. Overlay is not safe for
// concurrent use.
type Overlay struct {
	res  Resolver
	objs fonts.Objects

	fontRefs  map[fonts.Font]raw.ObjectRef
	fontOrder []fonts.Font
	imageRefs map[*Image]raw.ObjectRef
	pages     map[int]*pageBuilderImpl
	err       error
}

func NewOverlay(res Resolver, objs fonts.Objects) *Overlay {
	return &Overlay{
		res:       res,
		objs:      objs,
		fontRefs:  make(map[fonts.Font]raw.ObjectRef),
		imageRefs: make(map[*Image]raw.ObjectRef),
		pages:     make(map[int]*pageBuilderImpl),
	}
}

type pageBuilderImpl struct {
	parent *Overlay
	page   *parser.Page
	ops    []contentstream.Operation

	resources *raw.DictObj
	// categories holds the Font, XObject and ExtGState subdictionaries,
	// resolved and copied so they can be extended.
	categories map[string]*raw.DictObj
	fontNames  map[fonts.Font]string
	imageNames map[*Image]string
	gsNames    map[string]string
}

// Page returns the builder for p, loading its current resources on first
// use.
func (o *Overlay) Page(ctx context.Context, p *parser.Page) (PageBuilder, error) {
	if pb, ok := o.pages[p.Index]; ok {
		return pb, nil
	}
	resources := raw.Dict()
	if p.Resources != nil {
		d, err := o.res.Dict(ctx, p.Resources)
		if err != nil {
			return nil, fmt.Errorf("page %d resources: %w", p.Index+1, err)
		}
		resources = d.Clone()
	}
	pb := &pageBuilderImpl{
		parent:     o,
		page:       p,
		resources:  resources,
		categories: make(map[string]*raw.DictObj),
		fontNames:  make(map[fonts.Font]string),
		imageNames: make(map[*Image]string),
		gsNames:    make(map[string]string),
	}
	for _, cat := range []string{"Font", "XObject", "ExtGState"} {
		sub := raw.Dict()
		if v, ok := resources.Lookup(cat); ok {
			d, err := o.res.Dict(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("page %d /%s: %w", p.Index+1, cat, err)
			}
			sub = d.Clone()
		}
		pb.categories[cat] = sub
	}
	o.pages[p.Index] = pb
	return pb, nil
}

// Finish writes the content streams and replacement page dictionaries for
// every page drawn on, then lets each font write its deferred objects. No
// drawing may happen afterwards.
func (o *Overlay) Finish(ctx context.Context) error {
	if o.err != nil {
		return o.err
	}
	idx := make([]int, 0, len(o.pages))
	for i := range o.pages {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.pages[i].finish(ctx); err != nil {
			return err
		}
	}
	for _, f := range o.fontOrder {
		if err := f.Finish(o.objs); err != nil {
			return fmt.Errorf("font %s: %w", f.Name(), err)
		}
	}
	return nil
}

func (o *Overlay) fontRef(f fonts.Font) (raw.ObjectRef, bool) {
	if ref, ok := o.fontRefs[f]; ok {
		return ref, true
	}
	ref, err := f.Embed(o.objs)
	if err != nil {
		if o.err == nil {
			o.err = fmt.Errorf("embed font %s: %w", f.Name(), err)
		}
		return raw.ObjectRef{}, false
	}
	o.fontRefs[f] = ref
	o.fontOrder = append(o.fontOrder, f)
	return ref, true
}

func (o *Overlay) imageRef(img *Image) raw.ObjectRef {
	if ref, ok := o.imageRefs[img]; ok {
		return ref
	}
	dict := img.stream.Dict.Clone()
	if img.smask != nil {
		dict.Put("SMask", raw.RefObj{R: o.objs.Add(img.smask)})
	}
	ref := o.objs.Add(raw.NewStream(dict, img.stream.Data))
	o.imageRefs[img] = ref
	return ref
}

// toPDF maps a page-space point to user space, honouring a MediaBox that
// does not start at the origin.
func (p *pageBuilderImpl) toPDF(x, y float64) coords.Point {
	mb := p.page.MediaBox
	pt := coords.ToPDF(mb.Height(), x, y)
	return coords.Point{X: pt.X + mb.LLX, Y: pt.Y + mb.LLY}
}

func (p *pageBuilderImpl) DrawText(lines []string, x, y float64, opts TextOptions) PageBuilder {
	if opts.Font == nil || len(lines) == 0 || invisible(opts.Color) {
		return p
	}
	size := opts.FontSize
	if size <= 0 {
		size = DefaultFontSize
	}
	lh := opts.LineHeight
	if lh <= 0 {
		lh = 1
	}
	name, ok := p.fontName(opts.Font)
	if !ok {
		return p
	}
	// The first baseline sits one font size below the box top.
	origin := p.toPDF(x, y+size)

	p.ops = append(p.ops, contentstream.Op("q"))
	p.fill(opts.Color)
	p.ops = append(p.ops,
		contentstream.Op("BT"),
		contentstream.Op("Tf", contentstream.Name(name), size),
		contentstream.Op("TL", size*lh),
		contentstream.Op("Td", origin.X, origin.Y),
	)
	for i, line := range lines {
		if i > 0 {
			p.ops = append(p.ops, contentstream.Op("T*"))
		}
		p.ops = append(p.ops, contentstream.Op("Tj", contentstream.HexString(opts.Font.Encode(line))))
	}
	p.ops = append(p.ops, contentstream.Op("ET"), contentstream.Op("Q"))
	return p
}

func (p *pageBuilderImpl) DrawImage(img *Image, x, y, width, height float64) PageBuilder {
	if img == nil || width <= 0 || height <= 0 {
		return p
	}
	name, ok := p.imageNames[img]
	if !ok {
		name = p.allocate("XObject", "Im", raw.RefObj{R: p.parent.imageRef(img)})
		p.imageNames[img] = name
	}
	origin := p.toPDF(x, y+height)
	p.ops = append(p.ops,
		contentstream.Op("q"),
		contentstream.Op("cm", width, 0, 0, height, origin.X, origin.Y),
		contentstream.Op("Do", contentstream.Name(name)),
		contentstream.Op("Q"),
	)
	return p
}

// DrawPath strokes path, given in a y-down space, with its origin at (x, y)
// and uniformly scaled by scale.
func (p *pageBuilderImpl) DrawPath(path *contentstream.Path, x, y, scale float64, opts PathOptions) PageBuilder {
	if path == nil || path.Empty() || scale <= 0 || invisible(opts.StrokeColor) {
		return p
	}
	lw := opts.LineWidth
	if lw <= 0 {
		lw = 1
	}
	origin := p.toPDF(x, y)
	m := coords.Scale(scale, -scale).Multiply(coords.Translate(origin.X, origin.Y))

	p.ops = append(p.ops,
		contentstream.Op("q"),
		contentstream.Op("J", int(opts.LineCap)),
		contentstream.Op("j", int(opts.LineJoin)),
		contentstream.Op("cm", m[0], m[1], m[2], m[3], m[4], m[5]),
	)
	p.stroke(opts.StrokeColor)
	p.ops = append(p.ops, contentstream.Op("w", lw))
	p.ops = append(p.ops, pathOps(path)...)
	p.ops = append(p.ops, contentstream.Op("S"), contentstream.Op("Q"))
	return p
}

func (p *pageBuilderImpl) Ops() []contentstream.Operation { return p.ops }

func pathOps(path *contentstream.Path) []contentstream.Operation {
	var ops []contentstream.Operation
	for _, sp := range path.Subpaths {
		for _, pt := range sp.Points {
			switch pt.Type {
			case contentstream.PathMoveTo:
				ops = append(ops, contentstream.Op("m", pt.X, pt.Y))
			case contentstream.PathLineTo:
				ops = append(ops, contentstream.Op("l", pt.X, pt.Y))
			case contentstream.PathCurveTo:
				ops = append(ops, contentstream.Op("c", pt.Control1X, pt.Control1Y, pt.Control2X, pt.Control2Y, pt.X, pt.Y))
			case contentstream.PathClose:
				ops = append(ops, contentstream.Op("h"))
			}
		}
		if sp.Closed {
			ops = append(ops, contentstream.Op("h"))
		}
	}
	return ops
}

func invisible(c *csscolor.Color) bool { return c != nil && c.A <= 0 }

func (p *pageBuilderImpl) fill(color *csscolor.Color) {
	c := csscolor.Black
	if color != nil {
		c = *color
	}
	p.alpha("ca", c.A)
	p.ops = append(p.ops, contentstream.Op("rg", c.R, c.G, c.B))
}

func (p *pageBuilderImpl) stroke(color *csscolor.Color) {
	c := csscolor.Black
	if color != nil {
		c = *color
	}
	p.alpha("CA", c.A)
	p.ops = append(p.ops, contentstream.Op("RG", c.R, c.G, c.B))
}

// alpha selects a graphics state with the given constant alpha; opaque
// colors need none.
func (p *pageBuilderImpl) alpha(key string, a float64) {
	if a >= 1 {
		return
	}
	a = math.Max(a, 0)
	id := key + strconv.FormatFloat(a, 'f', -1, 64)
	name, ok := p.gsNames[id]
	if !ok {
		gs := raw.Dict()
		gs.Put("Type", raw.NameLiteral("ExtGState"))
		gs.Put(key, raw.NumberFloat(a))
		name = p.allocate("ExtGState", "GS", gs)
		p.gsNames[id] = name
	}
	p.ops = append(p.ops, contentstream.Op("gs", contentstream.Name(name)))
}

func (p *pageBuilderImpl) fontName(f fonts.Font) (string, bool) {
	if name, ok := p.fontNames[f]; ok {
		return name, true
	}
	ref, ok := p.parent.fontRef(f)
	if !ok {
		return "", false
	}
	name := p.allocate("Font", "F", raw.RefObj{R: ref})
	p.fontNames[f] = name
	return name, true
}

// allocate stores obj under the first unused prefixN name in the category.
func (p *pageBuilderImpl) allocate(category, prefix string, obj raw.Object) string {
	sub := p.categories[category]
	for n := 1; ; n++ {
		name := prefix + strconv.Itoa(n)
		if _, taken := sub.Lookup(name); !taken {
			sub.Put(name, obj)
			return name
		}
	}
}

// finish wraps the existing content in q/Q so a leftover transform cannot
// displace the overlay, appends the overlay stream and replaces the page.
func (p *pageBuilderImpl) finish(ctx context.Context) error {
	if len(p.ops) == 0 {
		return nil
	}
	o := p.parent
	if p.page.Ref.Num == 0 {
		return fmt.Errorf("page %d is a direct object and cannot be replaced", p.page.Index+1)
	}
	var contents []raw.Object
	if existing, ok := p.page.Dict.Lookup("Contents"); ok {
		items := []raw.Object{existing}
		v, err := o.res.Resolve(ctx, existing)
		if err != nil {
			return fmt.Errorf("page %d contents: %w", p.page.Index+1, err)
		}
		if arr, ok := v.(*raw.ArrayObj); ok {
			items = arr.Items
		}
		contents = append(contents, raw.RefObj{R: o.objs.Add(raw.NewStream(raw.Dict(), []byte("q\n")))})
		contents = append(contents, items...)
		p.ops = append([]contentstream.Operation{contentstream.Op("Q")}, p.ops...)
	}
	overlay := raw.NewStream(raw.Dict(), contentstream.Serialize(p.ops))
	contents = append(contents, raw.RefObj{R: o.objs.Add(overlay)})

	for cat, sub := range p.categories {
		if sub.Len() > 0 {
			p.resources.Put(cat, sub)
		}
	}
	dict := p.page.Dict.Clone()
	dict.Put("Contents", raw.NewArray(contents...))
	dict.Put("Resources", p.resources)
	o.objs.Replace(p.page.Ref, dict)
	return nil
}
