package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfannot/filters"
	"github.com/wudi/pdfannot/ir/raw"
	"github.com/wudi/pdfannot/observability"
	"github.com/wudi/pdfannot/recovery"
	"github.com/wudi/pdfannot/xref"
)

var errPageLimit = errors.New("page count exceeds limit")

// Rect is a PDF rectangle normalized so that LLX <= URX and LLY <= URY.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

// Page is one leaf of the page tree with inherited attributes applied.
type Page struct {
	Index    int
	Ref      raw.ObjectRef
	Dict     *raw.DictObj
	MediaBox Rect
	CropBox  Rect
	Rotate   int
	// Resources is the effective resource dictionary, possibly inherited;
	// it may be a reference.
	Resources raw.Object
}

// Size returns the dimensions used for page-space coordinates.
func (p *Page) Size() (width, height float64) {
	return p.MediaBox.Width(), p.MediaBox.Height()
}

// Document is a parsed PDF whose objects are loaded on demand.
type Document struct {
	Data       []byte
	Version    string
	XRef       xref.Table
	Trailer    *raw.DictObj
	Catalog    *raw.DictObj
	CatalogRef raw.ObjectRef
	Pages      []*Page

	loader  ObjectLoader
	filters *filters.Pipeline
	recover recovery.Strategy
	logger  observability.Logger
}

// Resolve follows references until a direct object is reached.
func (d *Document) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	for depth := 0; ; depth++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		next, err := d.loader.LoadIndirect(ctx, ref.R, depth)
		if err != nil {
			return nil, err
		}
		obj = next
	}
}

// Dict resolves obj and requires a dictionary. Stream dictionaries qualify.
func (d *Document) Dict(ctx context.Context, obj raw.Object) (*raw.DictObj, error) {
	v, err := d.Resolve(ctx, obj)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case *raw.DictObj:
		return t, nil
	case *raw.StreamObj:
		return t.Dict, nil
	}
	return nil, fmt.Errorf("expected dictionary, got %s", v.Type())
}

// Load returns the object stored under ref.
func (d *Document) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return d.loader.Load(ctx, ref)
}

// DecodeStream returns the decoded payload of a stream object.
func (d *Document) DecodeStream(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
	return d.filters.DecodeStream(ctx, s)
}

// ContentLength sums the decoded size of a page's content streams.
func (d *Document) ContentLength(ctx context.Context, p *Page) (int, error) {
	contents, ok := p.Dict.Lookup("Contents")
	if !ok {
		return 0, nil
	}
	obj, err := d.Resolve(ctx, contents)
	if err != nil {
		return 0, err
	}
	var items []raw.Object
	if arr, ok := obj.(*raw.ArrayObj); ok {
		items = arr.Items
	} else {
		items = []raw.Object{obj}
	}
	total := 0
	for _, it := range items {
		v, err := d.Resolve(ctx, it)
		if err != nil {
			return 0, err
		}
		st, ok := v.(*raw.StreamObj)
		if !ok {
			continue
		}
		data, err := d.DecodeStream(ctx, st)
		if err != nil {
			return 0, err
		}
		total += len(data)
	}
	return total, nil
}

type inherited struct {
	mediaBox  *Rect
	cropBox   *Rect
	rotate    *int
	resources raw.Object
}

func (d *Document) walkPages(ctx context.Context, node raw.Object, inh inherited, depth, maxPages int, seen map[raw.ObjectRef]bool) error {
	if depth > 64 {
		return errors.New("page tree too deep")
	}
	ref, isRef := node.(raw.RefObj)
	if isRef {
		if seen[ref.R] {
			return fmt.Errorf("page tree cycle at %s", ref.R)
		}
		seen[ref.R] = true
	}
	dict, err := d.Dict(ctx, node)
	if err != nil {
		return err
	}

	if mb, ok := d.rect(ctx, dict, "MediaBox"); ok {
		inh.mediaBox = &mb
	}
	if cb, ok := d.rect(ctx, dict, "CropBox"); ok {
		inh.cropBox = &cb
	}
	if rot, ok := dict.Lookup("Rotate"); ok {
		if v, err := d.Resolve(ctx, rot); err == nil {
			if n, ok := raw.AsNumber(v); ok {
				r := normalizeRotation(int(n))
				inh.rotate = &r
			}
		}
	}
	if res, ok := dict.Lookup("Resources"); ok {
		inh.resources = res
	}

	typ, _ := raw.AsName(valueOf(dict, "Type"))
	kidsObj, hasKids := dict.Lookup("Kids")
	if typ == "Pages" || (typ == "" && hasKids) {
		kids, err := d.Resolve(ctx, kidsObj)
		if err != nil {
			return err
		}
		arr, ok := kids.(*raw.ArrayObj)
		if !ok {
			return errors.New("/Kids is not an array")
		}
		for _, kid := range arr.Items {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := d.walkPages(ctx, kid, inh, depth+1, maxPages, seen)
			if err == nil {
				continue
			}
			if errors.Is(err, errPageLimit) || ctx.Err() != nil {
				return err
			}
			loc := recovery.Location{Component: "page tree"}
			if r, ok := kid.(raw.RefObj); ok {
				loc.ObjectNum, loc.ObjectGen = r.R.Num, r.R.Gen
			}
			if d.recover.OnError(ctx, err, loc) != recovery.ActionSkip {
				return err
			}
			d.logger.Warn("skipped damaged page tree entry",
				observability.String("at", loc.String()),
				observability.Error("error", err))
		}
		return nil
	}

	if len(d.Pages) >= maxPages {
		return fmt.Errorf("%w %d", errPageLimit, maxPages)
	}
	page := &Page{Index: len(d.Pages), Dict: dict, Resources: inh.resources}
	if isRef {
		page.Ref = ref.R
	}
	if inh.mediaBox != nil {
		page.MediaBox = *inh.mediaBox
	} else {
		// US Letter is the conventional default for a missing MediaBox.
		page.MediaBox = Rect{0, 0, 612, 792}
	}
	page.CropBox = page.MediaBox
	if inh.cropBox != nil {
		page.CropBox = intersect(*inh.cropBox, page.MediaBox)
	}
	if inh.rotate != nil {
		page.Rotate = *inh.rotate
	}
	d.Pages = append(d.Pages, page)
	return nil
}

func (d *Document) rect(ctx context.Context, dict *raw.DictObj, key string) (Rect, bool) {
	v, ok := dict.Lookup(key)
	if !ok {
		return Rect{}, false
	}
	obj, err := d.Resolve(ctx, v)
	if err != nil {
		return Rect{}, false
	}
	arr, ok := obj.(*raw.ArrayObj)
	if !ok || arr.Len() != 4 {
		return Rect{}, false
	}
	var vals [4]float64
	for i, it := range arr.Items {
		it, err := d.Resolve(ctx, it)
		if err != nil {
			return Rect{}, false
		}
		n, ok := raw.AsNumber(it)
		if !ok {
			return Rect{}, false
		}
		vals[i] = n
	}
	r := Rect{LLX: min(vals[0], vals[2]), LLY: min(vals[1], vals[3]), URX: max(vals[0], vals[2]), URY: max(vals[1], vals[3])}
	if r.Width() <= 0 || r.Height() <= 0 {
		return Rect{}, false
	}
	return r, true
}

func intersect(a, b Rect) Rect {
	r := Rect{LLX: max(a.LLX, b.LLX), LLY: max(a.LLY, b.LLY), URX: min(a.URX, b.URX), URY: min(a.URY, b.URY)}
	if r.Width() <= 0 || r.Height() <= 0 {
		return b
	}
	return r
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r - r%90
}
