package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdfannot/filters"
	"github.com/wudi/pdfannot/ir/raw"
	"github.com/wudi/pdfannot/scanner"
	"github.com/wudi/pdfannot/xref"
)

var (
	ErrObjectNotFound = errors.New("object not found in xref")
	ErrMaxDepth       = errors.New("max indirect depth exceeded")
)

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
	LoadIndirect(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	data      []byte
	xrefTable xref.Table
	pipeline  *filters.Pipeline
	maxDepth  int
	limits    Limits
}

func (b *ObjectLoaderBuilder) WithXRef(table xref.Table) *ObjectLoaderBuilder {
	b.xrefTable = table
	return b
}
func (b *ObjectLoaderBuilder) WithData(data []byte) *ObjectLoaderBuilder {
	b.data = data
	return b
}
func (b *ObjectLoaderBuilder) WithFilters(p *filters.Pipeline) *ObjectLoaderBuilder {
	b.pipeline = p
	return b
}
func (b *ObjectLoaderBuilder) WithLimits(l Limits) *ObjectLoaderBuilder { b.limits = l; return b }
func (b *ObjectLoaderBuilder) WithMaxDepth(n int) *ObjectLoaderBuilder  { b.maxDepth = n; return b }

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.data == nil || b.xrefTable == nil {
		return nil, errors.New("data and xrefTable required")
	}
	maxDepth := b.maxDepth
	if maxDepth == 0 {
		maxDepth = b.limits.MaxIndirectDepth
		if maxDepth == 0 {
			maxDepth = DefaultLimits().MaxIndirectDepth
		}
	}
	p := b.pipeline
	if p == nil {
		p = filters.NewDefaultPipeline(filters.Limits{MaxDecompressedSize: b.limits.MaxDecompressedSize})
	}
	return &objectLoader{
		data:      b.data,
		xrefTable: b.xrefTable,
		pipeline:  p,
		maxDepth:  maxDepth,
		limits:    b.limits,
		cache:     make(map[raw.ObjectRef]raw.Object),
		objstm:    make(map[int]map[int]raw.Object),
	}, nil
}

type objectLoader struct {
	data      []byte
	xrefTable xref.Table
	pipeline  *filters.Pipeline
	maxDepth  int
	limits    Limits
	mu        sync.Mutex
	cache     map[raw.ObjectRef]raw.Object
	objstm    map[int]map[int]raw.Object
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return o.LoadIndirect(ctx, ref, 0)
}

func (o *objectLoader) LoadIndirect(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if depth > o.maxDepth {
		return nil, ErrMaxDepth
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if obj, ok := o.cache[ref]; ok {
		return obj, nil
	}
	obj, err := o.loadLocked(ctx, ref, depth)
	if err != nil {
		return nil, err
	}
	o.cache[ref] = obj
	return obj, nil
}

// loadLocked assumes caller holds the loader mutex.
func (o *objectLoader) loadLocked(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	e, found := o.xrefTable.Lookup(ref.Num)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	if e.Kind == xref.EntryCompressed {
		return o.loadFromObjectStream(ctx, e.Stream, e.Index, ref.Num, depth)
	}
	return o.loadAtOffset(ctx, ref, e.Offset, depth)
}

func (o *objectLoader) loadAtOffset(ctx context.Context, ref raw.ObjectRef, offset int64, depth int) (raw.Object, error) {
	s := scanner.New(o.data, scanner.Config{MaxStringLength: o.limits.MaxStringLength})
	if err := s.Seek(offset); err != nil {
		return nil, fmt.Errorf("object %s: %w", ref, err)
	}
	rd := raw.NewReader(s, func(dict *raw.DictObj) int64 {
		return o.streamLength(ctx, dict, depth)
	})
	got, obj, err := rd.ReadIndirect()
	if err != nil {
		return nil, err
	}
	if got.Num != ref.Num {
		return nil, fmt.Errorf("object header mismatch: want %s, found %s", ref, got)
	}
	return obj, nil
}

// streamLength resolves an indirect /Length without re-entering the mutex.
func (o *objectLoader) streamLength(ctx context.Context, dict *raw.DictObj, depth int) int64 {
	v, ok := dict.Lookup("Length")
	if !ok {
		return -1
	}
	if r, ok := v.(raw.RefObj); ok {
		if cached, ok := o.cache[r.R]; ok {
			v = cached
		} else {
			e, found := o.xrefTable.Lookup(r.R.Num)
			if !found || e.Kind != xref.EntryInUse || depth >= o.maxDepth {
				return -1
			}
			obj, err := o.loadAtOffset(ctx, r.R, e.Offset, depth+1)
			if err != nil {
				return -1
			}
			o.cache[r.R] = obj
			v = obj
		}
	}
	if n, ok := v.(raw.NumberObj); ok {
		return n.Int()
	}
	return -1
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, streamNum, idx, objNum, depth int) (raw.Object, error) {
	objs, ok := o.objstm[streamNum]
	if !ok {
		var err error
		objs, err = o.parseObjectStream(ctx, streamNum, depth)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
		}
		o.objstm[streamNum] = objs
	}
	obj, ok := objs[objNum]
	if !ok {
		return nil, fmt.Errorf("%w: %d not in object stream %d (index %d)", ErrObjectNotFound, objNum, streamNum, idx)
	}
	return obj, nil
}

func (o *objectLoader) parseObjectStream(ctx context.Context, streamNum, depth int) (map[int]raw.Object, error) {
	e, ok := o.xrefTable.Lookup(streamNum)
	if !ok || e.Kind != xref.EntryInUse {
		return nil, errors.New("object stream entry missing")
	}
	obj, err := o.loadAtOffset(ctx, raw.ObjectRef{Num: streamNum, Gen: e.Gen}, e.Offset, depth+1)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("object stream is not a stream")
	}
	data, err := o.pipeline.DecodeStream(ctx, st)
	if err != nil {
		return nil, err
	}
	n := int(intFromDict(st.Dict, "N"))
	first := int(intFromDict(st.Dict, "First"))
	if first > len(data) {
		return nil, errors.New("object stream First exceeds length")
	}

	header := raw.NewReader(scanner.New(data[:first], scanner.Config{}), nil)
	pairs := make([]int64, 0, 2*n)
	for len(pairs) < 2*n {
		tok, err := header.Next()
		if err != nil {
			break
		}
		if tok.Type == scanner.TokenNumber && tok.IsInt {
			pairs = append(pairs, tok.Int)
		}
	}

	body := data[first:]
	objs := make(map[int]raw.Object, n)
	for i := 0; i+1 < len(pairs); i += 2 {
		num, off := int(pairs[i]), pairs[i+1]
		if off < 0 || off > int64(len(body)) {
			continue
		}
		s := scanner.New(body, scanner.Config{MaxStringLength: o.limits.MaxStringLength})
		if err := s.Seek(off); err != nil {
			continue
		}
		item, err := raw.NewReader(s, nil).ReadObject()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", num, err)
		}
		objs[num] = item
	}
	return objs, nil
}

func intFromDict(d *raw.DictObj, key string) int64 {
	v, ok := d.Lookup(key)
	if !ok {
		return 0
	}
	n, _ := v.(raw.NumberObj)
	return n.Int()
}
