package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfannot/filters"
	"github.com/wudi/pdfannot/ir/raw"
	"github.com/wudi/pdfannot/scanner"
)

var (
	ErrNoStartXRef = errors.New("startxref not found")
	ErrBadXRef     = errors.New("malformed xref section")
)

// EntryKind distinguishes xref entry types.
type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. Compressed entries live inside object stream
// Stream at position Index.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table holds the merged cross-reference information of a document,
// newest revision first.
type Table interface {
	Lookup(objNum int) (Entry, bool)
	Objects() []int
	Type() string
	Trailer() *raw.DictObj
	// StartXRef is the byte offset of the newest xref section.
	StartXRef() int64
	// Size is one greater than the highest object number in use.
	Size() int
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
}

type ResolverConfig struct {
	MaxXRefDepth int
	Filters      *filters.Pipeline
	// DisableRepair makes broken xref data a hard error instead of
	// triggering a full-file object scan.
	DisableRepair bool
}

// NewResolver returns a resolver handling classic tables, xref streams,
// hybrid files and /Prev chains.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 64
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.NewDefaultPipeline(filters.Limits{})
	}
	return &resolver{cfg: cfg}
}

type resolver struct {
	cfg ResolverConfig
}

func (r *resolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	t, err := r.resolveChain(ctx, data)
	if err == nil {
		return t, nil
	}
	if r.cfg.DisableRepair {
		return nil, err
	}
	repaired, rerr := repair(ctx, data)
	if rerr != nil {
		return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	return repaired, nil
}

func (r *resolver) resolveChain(ctx context.Context, data []byte) (*table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := &table{entries: make(map[int]Entry), startxref: start}
	seen := make(map[int64]bool)
	offset := start
	for depth := 0; offset >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth || seen[offset] {
			break
		}
		seen[offset] = true
		trailer, kind, err := r.readSection(ctx, data, offset, t)
		if err != nil {
			return nil, err
		}
		if t.trailer == nil {
			t.trailer = trailer
			t.kind = kind
		}
		// Hybrid files point at an xref stream carrying compressed entries.
		if stm, ok := intValue(trailer, "XRefStm"); ok && !seen[stm] {
			seen[stm] = true
			if _, _, err := r.readSection(ctx, data, stm, t); err != nil {
				return nil, err
			}
		}
		prev, ok := intValue(trailer, "Prev")
		if !ok {
			break
		}
		offset = prev
	}
	if t.trailer == nil {
		return nil, ErrBadXRef
	}
	if _, ok := t.trailer.Lookup("Root"); !ok {
		return nil, fmt.Errorf("%w: trailer has no /Root", ErrBadXRef)
	}
	return t, nil
}

func (r *resolver) readSection(ctx context.Context, data []byte, offset int64, t *table) (*raw.DictObj, string, error) {
	if offset <= 0 || offset >= int64(len(data)) {
		return nil, "", fmt.Errorf("%w: offset %d out of range", ErrBadXRef, offset)
	}
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, "", err
	}
	tok, err := s.Next()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadXRef, err)
	}
	if tok.IsKeyword("xref") {
		trailer, err := readClassic(s, t)
		return trailer, "table", err
	}
	if err := s.Seek(offset); err != nil {
		return nil, "", err
	}
	trailer, err := r.readStream(ctx, s, t)
	return trailer, "stream", err
}

func readClassic(s *scanner.Scanner, t *table) (*raw.DictObj, error) {
	rd := raw.NewReader(s, nil)
	for {
		tok, err := rd.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
		}
		if tok.IsKeyword("trailer") {
			obj, err := rd.ReadObject()
			if err != nil {
				return nil, fmt.Errorf("%w: trailer: %v", ErrBadXRef, err)
			}
			dict, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, fmt.Errorf("%w: trailer is not a dictionary", ErrBadXRef)
			}
			return dict, nil
		}
		countTok, err := rd.Next()
		if err != nil || tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("%w: invalid subsection header", ErrBadXRef)
		}
		first, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			off, err1 := rd.Next()
			gen, err2 := rd.Next()
			typ, err3 := rd.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("%w: truncated subsection", ErrBadXRef)
			}
			if off.Type != scanner.TokenNumber || gen.Type != scanner.TokenNumber {
				return nil, fmt.Errorf("%w: invalid entry for object %d", ErrBadXRef, first+i)
			}
			e := Entry{Kind: EntryFree, Offset: off.Int, Gen: int(gen.Int)}
			if typ.IsKeyword("n") {
				e.Kind = EntryInUse
			}
			t.add(first+i, e)
		}
	}
}

func (r *resolver) readStream(ctx context.Context, s *scanner.Scanner, t *table) (*raw.DictObj, error) {
	_, obj, err := raw.NewReader(s, nil).ReadIndirect()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadXRef, err)
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("%w: expected xref stream", ErrBadXRef)
	}
	if typ, _ := raw.AsName(valueOr(stm.Dict, "Type")); typ != "XRef" {
		return nil, fmt.Errorf("%w: stream is not /Type /XRef", ErrBadXRef)
	}
	data, err := r.cfg.Filters.DecodeStream(ctx, stm)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}
	widths := intArray(stm.Dict, "W")
	if len(widths) != 3 {
		return nil, fmt.Errorf("%w: /W must have 3 entries", ErrBadXRef)
	}
	size, _ := intValue(stm.Dict, "Size")
	index := intArray(stm.Dict, "Index")
	if len(index) == 0 {
		index = []int64{0, size}
	}
	rowLen := int(widths[0] + widths[1] + widths[2])
	if rowLen <= 0 {
		return nil, fmt.Errorf("%w: empty /W", ErrBadXRef)
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(data) {
				return stm.Dict, nil
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			f1 := readField(row[:widths[0]], 1)
			f2 := readField(row[widths[0]:widths[0]+widths[1]], 0)
			f3 := readField(row[widths[0]+widths[1]:], 0)
			var e Entry
			switch f1 {
			case 0:
				e = Entry{Kind: EntryFree, Gen: int(f3)}
			case 1:
				e = Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)}
			case 2:
				e = Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)}
			default:
				continue
			}
			t.add(first+j, e)
		}
	}
	return stm.Dict, nil
}

func readField(b []byte, def int64) int64 {
	if len(b) == 0 {
		return def
	}
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	return off, nil
}

type table struct {
	entries   map[int]Entry
	trailer   *raw.DictObj
	kind      string
	startxref int64
}

// add records e unless a newer revision already defined objNum.
func (t *table) add(objNum int, e Entry) {
	if _, ok := t.entries[objNum]; ok {
		return
	}
	t.entries[objNum] = e
}

func (t *table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind == EntryFree {
		return Entry{}, false
	}
	return e, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string          { return t.kind }
func (t *table) Trailer() *raw.DictObj { return t.trailer }
func (t *table) StartXRef() int64      { return t.startxref }

func (t *table) Size() int {
	size := 0
	if n, ok := intValue(t.trailer, "Size"); ok {
		size = int(n)
	}
	for k := range t.entries {
		if k+1 > size {
			size = k + 1
		}
	}
	return size
}

func valueOr(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Lookup(key)
	return v
}

func intValue(d *raw.DictObj, key string) (int64, bool) {
	v, ok := d.Lookup(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(raw.NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

func intArray(d *raw.DictObj, key string) []int64 {
	v, ok := d.Lookup(key)
	if !ok {
		return nil
	}
	arr, ok := v.(*raw.ArrayObj)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(arr.Items))
	for _, it := range arr.Items {
		if n, ok := it.(raw.NumberObj); ok {
			out = append(out, n.Int())
		}
	}
	return out
}
