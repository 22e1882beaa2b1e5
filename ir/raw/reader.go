package raw

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfannot/scanner"
)

var ErrSyntax = errors.New("pdf syntax error")

// LengthFunc resolves a stream's /Length entry, which may be an indirect
// reference. It returns -1 when the length is unknown.
type LengthFunc func(dict *DictObj) int64

// Reader parses objects from a token stream.
type Reader struct {
	s      *scanner.Scanner
	buf    []scanner.Token
	length LengthFunc
}

// NewReader wraps s. length may be nil, in which case only direct
// /Length values are honoured.
func NewReader(s *scanner.Scanner, length LengthFunc) *Reader {
	if length == nil {
		length = DirectLength
	}
	return &Reader{s: s, length: length}
}

// DirectLength reads a direct integer /Length.
func DirectLength(dict *DictObj) int64 {
	v, ok := dict.Lookup("Length")
	if !ok {
		return -1
	}
	if n, ok := v.(NumberObj); ok {
		return n.Int()
	}
	return -1
}

// Seek repositions the underlying scanner and drops buffered tokens.
func (r *Reader) Seek(off int64) error {
	r.buf = r.buf[:0]
	return r.s.Seek(off)
}

func (r *Reader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *Reader) unread(tok scanner.Token) {
	r.buf = append(r.buf, tok)
}

// Next returns the next raw token, honouring any pushed-back tokens.
func (r *Reader) Next() (scanner.Token, error) { return r.next() }

// ReadIndirect parses "num gen obj ... endobj" at the current position.
func (r *Reader) ReadIndirect() (ObjectRef, Object, error) {
	numTok, err := r.next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	genTok, err := r.next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	kw, err := r.next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	if numTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || !kw.IsKeyword("obj") {
		return ObjectRef{}, nil, fmt.Errorf("%w: expected object header at %d", ErrSyntax, numTok.Pos)
	}
	ref := ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}
	obj, err := r.ReadObject()
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	if dict, ok := obj.(*DictObj); ok {
		tok, err := r.next()
		if err == nil && tok.IsKeyword("stream") {
			if len(r.buf) > 0 {
				return ref, nil, fmt.Errorf("%w: stream after pushed-back token", ErrSyntax)
			}
			data, err := r.s.ReadStreamData(r.length(dict))
			if err != nil {
				return ref, nil, fmt.Errorf("object %s stream: %w", ref, err)
			}
			obj = NewStream(dict, data)
			if end, err := r.next(); err == nil && !end.IsKeyword("endstream") {
				r.unread(end)
			}
		} else if err == nil {
			r.unread(tok)
		}
	}
	if tok, err := r.next(); err == nil && !tok.IsKeyword("endobj") {
		r.unread(tok)
	}
	return ref, obj, nil
}

// ReadObject parses one direct object, folding "num gen R" into a reference.
func (r *Reader) ReadObject() (Object, error) {
	tok, err := r.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if !tok.IsInt {
			return NumberFloat(tok.Float), nil
		}
		if ref, ok := r.tryRef(tok); ok {
			return ref, nil
		}
		return NumberInt(tok.Int), nil
	case scanner.TokenBoolean:
		return Bool(tok.Bool), nil
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenString:
		return StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenArray:
		return r.readArray()
	case scanner.TokenDict:
		return r.readDict()
	}
	return nil, fmt.Errorf("%w: unexpected %s %q at %d", ErrSyntax, tok.Type, tok.Str, tok.Pos)
}

func (r *Reader) tryRef(first scanner.Token) (Object, bool) {
	gen, err := r.next()
	if err != nil {
		return nil, false
	}
	if gen.Type != scanner.TokenNumber || !gen.IsInt {
		r.unread(gen)
		return nil, false
	}
	kw, err := r.next()
	if err != nil {
		r.unread(gen)
		return nil, false
	}
	if !kw.IsKeyword("R") {
		r.unread(kw)
		r.unread(gen)
		return nil, false
	}
	return Ref(int(first.Int), int(gen.Int)), true
}

func (r *Reader) readArray() (Object, error) {
	arr := &ArrayObj{}
	for {
		tok, err := r.next()
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		if tok.IsKeyword("]") {
			return arr, nil
		}
		r.unread(tok)
		item, err := r.ReadObject()
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *Reader) readDict() (Object, error) {
	d := Dict()
	for {
		tok, err := r.next()
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		if tok.IsKeyword(">>") {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("%w: expected name in dict, got %s at %d", ErrSyntax, tok.Type, tok.Pos)
		}
		val, err := r.ReadObject()
		if err != nil {
			return nil, err
		}
		if _, isNull := val.(NullObj); isNull {
			continue
		}
		d.Put(tok.Str, val)
	}
}
