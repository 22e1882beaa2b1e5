package xref

import (
	"context"
	"errors"
	"io"

	"github.com/wudi/pdfannot/ir/raw"
	"github.com/wudi/pdfannot/scanner"
)

var ErrRepairFailed = errors.New("repair failed: no objects found")

// repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" patterns and "trailer" dictionaries; when no
// trailer survives it synthesizes one pointing at the last catalog found.
func repair(ctx context.Context, data []byte) (Table, error) {
	s := scanner.New(data, scanner.Config{})
	entries := make(map[int]Entry)
	var lastTrailer *raw.DictObj
	var catalog *raw.ObjectRef
	var window [2]scanner.Token
	filled := 0

	for i := 0; ; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Skip the offending byte and keep scanning.
			_ = s.Seek(s.Position() + 1)
			filled = 0
			continue
		}

		switch {
		case tok.IsKeyword("obj") && filled == 2 &&
			window[0].Type == scanner.TokenNumber && window[0].IsInt &&
			window[1].Type == scanner.TokenNumber && window[1].IsInt:
			num := int(window[0].Int)
			entries[num] = Entry{Kind: EntryInUse, Offset: window[0].Pos, Gen: int(window[1].Int)}
			if isCatalogAt(data, window[0].Pos) {
				ref := raw.ObjectRef{Num: num, Gen: int(window[1].Int)}
				catalog = &ref
			}
		case tok.IsKeyword("stream"):
			// Jump over binary payloads.
			_, _ = s.ReadStreamData(-1)
		case tok.IsKeyword("trailer"):
			rd := raw.NewReader(s, nil)
			if obj, err := rd.ReadObject(); err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					if _, hasRoot := dict.Lookup("Root"); hasRoot {
						lastTrailer = dict
					}
				}
			}
		}
		window[0], window[1] = window[1], tok
		if filled < 2 {
			filled++
		}
	}

	if len(entries) == 0 {
		return nil, ErrRepairFailed
	}
	if lastTrailer == nil {
		if catalog == nil {
			return nil, ErrRepairFailed
		}
		lastTrailer = raw.Dict()
		lastTrailer.Put("Root", raw.RefObj{R: *catalog})
	}
	lastTrailer = lastTrailer.Clone()
	lastTrailer.Delete("Prev")
	lastTrailer.Delete("XRefStm")

	t := &table{entries: entries, trailer: lastTrailer, kind: "repaired", startxref: -1}
	lastTrailer.Put("Size", raw.NumberInt(int64(t.Size())))
	return t, nil
}

func isCatalogAt(data []byte, off int64) bool {
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(off); err != nil {
		return false
	}
	rd := raw.NewReader(s, nil)
	for i := 0; i < 3; i++ {
		if _, err := rd.Next(); err != nil {
			return false
		}
	}
	obj, err := rd.ReadObject()
	if err != nil {
		return false
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return false
	}
	typ, _ := raw.AsName(valueOr(dict, "Type"))
	return typ == "Catalog"
}
