package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfannot/filters"
	"github.com/wudi/pdfannot/ir/raw"
	"github.com/wudi/pdfannot/xref"
)

// XRefMode selects how the appended cross-reference section is written.
type XRefMode int

const (
	// XRefAuto matches the newest section of the original file.
	XRefAuto XRefMode = iota
	XRefTable
	XRefStream
)

type Config struct {
	XRef XRefMode
	// Compress flate-encodes new streams that carry no filter yet.
	Compress bool
}

var ErrNoBase = errors.New("incremental update requires original bytes and xref")

// Update collects new and replaced objects and appends them to the original
// bytes as one incremental-update section. The original bytes are never
// rewritten.
type Update struct {
	base    []byte
	table   xref.Table
	cfg     Config
	next    int
	objects map[int]raw.Object
	gens    map[int]int
	order   []int
}

func NewUpdate(base []byte, table xref.Table, cfg Config) (*Update, error) {
	if len(base) == 0 || table == nil {
		return nil, ErrNoBase
	}
	return &Update{
		base:    base,
		table:   table,
		cfg:     cfg,
		next:    table.Size(),
		objects: make(map[int]raw.Object),
		gens:    make(map[int]int),
	}, nil
}

// Add stores obj under a fresh object number.
func (u *Update) Add(obj raw.Object) raw.ObjectRef {
	ref := u.Reserve()
	u.Replace(ref, obj)
	return ref
}

// Reserve allocates an object number without storing anything yet.
func (u *Update) Reserve() raw.ObjectRef {
	ref := raw.ObjectRef{Num: u.next}
	u.next++
	return ref
}

// Replace overrides the object at ref in the new revision.
func (u *Update) Replace(ref raw.ObjectRef, obj raw.Object) {
	if _, ok := u.objects[ref.Num]; !ok {
		u.order = append(u.order, ref.Num)
	}
	u.objects[ref.Num] = obj
	u.gens[ref.Num] = ref.Gen
	if ref.Num >= u.next {
		u.next = ref.Num + 1
	}
}

// Empty reports whether nothing was added or replaced.
func (u *Update) Empty() bool { return len(u.objects) == 0 }

// Bytes returns the original file followed by the update section. An empty
// update returns the original bytes unchanged.
func (u *Update) Bytes(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(u.base) + 4096)
	if _, err := u.WriteTo(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (u *Update) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	if u.Empty() {
		n, err := w.Write(u.base)
		return int64(n), err
	}
	var out bytes.Buffer
	out.Write(u.base)
	if u.base[len(u.base)-1] != '\n' && u.base[len(u.base)-1] != '\r' {
		out.WriteByte('\n')
	}
	sectionStart := out.Len()

	offsets := make(map[int]int64, len(u.objects)+1)
	gens := make(map[int]int, len(u.objects)+1)
	for _, num := range u.order {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		obj, err := u.prepare(u.objects[num])
		if err != nil {
			return 0, fmt.Errorf("object %d: %w", num, err)
		}
		offsets[num] = int64(out.Len())
		gens[num] = u.gens[num]
		fmt.Fprintf(&out, "%d %d obj\n", num, u.gens[num])
		writePrimitive(&out, obj)
		out.WriteString("\nendobj\n")
	}

	full := u.table.StartXRef() < 0
	if full {
		// A repaired table has no trustworthy section to chain to, so the
		// new section lists every object.
		for _, n := range u.table.Objects() {
			if _, ok := offsets[n]; ok {
				continue
			}
			e, _ := u.table.Lookup(n)
			if e.Kind != xref.EntryInUse {
				continue
			}
			offsets[n] = e.Offset
			gens[n] = e.Gen
		}
		offsets[0] = 0
	}

	trailer := raw.Dict()
	old := u.table.Trailer()
	for _, k := range []string{"Root", "Info"} {
		if v, ok := old.Lookup(k); ok {
			trailer.Put(k, v)
		}
	}
	if !full {
		trailer.Put("Prev", raw.NumberInt(u.table.StartXRef()))
	}
	idOld, _ := old.Lookup("ID")
	trailer.Put("ID", updateID(idOld, out.Bytes()[sectionStart:]))

	xrefOffset := int64(out.Len())
	if u.useStream() {
		num := u.next
		offsets[num] = xrefOffset
		gens[num] = 0
		trailer.Put("Size", raw.NumberInt(int64(num+1)))
		index, entries := xrefStreamIndexAndEntries(offsets, gens)
		trailer.Put("Type", raw.NameLiteral("XRef"))
		trailer.Put("W", raw.Numbers(1, 4, 2))
		trailer.Put("Index", index)
		data, err := filters.FlateEncode(entries)
		if err != nil {
			return 0, fmt.Errorf("xref stream: %w", err)
		}
		trailer.Put("Filter", raw.NameLiteral("FlateDecode"))
		fmt.Fprintf(&out, "%d 0 obj\n", num)
		writePrimitive(&out, raw.NewStream(trailer, data))
		out.WriteString("\nendobj\n")
	} else {
		trailer.Put("Size", raw.NumberInt(int64(u.next)))
		out.Write(xrefTableSection(offsets, gens))
		out.WriteString("trailer\n")
		writePrimitive(&out, trailer)
		out.WriteString("\n")
	}
	fmt.Fprintf(&out, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	n, err := w.Write(out.Bytes())
	return int64(n), err
}

func (u *Update) useStream() bool {
	switch u.cfg.XRef {
	case XRefTable:
		return false
	case XRefStream:
		return true
	}
	return u.table.Type() == "stream"
}

func (u *Update) prepare(obj raw.Object) (raw.Object, error) {
	st, ok := obj.(*raw.StreamObj)
	if !ok || !u.cfg.Compress {
		return obj, nil
	}
	if _, has := st.Dict.Lookup("Filter"); has {
		return obj, nil
	}
	enc, err := filters.FlateEncode(st.Data)
	if err != nil {
		return nil, err
	}
	d := st.Dict.Clone()
	d.Put("Filter", raw.NameLiteral("FlateDecode"))
	return raw.NewStream(d, enc), nil
}
