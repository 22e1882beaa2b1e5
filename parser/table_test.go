package parser

import (
	"sort"

	"github.com/wudi/pdfannot/ir/raw"
	"github.com/wudi/pdfannot/xref"
)

// fakeTable maps object numbers to byte offsets.
type fakeTable map[int]int64

func (f fakeTable) Lookup(n int) (xref.Entry, bool) {
	off, ok := f[n]
	return xref.Entry{Kind: xref.EntryInUse, Offset: off}, ok
}

func (f fakeTable) Objects() []int {
	out := make([]int, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (f fakeTable) Type() string          { return "table" }
func (f fakeTable) Trailer() *raw.DictObj { return raw.Dict() }
func (f fakeTable) StartXRef() int64      { return 0 }
func (f fakeTable) Size() int             { return len(f) + 1 }
