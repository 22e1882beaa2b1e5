package fonts

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/go-text/typesetting/language"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfannot/ir/raw"
)

type memObjects struct {
	next int
	objs map[int]raw.Object
}

func newMemObjects() *memObjects { return &memObjects{next: 10, objs: map[int]raw.Object{}} }

func (m *memObjects) Add(obj raw.Object) raw.ObjectRef {
	ref := m.Reserve()
	m.Replace(ref, obj)
	return ref
}

func (m *memObjects) Reserve() raw.ObjectRef {
	ref := raw.ObjectRef{Num: m.next}
	m.next++
	return ref
}

func (m *memObjects) Replace(ref raw.ObjectRef, obj raw.Object) { m.objs[ref.Num] = obj }

func TestStandardWidth(t *testing.T) {
	tests := []struct {
		font string
		text string
		size float64
		want float64
	}{
		{"Helvetica", "Hello", 10, (722 + 556 + 222 + 222 + 556) / 100.0},
		{"Helvetica-Bold", "A", 1000, 722},
		{"Times-Roman", "W", 12, 944 * 12 / 1000.0},
		{"Courier", "anything", 10, 8 * 6},
		{"Helvetica", "é", 1000, 556},
		{"Helvetica", "", 12, 0},
	}
	for _, tc := range tests {
		f, err := NewStandard(tc.font)
		if err != nil {
			t.Fatalf("NewStandard(%q): %v", tc.font, err)
		}
		if got := f.Width(tc.text, tc.size); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s Width(%q, %v) = %v, want %v", tc.font, tc.text, tc.size, got, tc.want)
		}
	}
}

func TestStandardEncode(t *testing.T) {
	f, err := NewStandard("Helvetica")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in   string
		want []byte
	}{
		{"abc", []byte("abc")},
		{"café", []byte("caf\xe9")},
		{"€", []byte{0x80}},
		{"ā", []byte("a")},
		{"日", []byte("?")},
	}
	for _, tc := range tests {
		if got := f.Encode(tc.in); !bytes.Equal(got, tc.want) {
			t.Fatalf("Encode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStandardRejectsSymbolic(t *testing.T) {
	for _, name := range []string{"Symbol", "ZapfDingbats", "Comic Sans"} {
		if _, err := NewStandard(name); !errors.Is(err, ErrUnknownFont) {
			t.Fatalf("NewStandard(%q) err = %v, want ErrUnknownFont", name, err)
		}
	}
}

func TestStandardEmbed(t *testing.T) {
	f, _ := NewStandard("Courier-Bold")
	objs := newMemObjects()
	ref, err := f.Embed(objs)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	d, ok := objs.objs[ref.Num].(*raw.DictObj)
	if !ok {
		t.Fatalf("font object is %T", objs.objs[ref.Num])
	}
	for key, want := range map[string]string{"Subtype": "Type1", "BaseFont": "Courier-Bold", "Encoding": "WinAnsiEncoding"} {
		v, _ := d.Lookup(key)
		if got, _ := raw.AsName(v); got != want {
			t.Fatalf("/%s = %q, want %q", key, got, want)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		family string
		want   string
		tt     bool
	}{
		{"", "Times-Roman", false},
		{"Arial", "Helvetica", false},
		{"Courier", "Courier", false},
		{"Go", "Go", true},
		{"Go-Mono", "Go-Mono", true},
	}
	for _, tc := range tests {
		f, err := r.Lookup(tc.family)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tc.family, err)
		}
		if f.Name() != tc.want {
			t.Fatalf("Lookup(%q).Name() = %q, want %q", tc.family, f.Name(), tc.want)
		}
		if _, ok := f.(*TrueType); ok != tc.tt {
			t.Fatalf("Lookup(%q) TrueType = %v, want %v", tc.family, ok, tc.tt)
		}
	}
	if _, err := r.Lookup("Wingdings"); !errors.Is(err, ErrUnknownFont) {
		t.Fatalf("unknown family err = %v", err)
	}
	if err := r.Register("Broken", []byte("not a font")); err == nil {
		t.Fatal("Register accepted garbage")
	}
}

func TestRegistryFamilies(t *testing.T) {
	got := NewRegistry().Families()
	if len(got) != len(standardFonts)+5 {
		t.Fatalf("Families() has %d entries: %v", len(got), got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Fatalf("Families() not sorted: %v", got)
		}
	}
}

func TestTrueTypeEncodeAndEmbed(t *testing.T) {
	f, err := NewRegistry().Lookup("Go")
	if err != nil {
		t.Fatal(err)
	}
	tt := f.(*TrueType)
	objs := newMemObjects()
	ref, err := tt.Embed(objs)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	encoded := tt.Encode("Hé")
	if len(encoded) != 4 {
		t.Fatalf("Encode returned %d bytes, want 4", len(encoded))
	}
	if w := tt.Width("Hé", 10); w <= 0 {
		t.Fatalf("Width = %v", w)
	}
	if err := tt.Finish(objs); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	root := objs.objs[ref.Num].(*raw.DictObj)
	if enc, _ := root.Lookup("Encoding"); enc != raw.NameLiteral("Identity-H") {
		t.Fatalf("Encoding = %v", enc)
	}
	cmap := objs.objs[tt.cmapRef.Num].(*raw.StreamObj)
	for _, want := range []string{"2 beginbfchar", "<0048>", "<00E9>"} {
		if !strings.Contains(string(cmap.Data), want) {
			t.Fatalf("ToUnicode missing %q:\n%s", want, cmap.Data)
		}
	}
	cid := objs.objs[tt.cidRef.Num].(*raw.DictObj)
	w, ok := cid.Lookup("W")
	if !ok || w.(*raw.ArrayObj).Len() == 0 {
		t.Fatalf("CIDFont W missing: %v", w)
	}
	if base, _ := root.Lookup("BaseFont"); !strings.HasSuffix(base.(raw.NameObj).Val, "+"+tt.psName) {
		t.Fatalf("BaseFont %v lacks subset tag", base)
	}
	program := objs.objs[tt.programRef.Num].(*raw.StreamObj)
	if len(program.Data) >= len(tt.data) {
		t.Fatalf("embedded program %d bytes, full font %d", len(program.Data), len(tt.data))
	}
}

func TestSubsetTrueTypeKeepsGlyphs(t *testing.T) {
	full, err := sfnt.Parse(goregular.TTF)
	if err != nil {
		t.Fatal(err)
	}
	var buf sfnt.Buffer
	gid, err := full.GlyphIndex(&buf, 'H')
	if err != nil || gid == 0 {
		t.Fatalf("GlyphIndex('H') = %d, %v", gid, err)
	}

	sub, err := subsetTrueType(goregular.TTF, []uint16{uint16(gid)})
	if err != nil {
		t.Fatal(err)
	}
	if len(sub) >= len(goregular.TTF) {
		t.Fatalf("subset is %d bytes, original %d", len(sub), len(goregular.TTF))
	}
	f, err := sfnt.Parse(sub)
	if err != nil {
		t.Fatalf("subset does not parse: %v", err)
	}
	if f.NumGlyphs() != int(gid)+1 {
		t.Fatalf("NumGlyphs = %d, want %d", f.NumGlyphs(), gid+1)
	}
	segs, err := f.LoadGlyph(&buf, gid, fixed.I(1000), nil)
	if err != nil || len(segs) == 0 {
		t.Fatalf("kept glyph has %d segments, err %v", len(segs), err)
	}
	if segs, _ := f.LoadGlyph(&buf, gid-1, fixed.I(1000), nil); len(segs) != 0 {
		t.Fatalf("dropped glyph still has %d segments", len(segs))
	}
	if _, err := subsetTrueType([]byte("nope"), nil); err == nil {
		t.Fatal("subset of garbage succeeded")
	}
}

type fixedMeasurer float64

func (f fixedMeasurer) Width(text string, size float64) float64 {
	return float64(len([]rune(text))) * float64(f) * size
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWidth float64
		want     []string
	}{
		{"no wrap", "one two three", 0, []string{"one two three"}},
		{"fits", "one two", 7, []string{"one two"}},
		{"wraps", "one two three", 7, []string{"one two", "three"}},
		{"long word", "a extraordinary b", 5, []string{"a", "extraordinary", "b"}},
		{"newlines", "one\ntwo three", 100, []string{"one", "two three"}},
		{"crlf", "a\r\nb", 100, []string{"a", "b"}},
		{"empty", "", 10, []string{""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Layout(fixedMeasurer(1), tc.text, 1, tc.maxWidth)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("Layout mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeight(t *testing.T) {
	if got := Height(3, 10, 1.5); got != 40 {
		t.Fatalf("Height = %v, want 40", got)
	}
	if got := Height(0, 10, 1.5); got != 0 {
		t.Fatalf("Height(0) = %v", got)
	}
}

func TestDetectScript(t *testing.T) {
	tests := []struct {
		input  string
		expect language.Script
	}{
		{"Hello World", language.Latin},
		{"مرحبا بالعالم", language.Arabic},
		{"שלום עולם", language.Hebrew},
		{"Привет мир", language.Cyrillic},
		{"Hello World مرحبا", language.Latin},
		{"你好世界", language.Han},
		{"안녕하세요", language.Hangul},
		{"123", language.Latin},
	}
	for _, tc := range tests {
		if got := detectScript([]rune(tc.input)); got != tc.expect {
			t.Fatalf("detectScript(%q) = %v, want %v", tc.input, got, tc.expect)
		}
	}
}
