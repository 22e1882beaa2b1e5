package fonts

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf16"

	gotext "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/shaping"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfannot/ir/raw"
)

// Font measures, encodes and embeds text for one family.
//
// Embed is called once per document before any text is drawn; Finish is
// called after the last Encode so fonts can emit data that depends on the
// glyphs actually used.
type Font interface {
	Name() string
	Encode(text string) []byte
	Width(text string, size float64) float64
	Embed(objs Objects) (raw.ObjectRef, error)
	Finish(objs Objects) error
}

// Objects is the part of an incremental update fonts write into.
type Objects interface {
	Add(obj raw.Object) raw.ObjectRef
	Reserve() raw.ObjectRef
	Replace(ref raw.ObjectRef, obj raw.Object)
}

// TrueType is an embedded TrueType program addressed through a Type0 font
// with Identity-H encoding, so any glyph in the font can be drawn. The
// program is subset to the glyphs drawn when Finish runs.
type TrueType struct {
	name   string
	psName string
	data   []byte
	font   *sfnt.Font
	upem   sfnt.Units

	mu     sync.Mutex
	buf    sfnt.Buffer
	face   *gotext.Face
	shaper shaping.HarfbuzzShaper
	widths map[uint16]int
	used   map[uint16][]rune

	embedded   bool
	programRef raw.ObjectRef
	descriptor raw.ObjectRef
	cidRef     raw.ObjectRef
	cmapRef    raw.ObjectRef
}

// NewTrueType parses a TrueType/OpenType program registered under name.
func NewTrueType(name string, data []byte) (*TrueType, error) {
	if len(data) == 0 {
		return nil, errors.New("truetype font data is empty")
	}
	font, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	upem := font.UnitsPerEm()
	if upem == 0 {
		return nil, errors.New("invalid unitsPerEm")
	}
	t := &TrueType{
		name:   name,
		data:   data,
		font:   font,
		upem:   upem,
		widths: make(map[uint16]int),
		used:   make(map[uint16][]rune),
	}
	t.psName = strings.TrimSpace(name)
	if ps, _ := font.Name(&t.buf, sfnt.NameIDPostScript); len(ps) > 0 {
		t.psName = ps
	}
	if t.psName == "" {
		t.psName = "CustomTT"
	}
	// PDF names may not contain spaces.
	t.psName = strings.ReplaceAll(t.psName, " ", "")
	if face, err := gotext.ParseTTF(bytes.NewReader(data)); err == nil {
		t.face = face
	}
	return t, nil
}

func (t *TrueType) Name() string { return t.name }

// Encode shapes text and returns two-byte glyph ids.
func (t *TrueType) Encode(text string) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	glyphs := t.glyphs(text)
	out := make([]byte, 0, 2*len(glyphs))
	for _, g := range glyphs {
		if prev, ok := t.used[g.id]; !ok || len(prev) == 0 {
			t.used[g.id] = g.runes
		}
		out = append(out, byte(g.id>>8), byte(g.id))
	}
	return out
}

func (t *TrueType) Width(text string, size float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, g := range t.glyphs(text) {
		total += t.advance(g.id)
	}
	return float64(total) * size / 1000
}

// glyphs maps text to glyph ids, shaping when the program parsed for the
// shaper and falling back to the plain cmap otherwise.
func (t *TrueType) glyphs(text string) []glyph {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if t.face != nil {
		return shape(&t.shaper, t.face, runes)
	}
	out := make([]glyph, 0, len(runes))
	for _, r := range runes {
		gid, err := t.font.GlyphIndex(&t.buf, r)
		if err != nil {
			gid = 0
		}
		out = append(out, glyph{id: uint16(gid), runes: []rune{r}})
	}
	return out
}

// advance returns the horizontal advance of gid in 1/1000 em.
func (t *TrueType) advance(gid uint16) int {
	if w, ok := t.widths[gid]; ok {
		return w
	}
	ppem := fixed.Int26_6(t.upem << 6)
	adv, err := t.font.GlyphAdvance(&t.buf, sfnt.GlyphIndex(gid), ppem, xfont.HintingNone)
	w := 0
	if err == nil {
		w = int(math.Round(scaleFixed(adv, t.upem)))
	}
	t.widths[gid] = w
	return w
}

// Embed writes the font program, its descriptor and the Type0 dictionary.
// The descendant CIDFont and the ToUnicode map are reserved here and written
// by Finish.
func (t *TrueType) Embed(objs Objects) (raw.ObjectRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ppem := fixed.Int26_6(t.upem << 6)
	metrics, err := t.font.Metrics(&t.buf, ppem, xfont.HintingNone)
	if err != nil {
		return raw.ObjectRef{}, fmt.Errorf("font metrics: %w", err)
	}
	bounds, err := t.font.Bounds(&t.buf, ppem, xfont.HintingNone)
	if err != nil {
		return raw.ObjectRef{}, fmt.Errorf("font bounds: %w", err)
	}

	t.programRef = objs.Reserve()
	capHeight := metrics.CapHeight
	if capHeight == 0 {
		capHeight = metrics.Ascent
	}
	desc := raw.Dict()
	desc.Put("Type", raw.NameLiteral("FontDescriptor"))
	desc.Put("FontName", raw.NameLiteral(t.baseFont()))
	desc.Put("Flags", raw.NumberInt(32))
	desc.Put("ItalicAngle", raw.NumberFloat(italicAngle(t.font)))
	// sfnt reports descent as a positive distance below the baseline.
	desc.Put("Ascent", raw.NumberFloat(math.Round(scaleFixed(metrics.Ascent, t.upem))))
	desc.Put("Descent", raw.NumberFloat(-math.Round(scaleFixed(metrics.Descent, t.upem))))
	desc.Put("CapHeight", raw.NumberFloat(math.Round(scaleFixed(capHeight, t.upem))))
	desc.Put("StemV", raw.NumberInt(80))
	desc.Put("FontBBox", raw.Numbers(
		math.Round(scaleFixed(bounds.Min.X, t.upem)),
		-math.Round(scaleFixed(bounds.Max.Y, t.upem)),
		math.Round(scaleFixed(bounds.Max.X, t.upem)),
		-math.Round(scaleFixed(bounds.Min.Y, t.upem)),
	))
	desc.Put("FontFile2", raw.RefObj{R: t.programRef})
	t.descriptor = objs.Add(desc)

	t.cidRef = objs.Reserve()
	t.cmapRef = objs.Reserve()
	objs.Replace(t.cidRef, t.cidFontDict())

	root := raw.Dict()
	root.Put("Type", raw.NameLiteral("Font"))
	root.Put("Subtype", raw.NameLiteral("Type0"))
	root.Put("BaseFont", raw.NameLiteral(t.baseFont()))
	root.Put("Encoding", raw.NameLiteral("Identity-H"))
	root.Put("DescendantFonts", raw.NewArray(raw.RefObj{R: t.cidRef}))
	root.Put("ToUnicode", raw.RefObj{R: t.cmapRef})
	t.embedded = true
	return objs.Add(root), nil
}

// Finish writes the subset program, rewrites the CIDFont with the widths of
// the glyphs drawn and emits the ToUnicode map. A program the subsetter
// cannot read is embedded whole.
func (t *TrueType) Finish(objs Objects) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.embedded {
		return nil
	}
	gids := make([]int, 0, len(t.used))
	for gid := range t.used {
		gids = append(gids, int(gid))
	}
	sort.Ints(gids)

	keep := make([]uint16, len(gids))
	for i, gid := range gids {
		keep[i] = uint16(gid)
	}
	program, err := subsetTrueType(t.data, keep)
	if err != nil {
		program = t.data
	}
	pd := raw.Dict()
	pd.Put("Length1", raw.NumberInt(int64(len(program))))
	objs.Replace(t.programRef, raw.NewStream(pd, program))

	cid := t.cidFontDict()
	cid.Put("W", t.widthArray(gids))
	objs.Replace(t.cidRef, cid)

	cmap := raw.NewStream(raw.Dict(), toUnicodeCMap(gids, t.used))
	objs.Replace(t.cmapRef, cmap)
	return nil
}

func (t *TrueType) cidFontDict() *raw.DictObj {
	info := raw.Dict()
	info.Put("Registry", raw.Str([]byte("Adobe")))
	info.Put("Ordering", raw.Str([]byte("Identity")))
	info.Put("Supplement", raw.NumberInt(0))

	d := raw.Dict()
	d.Put("Type", raw.NameLiteral("Font"))
	d.Put("Subtype", raw.NameLiteral("CIDFontType2"))
	d.Put("BaseFont", raw.NameLiteral(t.baseFont()))
	d.Put("CIDSystemInfo", info)
	d.Put("FontDescriptor", raw.RefObj{R: t.descriptor})
	d.Put("DW", raw.NumberInt(int64(t.advance(0))))
	d.Put("CIDToGIDMap", raw.NameLiteral("Identity"))
	return d
}

// widthArray groups consecutive glyph ids: [first [w1 w2 ...] ...].
func (t *TrueType) widthArray(gids []int) *raw.ArrayObj {
	out := raw.NewArray()
	for i := 0; i < len(gids); {
		j := i
		run := raw.NewArray()
		for j < len(gids) && gids[j] == gids[i]+(j-i) {
			run.Append(raw.NumberInt(int64(t.advance(uint16(gids[j])))))
			j++
		}
		out.Append(raw.NumberInt(int64(gids[i])))
		out.Append(run)
		i = j
	}
	return out
}

func toUnicodeCMap(gids []int, used map[uint16][]rune) []byte {
	var b bytes.Buffer
	b.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	b.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	b.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	b.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")

	var entries []int
	for _, gid := range gids {
		if len(used[uint16(gid)]) > 0 {
			entries = append(entries, gid)
		}
	}
	const chunk = 100
	for len(entries) > 0 {
		n := len(entries)
		if n > chunk {
			n = chunk
		}
		fmt.Fprintf(&b, "%d beginbfchar\n", n)
		for _, gid := range entries[:n] {
			fmt.Fprintf(&b, "<%04X> <", gid)
			for _, u := range utf16.Encode(used[uint16(gid)]) {
				fmt.Fprintf(&b, "%04X", u)
			}
			b.WriteString(">\n")
		}
		b.WriteString("endbfchar\n")
		entries = entries[n:]
	}
	b.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return b.Bytes()
}

// baseFont prefixes the PostScript name with the six-letter tag that marks
// a subset font. One subset is written per font and document, so the tag
// only has to be stable.
func (t *TrueType) baseFont() string {
	sum := crc32.ChecksumIEEE([]byte(t.psName))
	tag := make([]byte, 6)
	for i := range tag {
		tag[i] = 'A' + byte(sum%26)
		sum /= 26
	}
	return string(tag) + "+" + t.psName
}

func italicAngle(font *sfnt.Font) float64 {
	post := font.PostTable()
	if post == nil {
		return 0
	}
	return post.ItalicAngle
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
