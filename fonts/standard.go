package fonts

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfannot/ir/raw"
)

// Standard is one of the Latin base-14 fonts, drawn with WinAnsiEncoding
// and never embedded.
type Standard struct {
	name    string
	widths  *[95]int
	missing int
}

// Advance widths in 1/1000 em for WinAnsi codes 32..126.
var (
	helveticaWidths = [95]int{
		278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
		556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
		1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
		667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
		333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
		556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
	}
	helveticaBoldWidths = [95]int{
		278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
		556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
		975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
		667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
		333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
		611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
	}
	timesRomanWidths = [95]int{
		250, 333, 408, 500, 500, 833, 778, 180, 333, 333, 500, 564, 250, 333, 250, 278,
		500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 278, 278, 564, 564, 564, 444,
		921, 722, 667, 667, 722, 611, 556, 722, 722, 333, 389, 722, 611, 889, 722, 722,
		556, 722, 667, 556, 611, 722, 722, 944, 722, 722, 611, 333, 278, 333, 469, 500,
		333, 444, 500, 444, 500, 444, 333, 500, 500, 278, 278, 500, 278, 778, 500, 500,
		500, 500, 333, 389, 278, 500, 500, 722, 500, 500, 444, 480, 200, 480, 541,
	}
	timesBoldWidths = [95]int{
		250, 333, 555, 500, 500, 1000, 833, 278, 333, 333, 500, 570, 250, 333, 250, 278,
		500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 333, 333, 570, 570, 570, 500,
		930, 722, 667, 722, 722, 667, 611, 778, 778, 389, 500, 778, 667, 944, 722, 778,
		611, 778, 722, 556, 667, 722, 722, 1000, 722, 722, 667, 333, 278, 333, 581, 500,
		333, 500, 556, 444, 556, 444, 333, 500, 556, 278, 333, 556, 278, 833, 556, 500,
		556, 556, 444, 389, 333, 556, 500, 722, 500, 500, 444, 394, 220, 394, 520,
	}
	timesItalicWidths = [95]int{
		250, 333, 420, 500, 500, 833, 778, 214, 333, 333, 500, 675, 250, 333, 250, 278,
		500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 333, 333, 675, 675, 675, 500,
		920, 611, 611, 667, 722, 611, 611, 722, 722, 333, 444, 667, 556, 833, 667, 722,
		611, 722, 611, 500, 556, 722, 611, 833, 611, 556, 556, 389, 278, 389, 422, 500,
		333, 500, 500, 444, 500, 444, 278, 500, 500, 278, 278, 444, 278, 722, 500, 500,
		500, 500, 389, 389, 278, 500, 444, 667, 444, 444, 389, 400, 275, 400, 541,
	}
	timesBoldItalicWidths = [95]int{
		250, 389, 555, 500, 500, 833, 778, 278, 333, 333, 500, 570, 250, 333, 250, 278,
		500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 333, 333, 570, 570, 570, 500,
		832, 667, 667, 667, 722, 667, 667, 722, 778, 389, 500, 667, 611, 889, 722, 722,
		611, 722, 667, 556, 611, 722, 667, 889, 667, 611, 611, 333, 278, 333, 570, 500,
		333, 500, 500, 444, 500, 444, 333, 500, 556, 278, 278, 500, 278, 778, 556, 500,
		500, 500, 389, 389, 278, 556, 444, 667, 500, 444, 389, 348, 220, 348, 570,
	}
	courierWidths = monospace(600)
)

func monospace(w int) [95]int {
	var out [95]int
	for i := range out {
		out[i] = w
	}
	return out
}

var standardFonts = map[string]struct {
	widths  *[95]int
	missing int
}{
	"Helvetica":             {&helveticaWidths, 556},
	"Helvetica-Oblique":     {&helveticaWidths, 556},
	"Helvetica-Bold":        {&helveticaBoldWidths, 611},
	"Helvetica-BoldOblique": {&helveticaBoldWidths, 611},
	"Times-Roman":           {&timesRomanWidths, 500},
	"Times-Bold":            {&timesBoldWidths, 500},
	"Times-Italic":          {&timesItalicWidths, 500},
	"Times-BoldItalic":      {&timesBoldItalicWidths, 500},
	"Courier":               {&courierWidths, 600},
	"Courier-Oblique":       {&courierWidths, 600},
	"Courier-Bold":          {&courierWidths, 600},
	"Courier-BoldOblique":   {&courierWidths, 600},
}

// NewStandard returns the base-14 font with the given PostScript name.
// Symbol and ZapfDingbats have no WinAnsi encoding and are rejected.
func NewStandard(name string) (*Standard, error) {
	m, ok := standardFonts[name]
	if !ok {
		return nil, unknownFont(name)
	}
	return &Standard{name: name, widths: m.widths, missing: m.missing}, nil
}

func (f *Standard) Name() string { return f.name }

// Encode maps text to WinAnsi bytes. Runes outside the code page fall back
// to their decomposed base letter, then to '?'.
func (f *Standard) Encode(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		out = append(out, winAnsiByte(r))
	}
	return out
}

// Width returns the advance of text set at size points.
func (f *Standard) Width(text string, size float64) float64 {
	total := 0
	for _, b := range f.Encode(text) {
		total += f.glyphWidth(b)
	}
	return float64(total) * size / 1000
}

func (f *Standard) glyphWidth(b byte) int {
	if b >= 32 && b <= 126 {
		return f.widths[b-32]
	}
	switch b {
	case 0x96: // endash
		return f.widths['_'-32]
	case 0x97: // emdash
		return 1000
	case 0x91, 0x92: // single quotes
		return f.widths['\''-32]
	}
	// Accented Latin-1 letters take the advance of their base letter.
	r := charmap.Windows1252.DecodeByte(b)
	if base := baseLetter(r); base >= 32 && base <= 126 {
		return f.widths[base-32]
	}
	return f.missing
}

// Embed adds the simple font dictionary. Base-14 fonts carry no program.
func (f *Standard) Embed(objs Objects) (raw.ObjectRef, error) {
	d := raw.Dict()
	d.Put("Type", raw.NameLiteral("Font"))
	d.Put("Subtype", raw.NameLiteral("Type1"))
	d.Put("BaseFont", raw.NameLiteral(f.name))
	d.Put("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	return objs.Add(d), nil
}

func (f *Standard) Finish(Objects) error { return nil }

func winAnsiByte(r rune) byte {
	if b, ok := charmap.Windows1252.EncodeRune(r); ok {
		return b
	}
	if base := baseLetter(r); base != r {
		if b, ok := charmap.Windows1252.EncodeRune(base); ok {
			return b
		}
	}
	return '?'
}

// baseLetter returns the first rune of the canonical decomposition of r.
func baseLetter(r rune) rune {
	buf := make([]byte, utf8.UTFMax)
	n := utf8.EncodeRune(buf, r)
	d := norm.NFD.Bytes(buf[:n])
	base, _ := utf8.DecodeRune(d)
	return base
}
