package fonts

import (
	"github.com/go-text/typesetting/di"
	gotext "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// glyph is one shaped glyph and the runes of its cluster, which feed the
// ToUnicode map.
type glyph struct {
	id    uint16
	runes []rune
}

// shapeSize is 1000 units per em in 26.6, so advances come out in glyph space.
const shapeSize = fixed.Int26_6(1000 << 6)

func shape(s *shaping.HarfbuzzShaper, face *gotext.Face, runes []rune) []glyph {
	script := detectScript(runes)
	dir := di.DirectionLTR
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		dir = di.DirectionRTL
	}
	out := s.Shape(shaping.Input{
		Text:      runes,
		RunEnd:    len(runes),
		Direction: dir,
		Face:      face,
		Size:      shapeSize,
		Script:    script,
		Language:  language.DefaultLanguage(),
	})
	glyphs := make([]glyph, 0, len(out.Glyphs))
	for _, g := range out.Glyphs {
		start := min(max(g.ClusterIndex, 0), len(runes))
		end := min(max(start+g.RuneCount, start), len(runes))
		var cluster []rune
		if end > start {
			cluster = append(cluster, runes[start:end]...)
		}
		glyphs = append(glyphs, glyph{id: uint16(g.GlyphID), runes: cluster})
	}
	return glyphs
}

// detectScript picks the most frequent script among the runes, ignoring
// spaces, digits and marks. Text with no script defaults to Latin.
func detectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	best, bestCount := language.Latin, 0
	for _, r := range runes {
		s := language.LookupScript(r)
		switch s {
		case language.Common, language.Inherited, language.Unknown:
			continue
		}
		counts[s]++
		if counts[s] > bestCount {
			best, bestCount = s, counts[s]
		}
	}
	return best
}
