// Package csscolor parses CSS color strings into normalized RGB.
package csscolor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

var ErrInvalid = errors.New("invalid css color")

// Color holds components in [0, 1].
type Color struct {
	R, G, B, A float64
}

// Black is returned for the empty string.
var Black = Color{A: 1}

// Parse accepts #rgb, #rgba, #rrggbb, #rrggbbaa, rgb(), rgba(), the
// keyword "transparent" and the CSS named colors.
func Parse(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return Black, nil
	case s == "transparent":
		return Color{}, nil
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgb(") || strings.HasPrefix(s, "rgba("):
		return parseFunc(s)
	}
	if c, ok := colornames.Map[s]; ok {
		return Color{
			R: float64(c.R) / 255,
			G: float64(c.G) / 255,
			B: float64(c.B) / 255,
			A: float64(c.A) / 255,
		}, nil
	}
	return Color{}, fmt.Errorf("%w: %q", ErrInvalid, s)
}

// MustParse is Parse for constants known to be valid.
func MustParse(s string) Color {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseHex(h string) (Color, error) {
	switch len(h) {
	case 3, 4:
		var expanded strings.Builder
		for _, c := range h {
			expanded.WriteRune(c)
			expanded.WriteRune(c)
		}
		h = expanded.String()
	case 6, 8:
	default:
		return Color{}, fmt.Errorf("%w: #%s", ErrInvalid, h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: #%s", ErrInvalid, h)
	}
	if len(h) == 6 {
		v = v<<8 | 0xff
	}
	return Color{
		R: float64(v>>24&0xff) / 255,
		G: float64(v>>16&0xff) / 255,
		B: float64(v>>8&0xff) / 255,
		A: float64(v&0xff) / 255,
	}, nil
}

// parseFunc handles rgb()/rgba() with comma or space separated components,
// numbers in 0..255 or percentages, and an optional "/ alpha".
func parseFunc(s string) (Color, error) {
	open := strings.IndexByte(s, '(')
	if !strings.HasSuffix(s, ")") {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	body := strings.NewReplacer(",", " ", "/", " ").Replace(s[open+1 : len(s)-1])
	parts := strings.Fields(body)
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	var out [4]float64
	out[3] = 1
	for i, p := range parts {
		v, err := component(p, i == 3)
		if err != nil {
			return Color{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		out[i] = v
	}
	return Color{R: out[0], G: out[1], B: out[2], A: out[3]}, nil
}

func component(p string, alpha bool) (float64, error) {
	scale := 255.0
	if alpha {
		scale = 1
	}
	if strings.HasSuffix(p, "%") {
		p = strings.TrimSuffix(p, "%")
		scale = 100
	}
	v, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return 0, err
	}
	return clamp01(v / scale), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
