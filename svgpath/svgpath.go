// Package svgpath parses the SVG path subset produced by the freehand
// drawing surface and normalizes it to a local origin.
package svgpath

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wudi/pdfannot/contentstream"
)

var (
	ErrSyntax      = errors.New("svg path syntax error")
	ErrUnsupported = errors.New("unsupported svg path command")
)

type Point struct{ X, Y float64 }

// Segment is one absolute drawing command. Pts holds the end point last,
// preceded by control points for C (two) and Q (one). Close has no points.
type Segment struct {
	Op  byte
	Pts []Point
}

type Path []Segment

// Rect is an axis-aligned bounding box.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Parse reads M/L/H/V/C/S/Q/T/Z in absolute and relative form. H and V
// become L, S becomes C and T becomes Q with the reflected control point.
// Relative commands become absolute.
func Parse(d string) (Path, error) {
	lx := lexer{src: d}
	var (
		out        Path
		cur, start Point
		// ctrl is the last control point of the previous C or Q segment.
		ctrl       Point
		op         byte
		haveOp     bool
	)
	for {
		lx.skipSeparators()
		if lx.done() {
			break
		}
		if c := lx.peek(); isCommand(c) {
			op = c
			haveOp = true
			lx.pos++
		} else if !haveOp {
			return nil, fmt.Errorf("%w: expected command at offset %d", ErrSyntax, lx.pos)
		}
		rel := op >= 'a' && op <= 'z'
		prev := byte(0)
		if len(out) > 0 {
			prev = out[len(out)-1].Op
		}
		base := Point{}
		if rel {
			base = cur
		}
		switch op {
		case 'M', 'm':
			p, err := lx.point(base)
			if err != nil {
				return nil, err
			}
			out = append(out, Segment{Op: 'M', Pts: []Point{p}})
			cur, start = p, p
			// Further pairs after a moveto are implicit linetos.
			if rel {
				op = 'l'
			} else {
				op = 'L'
			}
		case 'L', 'l':
			p, err := lx.point(base)
			if err != nil {
				return nil, err
			}
			out = append(out, Segment{Op: 'L', Pts: []Point{p}})
			cur = p
		case 'H', 'h':
			x, err := lx.number()
			if err != nil {
				return nil, err
			}
			p := Point{X: base.X + x, Y: cur.Y}
			out = append(out, Segment{Op: 'L', Pts: []Point{p}})
			cur = p
		case 'V', 'v':
			y, err := lx.number()
			if err != nil {
				return nil, err
			}
			p := Point{X: cur.X, Y: base.Y + y}
			out = append(out, Segment{Op: 'L', Pts: []Point{p}})
			cur = p
		case 'C', 'c':
			pts, err := lx.points(base, 3)
			if err != nil {
				return nil, err
			}
			out = append(out, Segment{Op: 'C', Pts: pts})
			ctrl, cur = pts[1], pts[2]
		case 'S', 's':
			pts, err := lx.points(base, 2)
			if err != nil {
				return nil, err
			}
			c1 := cur
			if prev == 'C' {
				c1 = reflect(ctrl, cur)
			}
			out = append(out, Segment{Op: 'C', Pts: []Point{c1, pts[0], pts[1]}})
			ctrl, cur = pts[0], pts[1]
		case 'Q', 'q':
			pts, err := lx.points(base, 2)
			if err != nil {
				return nil, err
			}
			out = append(out, Segment{Op: 'Q', Pts: pts})
			ctrl, cur = pts[0], pts[1]
		case 'T', 't':
			p, err := lx.point(base)
			if err != nil {
				return nil, err
			}
			q := cur
			if prev == 'Q' {
				q = reflect(ctrl, cur)
			}
			out = append(out, Segment{Op: 'Q', Pts: []Point{q, p}})
			ctrl, cur = q, p
		case 'Z', 'z':
			out = append(out, Segment{Op: 'Z'})
			cur = start
			haveOp = false
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupported, op)
		}
	}
	return out, nil
}

// Bounds covers every coordinate of the path, control points included.
func (p Path) Bounds() Rect {
	r := Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	seen := false
	for _, s := range p {
		for _, pt := range s.Pts {
			seen = true
			r.MinX = math.Min(r.MinX, pt.X)
			r.MinY = math.Min(r.MinY, pt.Y)
			r.MaxX = math.Max(r.MaxX, pt.X)
			r.MaxY = math.Max(r.MaxY, pt.Y)
		}
	}
	if !seen {
		return Rect{}
	}
	return r
}

// Translate returns a copy of p moved by (dx, dy).
func (p Path) Translate(dx, dy float64) Path {
	out := make(Path, len(p))
	for i, s := range p {
		pts := make([]Point, len(s.Pts))
		for j, pt := range s.Pts {
			pts[j] = Point{X: pt.X + dx, Y: pt.Y + dy}
		}
		out[i] = Segment{Op: s.Op, Pts: pts}
	}
	return out
}

// String renders the canonical absolute form, e.g. "M 0 0 L 10 5 Z".
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(s.Op)
		for _, pt := range s.Pts {
			b.WriteByte(' ')
			b.WriteString(formatNumber(pt.X))
			b.WriteByte(' ')
			b.WriteString(formatNumber(pt.Y))
		}
	}
	return b.String()
}

// Normalize parses d and translates it so its bounding box starts at the
// origin. The returned rect is the box before translation. Normalizing an
// already normalized path returns it unchanged.
func Normalize(d string) (Path, Rect, error) {
	p, err := Parse(d)
	if err != nil {
		return nil, Rect{}, err
	}
	r := p.Bounds()
	return p.Translate(-r.MinX, -r.MinY), r, nil
}

// ContentPath converts p for drawing; quadratic segments are raised to
// cubic.
func (p Path) ContentPath() *contentstream.Path {
	out := &contentstream.Path{}
	var sub *contentstream.Subpath
	var cur, start Point
	flush := func() {
		if sub != nil && len(sub.Points) > 0 {
			out.Subpaths = append(out.Subpaths, *sub)
		}
		sub = nil
	}
	ensure := func() {
		if sub == nil {
			sub = &contentstream.Subpath{Points: []contentstream.PathPoint{{X: cur.X, Y: cur.Y, Type: contentstream.PathMoveTo}}}
			start = cur
		}
	}
	for _, s := range p {
		switch s.Op {
		case 'M':
			flush()
			cur = s.Pts[0]
			ensure()
		case 'L':
			ensure()
			cur = s.Pts[0]
			sub.Points = append(sub.Points, contentstream.PathPoint{X: cur.X, Y: cur.Y, Type: contentstream.PathLineTo})
		case 'C':
			ensure()
			sub.Points = append(sub.Points, contentstream.PathPoint{
				Type: contentstream.PathCurveTo,
				X:    s.Pts[2].X, Y: s.Pts[2].Y,
				Control1X: s.Pts[0].X, Control1Y: s.Pts[0].Y,
				Control2X: s.Pts[1].X, Control2Y: s.Pts[1].Y,
			})
			cur = s.Pts[2]
		case 'Q':
			ensure()
			q, end := s.Pts[0], s.Pts[1]
			sub.Points = append(sub.Points, contentstream.PathPoint{
				Type: contentstream.PathCurveTo,
				X:    end.X, Y: end.Y,
				Control1X: cur.X + 2.0/3.0*(q.X-cur.X), Control1Y: cur.Y + 2.0/3.0*(q.Y-cur.Y),
				Control2X: end.X + 2.0/3.0*(q.X-end.X), Control2Y: end.Y + 2.0/3.0*(q.Y-end.Y),
			})
			cur = end
		case 'Z':
			if sub != nil {
				sub.Closed = true
				flush()
			}
			cur = start
		}
	}
	flush()
	return out
}

// reflect mirrors c through p.
func reflect(c, p Point) Point { return Point{X: 2*p.X - c.X, Y: 2*p.Y - c.Y} }

func formatNumber(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isCommand(c byte) bool {
	return strings.IndexByte("MmLlHhVvCcQqZzAaSsTt", c) >= 0
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) done() bool { return l.pos >= len(l.src) }
func (l *lexer) peek() byte { return l.src[l.pos] }

func (l *lexer) skipSeparators() {
	for !l.done() {
		switch l.peek() {
		case ' ', '\t', '\n', '\r', '\f', ',':
			l.pos++
		default:
			return
		}
	}
}

// number reads one SVG number: sign, digits, a single dot, exponent.
// "1.5.5" reads as 1.5 followed by .5, "10-5" as 10 and -5.
func (l *lexer) number() (float64, error) {
	l.skipSeparators()
	start := l.pos
	if !l.done() && (l.peek() == '+' || l.peek() == '-') {
		l.pos++
	}
	digits, dot := 0, false
scan:
	for !l.done() {
		c := l.peek()
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			break scan
		}
		l.pos++
	}
	if digits == 0 {
		l.pos = start
		return 0, fmt.Errorf("%w: expected number at offset %d", ErrSyntax, start)
	}
	if !l.done() && (l.peek() == 'e' || l.peek() == 'E') {
		save := l.pos
		l.pos++
		if !l.done() && (l.peek() == '+' || l.peek() == '-') {
			l.pos++
		}
		exp := 0
		for !l.done() && l.peek() >= '0' && l.peek() <= '9' {
			l.pos++
			exp++
		}
		if exp == 0 {
			l.pos = save
		}
	}
	v, err := strconv.ParseFloat(l.src[start:l.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return v, nil
}

func (l *lexer) point(base Point) (Point, error) {
	x, err := l.number()
	if err != nil {
		return Point{}, err
	}
	y, err := l.number()
	if err != nil {
		return Point{}, err
	}
	return Point{X: base.X + x, Y: base.Y + y}, nil
}

func (l *lexer) points(base Point, n int) ([]Point, error) {
	out := make([]Point, n)
	for i := range out {
		p, err := l.point(base)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
