// Package gesture holds the clamp geometry shared by every attachment
// widget: moving, edge and corner resizing, wheel scaling, and the pointer
// bookkeeping that turns mouse and touch input into deltas.
//
// All coordinates are page space: origin top-left, y grows downwards.
package gesture

import "math"

// DefaultMinSize is the smallest width or height a resize may produce.
const DefaultMinSize = 20

// Wheel factors applied per tick.
const (
	WheelUpFactor   = 1.1
	WheelDownFactor = 0.9
)

type Point struct{ X, Y float64 }

type Vec struct{ DX, DY float64 }

type Size struct{ Width, Height float64 }

// Rect is a box anchored at its top-left corner.
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }
func (r Rect) Size() Size      { return Size{Width: r.Width, Height: r.Height} }
func (r Rect) Origin() Point   { return Point{X: r.X, Y: r.Y} }

// Inside reports whether r lies within a page of the given size.
func (r Rect) Inside(page Size) bool {
	return r.X >= 0 && r.Y >= 0 && r.Right() <= page.Width && r.Bottom() <= page.Height
}

// Position is the result of a move, named like CSS offsets.
type Position struct {
	Top, Left float64
}

// ComputeMove adds delta to cur and clamps so a box of the given size stays
// on the page.
func ComputeMove(cur Point, delta Vec, size Size, page Size) Position {
	return Position{
		Left: clamp(cur.X+delta.DX, 0, page.Width-size.Width),
		Top:  clamp(cur.Y+delta.DY, 0, page.Height-size.Height),
	}
}

// Move applies ComputeMove to a rect.
func Move(r Rect, delta Vec, page Size) Rect {
	pos := ComputeMove(r.Origin(), delta, r.Size(), page)
	r.X, r.Y = pos.Left, pos.Top
	return r
}

// Direction is the set of edges a resize handle drags.
type Direction uint8

const (
	Top Direction = 1 << iota
	Right
	Bottom
	Left
)

// Compass handles.
const (
	N  = Top
	NE = Top | Right
	E  = Right
	SE = Bottom | Right
	S  = Bottom
	SW = Bottom | Left
	W  = Left
	NW = Top | Left
)

func (d Direction) Has(edge Direction) bool { return d&edge != 0 }

func (d Direction) String() string {
	names := map[Direction]string{N: "n", NE: "ne", E: "e", SE: "se", S: "s", SW: "sw", W: "w", NW: "nw"}
	if s, ok := names[d]; ok {
		return s
	}
	return "none"
}

// Resize drags the edges in dir by delta. Dragging the top or left edge
// moves the origin so the opposite edge stays put. A step that would leave
// width or height outside [minSize, page dimension], or push the box off the
// page, is rejected: the original rect is returned with false.
func Resize(r Rect, dir Direction, delta Vec, page Size, minSize float64) (Rect, bool) {
	out := r
	if dir.Has(Right) {
		out.Width += delta.DX
	}
	if dir.Has(Left) {
		out.X += delta.DX
		out.Width -= delta.DX
	}
	if dir.Has(Bottom) {
		out.Height += delta.DY
	}
	if dir.Has(Top) {
		out.Y += delta.DY
		out.Height -= delta.DY
	}
	if out.Width < minSize || out.Width > page.Width || out.Height < minSize || out.Height > page.Height {
		return r, false
	}
	if !out.Inside(page) {
		return r, false
	}
	return out, out != r
}

// WheelScale grows (up) or shrinks the box around its top-left corner by
// one wheel tick. Each side is clamped to [minSize, page dimension] and the
// box is shifted back onto the page if growing pushed it over an edge.
func WheelScale(r Rect, up bool, page Size, minSize float64) (Rect, bool) {
	f := WheelDownFactor
	if up {
		f = WheelUpFactor
	}
	out := r
	out.Width = clamp(r.Width*f, minSize, page.Width)
	out.Height = clamp(r.Height*f, minSize, page.Height)
	out.X = clamp(out.X, 0, page.Width-out.Width)
	out.Y = clamp(out.Y, 0, page.Height-out.Height)
	return out, out != r
}

// Clamp forces r onto the page: sizes into [minSize, page dimension] (or
// the page dimension when the page itself is smaller than minSize), then
// the origin so the box fits.
func Clamp(r Rect, page Size, minSize float64) Rect {
	r.Width = clamp(r.Width, math.Min(minSize, page.Width), page.Width)
	r.Height = clamp(r.Height, math.Min(minSize, page.Height), page.Height)
	r.X = clamp(r.X, 0, page.Width-r.Width)
	r.Y = clamp(r.Y, 0, page.Height-r.Height)
	return r
}

// clamp bounds v to [lo, hi]; when hi < lo the lower bound wins.
func clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
