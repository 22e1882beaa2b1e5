package svgpath

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfannot/contentstream"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"M10 20 L30 40", "M 10 20 L 30 40"},
		{"M 10,20 L 30,40 Z", "M 10 20 L 30 40 Z"},
		{"m10 20 l5 5 5 5", "M 10 20 L 15 25 L 20 30"},
		{"M0 0 H10 V5 h-2 v-1", "M 0 0 L 10 0 L 10 5 L 8 5 L 8 4"},
		{"M1 1 2 2 3 3", "M 1 1 L 2 2 L 3 3"},
		{"M0 0C1 2 3 4 5 6", "M 0 0 C 1 2 3 4 5 6"},
		{"M10 10c1 1 2 2 3 3", "M 10 10 C 11 11 12 12 13 13"},
		{"M0 0 q5 5 10 0", "M 0 0 Q 5 5 10 0"},
		{"M0 0 C0 10 10 10 10 0 S20 -10 20 0", "M 0 0 C 0 10 10 10 10 0 C 10 -10 20 -10 20 0"},
		{"M0 0 s10 10 20 0", "M 0 0 C 0 0 10 10 20 0"},
		{"M0 0 L5 5 S10 10 20 0", "M 0 0 L 5 5 C 5 5 10 10 20 0"},
		{"M0 0 Q5 10 10 0 T20 0", "M 0 0 Q 5 10 10 0 Q 15 -10 20 0"},
		{"M0 0 Q5 10 10 0 t10 0 10 0", "M 0 0 Q 5 10 10 0 Q 15 -10 20 0 Q 25 10 30 0"},
		{"M0 0 T10 0", "M 0 0 Q 0 0 10 0"},
		{"M10-5L1.5.5", "M 10 -5 L 1.5 0.5"},
		{"M1e1 2E-1", "M 10 0.2"},
		{"M0 0 L10 0 Z m5 5 l1 1", "M 0 0 L 10 0 Z M 5 5 L 6 6"},
		{"", ""},
	}
	for _, tc := range tests {
		p, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got := p.String(); got != tc.want {
			t.Fatalf("Parse(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"10 10", ErrSyntax},
		{"M10", ErrSyntax},
		{"M10 x", ErrSyntax},
		{"M0 0 A1 1 0 0 1 5 5", ErrUnsupported},
		{"M0 0 S1 1", ErrSyntax},
		{"M0 0 T1", ErrSyntax},
	}
	for _, tc := range tests {
		if _, err := Parse(tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("Parse(%q) err = %v, want %v", tc.in, err, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	p, r, err := Normalize("M 110 220 L 150 230 L 120 260")
	if err != nil {
		t.Fatal(err)
	}
	if want := (Rect{MinX: 110, MinY: 220, MaxX: 150, MaxY: 260}); r != want {
		t.Fatalf("rect = %+v, want %+v", r, want)
	}
	if r.Width() != 40 || r.Height() != 40 {
		t.Fatalf("span = %vx%v", r.Width(), r.Height())
	}
	if got, want := p.String(), "M 0 0 L 40 10 L 10 40"; got != want {
		t.Fatalf("normalized = %q, want %q", got, want)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"M 110.5 220.25 L 150 230 L 120.125 260 Z",
		"m-5 -5 c10 0 10 10 0 10 q-3 -3 0 -6",
		"M 0 0 L 3 4",
		"M 0.1 0.2 L 0.3 0.7",
	}
	for _, in := range inputs {
		once, _, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		twice, r, err := Normalize(once.String())
		if err != nil {
			t.Fatalf("Normalize(%q): %v", once, err)
		}
		if r.MinX != 0 || r.MinY != 0 {
			t.Fatalf("normalized path %q has origin (%v, %v)", once, r.MinX, r.MinY)
		}
		if diff := cmp.Diff(once.String(), twice.String()); diff != "" {
			t.Fatalf("Normalize not idempotent for %q (-once +twice):\n%s", in, diff)
		}
	}
}

func TestContentPath(t *testing.T) {
	p, err := Parse("M0 0 L3 0 Q3 3 0 3 Z L1 1")
	if err != nil {
		t.Fatal(err)
	}
	cp := p.ContentPath()
	if len(cp.Subpaths) != 2 {
		t.Fatalf("subpaths = %d, want 2", len(cp.Subpaths))
	}
	first := cp.Subpaths[0]
	if !first.Closed || len(first.Points) != 3 {
		t.Fatalf("first subpath = %+v", first)
	}
	curve := first.Points[2]
	want := contentstream.PathPoint{
		Type: contentstream.PathCurveTo,
		X:    0, Y: 3,
		Control1X: 3, Control1Y: 2,
		Control2X: 2, Control2Y: 3,
	}
	if diff := cmp.Diff(want, curve); diff != "" {
		t.Fatalf("quadratic conversion (-want +got):\n%s", diff)
	}
	second := cp.Subpaths[1]
	if second.Points[0].Type != contentstream.PathMoveTo || second.Points[0].X != 0 || second.Points[0].Y != 0 {
		t.Fatalf("subpath after close must restart at the close point: %+v", second.Points[0])
	}
}
