package contentstream

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfannot/coords"
	"github.com/wudi/pdfannot/ir/raw"
)

func TestSerialize(t *testing.T) {
	ops := []Operation{
		Op("q"),
		Op("cm", 1.0, 0.0, 0.0, 1.0, 10.0, 768.0),
		Op("Tf", Name("F1"), 12),
		Op("Tj", []byte("Hi (x)")),
		Op("Tj", HexString{0x00, 0x2a}),
		Op("RG", 0.5, 0.25, 0.0),
		Op("Q"),
	}
	want := "q\n1 0 0 1 10 768 cm\n/F1 12 Tf\n(Hi \\(x\\)) Tj\n<002A> Tj\n0.5 0.25 0 RG\nQ\n"
	if got := string(Serialize(ops)); got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}
}

func TestParse(t *testing.T) {
	src := []byte("q 1 0 0 1 10 20 cm /Im1 Do Q\nBT /F1 12 Tf [(A) -120 (B)] TJ ET\nBI /W 1 /H 1 ID \x00\x01 EI\n0 0 m 5 5 l S")
	ops, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	want := []string{"q", "cm", "Do", "Q", "BT", "Tf", "TJ", "ET", "BI", "m", "l", "S"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("operators (-want +got):\n%s", diff)
	}
	if len(ops[1].Operands) != 6 {
		t.Fatalf("cm operands: %v", ops[1].Operands)
	}
	arr, ok := ops[6].Operands[0].(*raw.ArrayObj)
	if !ok || arr.Len() != 3 {
		t.Fatalf("TJ operand: %#v", ops[6].Operands)
	}
}

func TestParseDangling(t *testing.T) {
	if _, err := Parse([]byte("1 2")); err != ErrDanglingOperands {
		t.Fatalf("expected ErrDanglingOperands, got %v", err)
	}
}

func TestProcessorTracksCTM(t *testing.T) {
	stream := Serialize([]Operation{
		Op("q"),
		Op("cm", 1.0, 0.0, 0.0, 1.0, 30.0, 760.0),
		Op("cm", 0.15, 0.0, 0.0, -0.15, 0.0, 0.0),
		Op("m", 0.0, 0.0),
		Op("Q"),
		Op("m", 0.0, 0.0),
	})
	var seen []coords.Point
	p := NewProcessor()
	p.RegisterHandler("m", HandlerFunc(func(gs *GraphicsState, op Operation) error {
		x, _ := raw.AsNumber(op.Operands[0])
		y, _ := raw.AsNumber(op.Operands[1])
		seen = append(seen, gs.CTM.Transform(coords.Point{X: x, Y: y}))
		return nil
	}))
	var count int
	p.RegisterHandler("*", HandlerFunc(func(*GraphicsState, Operation) error { count++; return nil }))

	gs := NewGraphicsState()
	if err := p.Process(context.Background(), stream, gs); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := []coords.Point{{X: 30, Y: 760}, {X: 0, Y: 0}}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("points (-want +got):\n%s", diff)
	}
	if count != 6 || gs.Depth() != 0 {
		t.Fatalf("count=%d depth=%d", count, gs.Depth())
	}
}

func TestProcessorUnbalancedRestore(t *testing.T) {
	err := NewProcessor().Process(context.Background(), []byte("Q"), NewGraphicsState())
	if err == nil {
		t.Fatalf("expected error for Q without q")
	}
}
