package scanner

import (
	"errors"
	"io"
	"testing"
)

func nextToken(t *testing.T, s *Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := New([]byte("%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2.5 -3] /Flag true /Null null /Ref 4 0 R >>\nendobj"), Config{})

	tok := nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected first token number 1, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNumber || tok.Int != 0 {
		t.Fatalf("expected generation number 0, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.IsKeyword("obj") {
		t.Fatalf("expected obj keyword, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenDict {
		t.Fatalf("expected dict start, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("expected Name key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("expected Name value, got %+v", tok)
	}
	nextToken(t, s) // /Nums
	if tok = nextToken(t, s); tok.Type != TokenArray {
		t.Fatalf("expected array start, got %+v", tok)
	}
	for _, want := range []float64{1, 2.5, -3} {
		tok = nextToken(t, s)
		if tok.Type != TokenNumber || tok.Number() != want {
			t.Fatalf("expected %v, got %+v", want, tok)
		}
	}
	if tok = nextToken(t, s); !tok.IsKeyword("]") {
		t.Fatalf("expected array close, got %+v", tok)
	}
	nextToken(t, s) // /Flag
	if tok = nextToken(t, s); tok.Type != TokenBoolean || !tok.Bool {
		t.Fatalf("expected true boolean, got %+v", tok)
	}
	nextToken(t, s) // /Null
	if tok = nextToken(t, s); tok.Type != TokenNull {
		t.Fatalf("expected null value, got %+v", tok)
	}
	nextToken(t, s) // /Ref
	nextToken(t, s)
	nextToken(t, s)
	if tok = nextToken(t, s); !tok.IsKeyword("R") {
		t.Fatalf("expected R keyword, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.IsKeyword(">>") {
		t.Fatalf("expected dict close, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.IsKeyword("endobj") {
		t.Fatalf("expected endobj, got %+v", tok)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestScanner_Strings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		hex  bool
	}{
		{"literal", "(Hello)", "Hello", false},
		{"nested parens", "(a (b) c)", "a (b) c", false},
		{"escapes", `(line\nbreak \(x\) \\)`, "line\nbreak (x) \\", false},
		{"octal", `(\101\102C)`, "ABC", false},
		{"continuation", "(ab\\\ncd)", "abcd", false},
		{"hex", "<48656C6C6F>", "Hello", true},
		{"hex odd", "<414>", "A@", true},
		{"hex whitespace", "<41 42\n43>", "ABC", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := nextToken(t, New([]byte(tt.in), Config{}))
			if tok.Type != TokenString || string(tok.Bytes) != tt.want || tok.Hex != tt.hex {
				t.Fatalf("got %+v (%q)", tok, tok.Bytes)
			}
		})
	}
}

func TestScanner_NameEscapes(t *testing.T) {
	tok := nextToken(t, New([]byte("/A#20B"), Config{}))
	if tok.Str != "A B" {
		t.Fatalf("got %q", tok.Str)
	}
}

func TestScanner_StringLimit(t *testing.T) {
	_, err := New([]byte("(toolong)"), Config{MaxStringLength: 3}).Next()
	if !errors.Is(err, ErrStringTooLong) {
		t.Fatalf("expected ErrStringTooLong, got %v", err)
	}
}

func TestScanner_Unterminated(t *testing.T) {
	for _, in := range []string{"(abc", "<4142"} {
		if _, err := New([]byte(in), Config{}).Next(); !errors.Is(err, ErrUnterminated) {
			t.Fatalf("%q: expected ErrUnterminated, got %v", in, err)
		}
	}
}

func TestScanner_ReadStreamData(t *testing.T) {
	tests := []struct {
		name   string
		length int64
	}{
		{"exact length", 5},
		{"bad length falls back to search", 99},
		{"unknown length", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New([]byte("stream\r\nhello\nendstream"), Config{})
			if tok := nextToken(t, s); !tok.IsKeyword("stream") {
				t.Fatalf("expected stream keyword, got %+v", tok)
			}
			data, err := s.ReadStreamData(tt.length)
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if string(data) != "hello" {
				t.Fatalf("got %q", data)
			}
			if tok := nextToken(t, s); !tok.IsKeyword("endstream") {
				t.Fatalf("expected endstream, got %+v", tok)
			}
		})
	}
}

func TestScanner_Comments(t *testing.T) {
	s := New([]byte("% comment\n  42 % trailing\n"), Config{})
	if tok := nextToken(t, s); tok.Int != 42 {
		t.Fatalf("got %+v", tok)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}
