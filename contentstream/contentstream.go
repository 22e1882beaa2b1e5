package contentstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfannot/coords"
	"github.com/wudi/pdfannot/ir/raw"
	"github.com/wudi/pdfannot/scanner"
	"github.com/wudi/pdfannot/writer"
)

// Operation is one operator with its operands, in stream order.
type Operation struct {
	Operator string
	Operands []raw.Object
}

// Op builds an operation from plain Go values: float64/int become numbers,
// Name becomes a name, []byte a literal string, HexString a hex string.
func Op(operator string, operands ...any) Operation {
	out := make([]raw.Object, 0, len(operands))
	for _, v := range operands {
		out = append(out, operand(v))
	}
	return Operation{Operator: operator, Operands: out}
}

// Name is a name operand for Op.
type Name string

// HexString is a hex string operand for Op.
type HexString []byte

func operand(v any) raw.Object {
	switch t := v.(type) {
	case float64:
		return raw.NumberFloat(t)
	case int:
		return raw.NumberInt(int64(t))
	case Name:
		return raw.NameLiteral(string(t))
	case []byte:
		return raw.Str(t)
	case HexString:
		return raw.HexStr(t)
	case raw.Object:
		return t
	}
	panic(fmt.Sprintf("contentstream: unsupported operand %T", v))
}

// Serialize renders operations one per line.
func Serialize(ops []Operation) []byte {
	var b bytes.Buffer
	for _, op := range ops {
		for _, o := range op.Operands {
			if n, ok := o.(raw.NumberObj); ok && !n.IsInt {
				b.WriteString(writer.FormatNumber(n.F))
			} else {
				b.Write(writer.SerializeObject(o))
			}
			b.WriteByte(' ')
		}
		b.WriteString(op.Operator)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

var ErrDanglingOperands = errors.New("operands without operator")

// Parse splits a decoded content stream into operations. Inline images are
// kept as a single "BI" operation whose operand is the raw image data.
func Parse(data []byte) ([]Operation, error) {
	s := scanner.New(data, scanner.Config{})
	rd := raw.NewReader(s, nil)
	var ops []Operation
	var stack []raw.Object
	for {
		tok, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ops, err
		}
		if tok.Type == scanner.TokenKeyword {
			switch tok.Str {
			case "BI":
				img, err := skipInlineImage(s)
				if err != nil {
					return ops, err
				}
				ops = append(ops, Operation{Operator: "BI", Operands: []raw.Object{raw.Str(img)}})
				stack = stack[:0]
				continue
			case "]", ">>", "}", "{":
				return ops, fmt.Errorf("unexpected %q at %d", tok.Str, tok.Pos)
			}
			ops = append(ops, Operation{Operator: tok.Str, Operands: stack})
			stack = nil
			continue
		}
		// Hand the token back to the object reader. Numbers are read
		// directly so "1 0 0 1 0 0 cm" is not mistaken for references.
		if tok.Type == scanner.TokenNumber {
			if tok.IsInt {
				stack = append(stack, raw.NumberInt(tok.Int))
			} else {
				stack = append(stack, raw.NumberFloat(tok.Float))
			}
			continue
		}
		if err := rd.Seek(tok.Pos); err != nil {
			return ops, err
		}
		obj, err := rd.ReadObject()
		if err != nil {
			return ops, err
		}
		stack = append(stack, obj)
	}
	if len(stack) > 0 {
		return ops, ErrDanglingOperands
	}
	return ops, nil
}

func skipInlineImage(s *scanner.Scanner) ([]byte, error) {
	data := s.Data()
	start := s.Position()
	idx := bytes.Index(data[start:], []byte("ID"))
	if idx < 0 {
		return nil, errors.New("inline image without ID")
	}
	body := start + int64(idx) + 3
	for i := body; i+2 <= int64(len(data)); i++ {
		if data[i] == 'E' && data[i+1] == 'I' &&
			(i == 0 || isSpace(data[i-1])) &&
			(i+2 == int64(len(data)) || isSpace(data[i+2])) {
			if err := s.Seek(i + 2); err != nil {
				return nil, err
			}
			if body > i {
				body = i
			}
			return data[body:i], nil
		}
	}
	return nil, errors.New("inline image without EI")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

// GraphicsState tracks the current transformation matrix across q/Q/cm.
type GraphicsState struct {
	CTM       coords.Matrix
	LineWidth float64
	stack     []GraphicsState
}

func NewGraphicsState() *GraphicsState {
	return &GraphicsState{CTM: coords.Identity(), LineWidth: 1}
}

func (gs *GraphicsState) Save() {
	gs.stack = append(gs.stack, GraphicsState{CTM: gs.CTM, LineWidth: gs.LineWidth})
}

func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	top := gs.stack[n-1]
	gs.CTM, gs.LineWidth = top.CTM, top.LineWidth
	gs.stack = gs.stack[:n-1]
	return nil
}

// Depth is the number of unmatched q operators.
func (gs *GraphicsState) Depth() int { return len(gs.stack) }

// OperatorHandler observes one operator with the state as it was before the
// operator ran.
type OperatorHandler interface {
	Handle(state *GraphicsState, op Operation) error
}

// HandlerFunc adapts a function to OperatorHandler.
type HandlerFunc func(state *GraphicsState, op Operation) error

func (f HandlerFunc) Handle(state *GraphicsState, op Operation) error { return f(state, op) }

type Processor interface {
	Process(ctx context.Context, stream []byte, state *GraphicsState) error
	RegisterHandler(op string, h OperatorHandler)
}

type simpleProcessor struct{ handlers map[string]OperatorHandler }

func NewProcessor() Processor {
	return &simpleProcessor{handlers: make(map[string]OperatorHandler)}
}

// RegisterHandler installs h for op; "*" receives every operator.
func (p *simpleProcessor) RegisterHandler(op string, h OperatorHandler) { p.handlers[op] = h }

func (p *simpleProcessor) Process(ctx context.Context, stream []byte, state *GraphicsState) error {
	ops, err := Parse(stream)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, key := range []string{op.Operator, "*"} {
			if h, ok := p.handlers[key]; ok {
				if err := h.Handle(state, op); err != nil {
					return err
				}
			}
		}
		switch op.Operator {
		case "q":
			state.Save()
		case "Q":
			if err := state.Restore(); err != nil {
				return err
			}
		case "cm":
			if m, ok := matrixOperands(op.Operands); ok {
				state.CTM = m.Multiply(state.CTM)
			}
		case "w":
			if len(op.Operands) == 1 {
				if v, ok := raw.AsNumber(op.Operands[0]); ok {
					state.LineWidth = v
				}
			}
		}
	}
	return nil
}

func matrixOperands(ops []raw.Object) (coords.Matrix, bool) {
	if len(ops) != 6 {
		return coords.Matrix{}, false
	}
	var m coords.Matrix
	for i, o := range ops {
		v, ok := raw.AsNumber(o)
		if !ok {
			return coords.Matrix{}, false
		}
		m[i] = v
	}
	return m, true
}
