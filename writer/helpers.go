package writer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/wudi/pdfannot/ir/raw"
)

// FormatNumber prints v the shortest way PDF readers accept: no exponent,
// no trailing zeros.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	s := strconv.FormatFloat(v, 'f', numberPrecision, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// numberPrecision is the number of decimals written for reals.
const numberPrecision = 5

// SerializeObject renders a direct object in PDF syntax.
func SerializeObject(o raw.Object) []byte {
	var b bytes.Buffer
	writePrimitive(&b, o)
	return b.Bytes()
}

func writePrimitive(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		b.WriteString("/" + pdfNameLiteral(v.Value()))
	case raw.NumberObj:
		if v.IsInteger() {
			b.WriteString(strconv.FormatInt(v.Int(), 10))
			return
		}
		b.WriteString(FormatNumber(v.Float()))
	case raw.BoolObj:
		if v.Value() {
			b.WriteString("true")
			return
		}
		b.WriteString("false")
	case raw.NullObj:
		b.WriteString("null")
	case raw.StringObj:
		if v.IsHex() {
			b.WriteString("<" + strings.ToUpper(hex.EncodeToString(v.Value())) + ">")
			return
		}
		b.Write(escapeLiteralString(v.Value()))
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			writePrimitive(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		b.WriteString("<<")
		for i, k := range v.SortedKeys() {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString("/" + pdfNameLiteral(k) + " ")
			writePrimitive(b, v.KV[k])
		}
		b.WriteString(">>")
	case *raw.StreamObj:
		d := v.Dict.Clone()
		d.Put("Length", raw.NumberInt(int64(len(v.Data))))
		writePrimitive(b, d)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(b, "%d %d R", v.Ref().Num, v.Ref().Gen)
	default:
		b.WriteString("null")
	}
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

// EscapeString renders bytes as a PDF literal string, parentheses included.
func EscapeString(b []byte) []byte { return escapeLiteralString(b) }

func pdfNameLiteral(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7f && !strings.ContainsRune("()<>[]{}/%#", rune(ch)) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

// NameLiteral renders a name with its leading slash.
func NameLiteral(value string) string { return "/" + pdfNameLiteral(value) }

func xrefStreamIndexAndEntries(entries map[int]int64, gens map[int]int) (*raw.ArrayObj, []byte) {
	keys := make([]int, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	indexArr := raw.NewArray()
	var data []byte
	segStart, prev := -1, -1
	for _, k := range keys {
		if segStart == -1 {
			segStart = k
		} else if k != prev+1 {
			indexArr.Append(raw.NumberInt(int64(segStart)))
			indexArr.Append(raw.NumberInt(int64(prev - segStart + 1)))
			segStart = k
		}
		prev = k
		if k == 0 {
			data = appendXRefStreamEntry(data, 0, 0, 65535)
			continue
		}
		data = appendXRefStreamEntry(data, 1, entries[k], gens[k])
	}
	if segStart != -1 {
		indexArr.Append(raw.NumberInt(int64(segStart)))
		indexArr.Append(raw.NumberInt(int64(prev - segStart + 1)))
	}
	return indexArr, data
}

func appendXRefStreamEntry(buf []byte, typ int, field2 int64, gen int) []byte {
	buf = append(buf, byte(typ))
	offset := uint32(field2)
	buf = append(buf, byte(offset>>24), byte(offset>>16), byte(offset>>8), byte(offset))
	buf = append(buf, byte(gen>>8), byte(gen))
	return buf
}

// xrefTableSection renders classic subsections for the given entries.
func xrefTableSection(entries map[int]int64, gens map[int]int) []byte {
	keys := make([]int, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	var b bytes.Buffer
	b.WriteString("xref\n")
	for i := 0; i < len(keys); {
		j := i
		for j+1 < len(keys) && keys[j+1] == keys[j]+1 {
			j++
		}
		fmt.Fprintf(&b, "%d %d\n", keys[i], j-i+1)
		for _, k := range keys[i : j+1] {
			if k == 0 {
				b.WriteString("0000000000 65535 f \n")
				continue
			}
			fmt.Fprintf(&b, "%010d %05d n \n", entries[k], gens[k])
		}
		i = j + 1
	}
	return b.Bytes()
}

// updateID keeps the permanent identifier and derives a new changing one
// from the appended bytes, so identical edits produce identical files.
func updateID(old raw.Object, section []byte) *raw.ArrayObj {
	sum := sha256.Sum256(section)
	changing := sum[:16]
	permanent := changing
	if arr, ok := old.(*raw.ArrayObj); ok && arr.Len() == 2 {
		if s, ok := arr.Items[0].(raw.StringObj); ok && len(s.Bytes) > 0 {
			permanent = s.Bytes
		}
	}
	return raw.NewArray(raw.HexStr(permanent), raw.HexStr(changing))
}
