// Package pdftest generates small, valid PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"

	"github.com/wudi/pdfannot/filters"
)

// PageSpec describes one generated page.
type PageSpec struct {
	Width, Height float64
	Content       string
	// Rotate is written when non-zero.
	Rotate int
}

// Options controls the file layout.
type Options struct {
	Pages []PageSpec
	// XRefStream writes a compressed cross-reference stream instead of a table.
	XRefStream bool
	// ObjectStream places the catalog and page tree nodes inside an object
	// stream. It implies XRefStream.
	ObjectStream bool
	// InheritMediaBox stores the first page's box on the Pages node only.
	InheritMediaBox bool
	Encrypt         bool
}

// Letter returns a single US Letter page with a short content stream.
func Letter() Options {
	return Options{Pages: []PageSpec{{Width: 612, Height: 792, Content: "0 0 1 rg 10 10 50 50 re f"}}}
}

type object struct {
	num  int
	body string
	data []byte
}

// Build renders the document.
func Build(opts Options) []byte {
	if opts.ObjectStream {
		opts.XRefStream = true
	}
	n := len(opts.Pages)
	// 1 catalog, 2 pages, then (page, content) pairs.
	objs := []object{}
	kids := ""
	for i := range opts.Pages {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	pagesBody := fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d", kids, n)
	if opts.InheritMediaBox && n > 0 {
		pagesBody += fmt.Sprintf(" /MediaBox [0 0 %s %s]", num(opts.Pages[0].Width), num(opts.Pages[0].Height))
	}
	pagesBody += " >>"
	objs = append(objs,
		object{num: 1, body: "<< /Type /Catalog /Pages 2 0 R >>"},
		object{num: 2, body: pagesBody},
	)
	for i, p := range opts.Pages {
		pageNum, contentNum := 3+2*i, 4+2*i
		body := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Contents %d 0 R /Resources << >>", contentNum)
		if !opts.InheritMediaBox {
			body += fmt.Sprintf(" /MediaBox [0 0 %s %s]", num(p.Width), num(p.Height))
		}
		if p.Rotate != 0 {
			body += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		body += " >>"
		objs = append(objs,
			object{num: pageNum, body: body},
			object{num: contentNum, data: []byte(p.Content)},
		)
	}

	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := map[int]int64{}
	compressed := map[int][2]int{}
	size := 3 + 2*n

	if opts.ObjectStream {
		// catalog and pages node go into object stream number size.
		var header, body bytes.Buffer
		for i, o := range objs[:2] {
			fmt.Fprintf(&header, "%d %d ", o.num, body.Len())
			body.WriteString(o.body)
			body.WriteString("\n")
			compressed[o.num] = [2]int{size, i}
		}
		payload := append(header.Bytes(), body.Bytes()...)
		enc, _ := filters.FlateEncode(payload)
		objs = append(objs[2:], object{num: size, body: fmt.Sprintf("<< /Type /ObjStm /N 2 /First %d /Filter /FlateDecode /Length %d >>", header.Len(), len(enc)), data: enc})
		size++
	}

	for _, o := range objs {
		offsets[o.num] = int64(buf.Len())
		if o.data != nil {
			body := o.body
			if body == "" {
				body = fmt.Sprintf("<< /Length %d >>", len(o.data))
			}
			fmt.Fprintf(buf, "%d 0 obj\n%s\nstream\n", o.num, body)
			buf.Write(o.data)
			buf.WriteString("\nendstream\nendobj\n")
			continue
		}
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", o.num, o.body)
	}

	encrypt := ""
	if opts.Encrypt {
		offsets[size] = int64(buf.Len())
		fmt.Fprintf(buf, "%d 0 obj\n<< /Filter /Standard /V 1 /R 2 /O <00> /U <00> /P -4 >>\nendobj\n", size)
		encrypt = fmt.Sprintf(" /Encrypt %d 0 R", size)
		size++
	}

	xrefOff := buf.Len()
	if opts.XRefStream {
		xrefNum := size
		size++
		offsets[xrefNum] = int64(xrefOff)
		var rows bytes.Buffer
		for i := 0; i < size; i++ {
			if c, ok := compressed[i]; ok {
				rows.Write([]byte{2, 0, 0, byte(c[0] >> 8), byte(c[0]), byte(c[1])})
				continue
			}
			off, ok := offsets[i]
			if !ok {
				rows.Write([]byte{0, 0, 0, 0, 0, 0})
				continue
			}
			rows.Write([]byte{1, byte(off >> 24), byte(off >> 16), byte(off >> 8), byte(off), 0})
		}
		enc, _ := filters.FlateEncode(rows.Bytes())
		fmt.Fprintf(buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 1] /Root 1 0 R%s /Filter /FlateDecode /Length %d >>\nstream\n", xrefNum, size, encrypt, len(enc))
		buf.Write(enc)
		buf.WriteString("\nendstream\nendobj\n")
	} else {
		fmt.Fprintf(buf, "xref\n0 %d\n0000000000 65535 f \n", size)
		for i := 1; i < size; i++ {
			fmt.Fprintf(buf, "%010d 00000 n \n", offsets[i])
		}
		fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\n", size, encrypt)
	}
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

func num(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
