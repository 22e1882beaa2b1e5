package serializer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/fonts"
	"github.com/wudi/pdfannot/internal/pdftest"
	"github.com/wudi/pdfannot/ir/raw"
	"github.com/wudi/pdfannot/parser"
)

func source(pages ...pdftest.PageSpec) []byte {
	if len(pages) == 0 {
		pages = []pdftest.PageSpec{{Width: 600, Height: 800, Content: "0 0 1 rg 10 10 50 50 re f"}}
	}
	return pdftest.Build(pdftest.Options{Pages: pages})
}

func text(id string, x, y, size float64, s string) *attachment.TextAttachment {
	return &attachment.TextAttachment{
		Base: attachment.Base{ID: id, X: x, Y: y, Width: 300, Height: 40},
		Text: s, Size: size, LineHeight: 1.4, FontFamily: "Helvetica",
	}
}

func pngFile(t *testing.T) attachment.File {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		img.Set(x, 0, color.NRGBA{G: 255, A: 255})
		img.Set(x, 1, color.NRGBA{G: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return attachment.File{Name: "sig.png", MIME: "image/png", Data: buf.Bytes()}
}

func imageAt(t *testing.T, id string, x, y, w, h float64) *attachment.ImageAttachment {
	return &attachment.ImageAttachment{Base: attachment.Base{ID: id, X: x, Y: y, Width: w, Height: h}, File: pngFile(t)}
}

func drawing(id string, x, y float64) *attachment.DrawingAttachment {
	return &attachment.DrawingAttachment{
		Base: attachment.Base{ID: id, X: x, Y: y, Width: 5, Height: 10},
		Path: "M 0 0 L 10 20", Stroke: "#ff0000", StrokeWidth: 3, Scale: 0.5,
	}
}

// overlay reparses out and returns page i's last content stream.
func overlay(t *testing.T, out []byte, i int) (*parser.Document, string) {
	t.Helper()
	ctx := context.Background()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(ctx, out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	contents, _ := doc.Pages[i].Dict.Lookup("Contents")
	arr, ok := contents.(*raw.ArrayObj)
	if !ok {
		t.Fatalf("page %d Contents = %T", i, contents)
	}
	last, err := doc.Resolve(ctx, arr.Items[len(arr.Items)-1])
	if err != nil {
		t.Fatal(err)
	}
	data, err := doc.DecodeStream(ctx, last.(*raw.StreamObj))
	if err != nil {
		t.Fatal(err)
	}
	return doc, string(data)
}

func TestSerializeWithoutAttachmentsKeepsBytes(t *testing.T) {
	src := source()
	for _, pages := range [][][]attachment.Attachment{nil, {nil}, {{}}} {
		out, err := Serialize(context.Background(), src, pages)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, src) {
			t.Fatalf("pages %v changed the file", pages)
		}
	}
}

func TestSerializeFlipsCoordinates(t *testing.T) {
	out, err := Serialize(context.Background(), source(), [][]attachment.Attachment{{
		text("t", 10, 20, 12, "Hello"),
		imageAt(t, "i", 0, 0, 100, 50),
		drawing("d", 50, 100),
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out, source()) {
		t.Fatal("original bytes were not preserved")
	}
	_, stream := overlay(t, out, 0)
	for _, want := range []string{
		"10 768 Td",
		"100 0 0 50 0 750 cm",
		"1 J\n1 j\n0.5 0 0 -0.5 50 700 cm\n1 0 0 RG\n3 w\n",
	} {
		if !strings.Contains(stream, want) {
			t.Fatalf("overlay missing %q:\n%s", want, stream)
		}
	}
}

func TestSerializeStrokeAlpha(t *testing.T) {
	tests := []struct {
		stroke string
		want   string // "" means no stroke at all
	}{
		{"transparent", ""},
		{"rgba(0,0,0,0)", ""},
		{"rgba(255,0,0,0.5)", " gs\n1 0 0 RG\n"},
		{"", "0 0 0 RG\n"},
	}
	for _, tt := range tests {
		t.Run(tt.stroke, func(t *testing.T) {
			d := drawing("d", 50, 100)
			d.Stroke = tt.stroke
			pages := [][]attachment.Attachment{{text("t", 10, 20, 12, "Hi"), d}}
			out, err := Serialize(context.Background(), source(), pages)
			if err != nil {
				t.Fatal(err)
			}
			_, stream := overlay(t, out, 0)
			if tt.want == "" {
				if strings.Contains(stream, "RG\n") || strings.Contains(stream, "\nS\n") {
					t.Fatalf("invisible stroke was drawn:\n%s", stream)
				}
				return
			}
			if !strings.Contains(stream, tt.want) || !strings.Contains(stream, "\nS\n") {
				t.Fatalf("stream lacks %q:\n%s", tt.want, stream)
			}
		})
	}
}

func TestSerializeKeepsInsertionOrder(t *testing.T) {
	var list []attachment.Attachment
	var want []attachment.Kind
	for i := 0; i < 12; i++ {
		var a attachment.Attachment
		switch i % 3 {
		case 0:
			a = imageAt(t, fmt.Sprint("i", i), 0, 0, 40, 20)
		case 1:
			a = text(fmt.Sprint("t", i), 10, 10, 10, "x")
		default:
			a = drawing(fmt.Sprint("d", i), 10, 10)
		}
		list = append(list, a)
		want = append(want, a.Kind())
	}
	out, err := New(Config{Workers: 4}).Serialize(context.Background(), source(), [][]attachment.Attachment{list})
	if err != nil {
		t.Fatal(err)
	}
	_, stream := overlay(t, out, 0)
	var got []attachment.Kind
	for _, line := range strings.Split(stream, "\n") {
		switch {
		case strings.HasSuffix(line, " Do"):
			got = append(got, attachment.KindImage)
		case line == "ET":
			got = append(got, attachment.KindText)
		case line == "S":
			got = append(got, attachment.KindDrawing)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("draw order (-want +got):\n%s", diff)
	}
}

func TestSerializeSharesFontsAcrossPages(t *testing.T) {
	src := source(
		pdftest.PageSpec{Width: 600, Height: 800},
		pdftest.PageSpec{Width: 600, Height: 800},
	)
	out, err := Serialize(context.Background(), src, [][]attachment.Attachment{
		{text("a", 0, 0, 12, "one"), text("b", 0, 100, 12, "two")},
		{text("c", 0, 0, 12, "three")},
	})
	if err != nil {
		t.Fatal(err)
	}
	doc, stream := overlay(t, out, 0)
	if strings.Contains(stream, "/F2") {
		t.Fatal("same family registered twice on one page")
	}
	refs := make([]raw.Object, 2)
	for i := range refs {
		res, err := doc.Dict(context.Background(), doc.Pages[i].Resources)
		if err != nil {
			t.Fatal(err)
		}
		fontsObj, _ := res.Lookup("Font")
		fd, err := doc.Dict(context.Background(), fontsObj)
		if err != nil {
			t.Fatal(err)
		}
		refs[i], _ = fd.Lookup("F1")
	}
	if _, ok := refs[0].(raw.RefObj); !ok || refs[0] != refs[1] {
		t.Fatalf("font refs = %v, want one shared object", refs)
	}
}

func TestSerializeEmbedsTrueType(t *testing.T) {
	a := text("go", 10, 10, 14, "Grüße")
	a.FontFamily = "Go"
	out, err := Serialize(context.Background(), source(), [][]attachment.Attachment{{a}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(out, []byte("/FontFile2")) || !bytes.Contains(out, []byte("/Type0")) {
		t.Fatal("TrueType font was not embedded as Type0")
	}
}

func TestSerializeErrors(t *testing.T) {
	var gifData bytes.Buffer
	if err := gif.Encode(&gifData, image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White}), nil); err != nil {
		t.Fatal(err)
	}
	badImage := imageAt(t, "g", 0, 0, 10, 10)
	badImage.File = attachment.File{Name: "a.gif", MIME: "image/gif", Data: gifData.Bytes()}
	badFont := text("f", 0, 0, 12, "x")
	badFont.FontFamily = "Comic Sans"
	badPath := drawing("p", 0, 0)
	badPath.Path = "M 0 0 A 1 1 0 0 0 5 5"

	tests := []struct {
		name  string
		pages [][]attachment.Attachment
		want  error
		id    string
	}{
		{"unsupported image", [][]attachment.Attachment{{text("ok", 0, 0, 12, "x"), badImage}}, ErrUnsupportedImage, "g"},
		{"unknown font", [][]attachment.Attachment{{badFont}}, fonts.ErrUnknownFont, "f"},
		{"bad path", [][]attachment.Attachment{{badPath}}, nil, "p"},
		{"page out of range", [][]attachment.Attachment{nil, {text("x", 0, 0, 12, "x")}}, ErrPageRange, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Serialize(context.Background(), source(), tt.pages)
			if err == nil || out != nil {
				t.Fatalf("Serialize = %d bytes, %v", len(out), err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var embed *EmbedError
			if got := errors.As(err, &embed); got != (tt.id != "") {
				t.Fatalf("EmbedError = %v for %v", got, err)
			}
			if embed != nil && embed.ID != tt.id {
				t.Fatalf("EmbedError.ID = %q, want %q", embed.ID, tt.id)
			}
		})
	}
}

func TestSerializeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Serialize(ctx, source(), [][]attachment.Attachment{{text("t", 0, 0, 12, "x")}}); err == nil {
		t.Fatal("cancelled serialize succeeded")
	}
}

func TestOutputModes(t *testing.T) {
	s := New(Config{})
	src := source()
	pages := [][]attachment.Attachment{{text("t", 10, 20, 12, "Hello")}}
	ctx := context.Background()

	blob, err := s.Blob(ctx, src, pages, "signed.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if blob.Name != "signed.pdf" || blob.MIME != MIMEPDF || !bytes.HasPrefix(blob.Data, src) {
		t.Fatalf("blob = %q %q %d bytes", blob.Name, blob.MIME, len(blob.Data))
	}

	var buf bytes.Buffer
	if err := s.Download(ctx, src, pages, "ignored.pdf", WriterSink(&buf)); err != nil {
		t.Fatal(err)
	}
	if _, stream := overlay(t, buf.Bytes(), 0); !strings.Contains(stream, "10 768 Td") {
		t.Fatalf("download overlay:\n%s", stream)
	}

	dir := t.TempDir()
	if err := s.Download(ctx, src, pages, "../escape/out.pdf", FileSink{Dir: dir}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "out.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, src) {
		t.Fatal("downloaded file does not start with the original")
	}
}
