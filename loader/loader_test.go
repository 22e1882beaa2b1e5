package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfannot/gesture"
	"github.com/wudi/pdfannot/internal/pdftest"
	"github.com/wudi/pdfannot/parser"
)

func twoPages() []byte {
	return pdftest.Build(pdftest.Options{Pages: []pdftest.PageSpec{
		{Width: 612, Height: 792, Content: "0 0 1 rg 10 10 50 50 re f"},
		{Width: 595, Height: 842, Rotate: 90},
	}})
}

func TestLoadSources(t *testing.T) {
	data := twoPages()
	dir := t.TempDir()
	file := filepath.Join(dir, "contract.pdf")
	if err := os.WriteFile(file, data, 0o600); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(data)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		src  Source
	}{
		{"bytes", FromBytes("upload.pdf", data)},
		{"file", FromFile(file)},
		{"url", FromURL(srv.URL + "/files/contract.pdf")},
	}
	want := []gesture.Size{{Width: 612, Height: 792}, {Width: 595, Height: 842}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Load(context.Background(), tt.src)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(want, doc.Sizes()); diff != "" {
				t.Fatalf("sizes (-want +got):\n%s", diff)
			}
			if p, _ := doc.Page(1); p.Rotate != 90 {
				t.Fatalf("rotate = %d", p.Rotate)
			}
			if string(doc.Bytes()) != string(data) {
				t.Fatal("original bytes changed")
			}
		})
	}
}

func TestNavigation(t *testing.T) {
	doc, err := Load(context.Background(), FromBytes("a.pdf", twoPages()))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Prev() {
		t.Fatal("Prev moved before the first page")
	}
	if !doc.Next() || doc.CurrentPage() != 1 {
		t.Fatalf("Next: current = %d", doc.CurrentPage())
	}
	if doc.Next() {
		t.Fatal("Next moved past the last page")
	}
	if err := doc.SetCurrentPage(2); !errors.Is(err, ErrPageRange) {
		t.Fatalf("SetCurrentPage(2) err = %v", err)
	}
	if err := doc.SetCurrentPage(0); err != nil || doc.CurrentPage() != 0 {
		t.Fatalf("SetCurrentPage(0) = %v, current %d", err, doc.CurrentPage())
	}
}

func TestPreview(t *testing.T) {
	doc, err := Load(context.Background(), FromBytes("a.pdf", twoPages()))
	if err != nil {
		t.Fatal(err)
	}
	p, err := doc.Preview(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.ContentLength != len("0 0 1 rg 10 10 50 50 re f") || p.Width != 612 {
		t.Fatalf("preview = %+v", p)
	}
	if _, err := doc.Preview(context.Background(), 5); !errors.Is(err, ErrPageRange) {
		t.Fatalf("out of range err = %v", err)
	}
}

func TestLoadFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tests := []struct {
		name string
		src  Source
		cfg  Config
		want error
	}{
		{"not a pdf", FromBytes("x.txt", []byte("hello")), Config{}, parser.ErrNotPDF},
		{"encrypted", FromBytes("e.pdf", pdftest.Build(pdftest.Options{Pages: []pdftest.PageSpec{{Width: 10, Height: 10}}, Encrypt: true})), Config{}, parser.ErrEncrypted},
		{"http 404", FromURL(srv.URL + "/missing.pdf"), Config{}, ErrStatus},
		{"too large", FromBytes("big.pdf", twoPages()), Config{MaxSize: 64}, ErrTooLarge},
		{"missing file", FromFile(filepath.Join(t.TempDir(), "none.pdf")), Config{}, os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := New(tt.cfg).Load(context.Background(), tt.src)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if doc != nil {
				t.Fatal("failed load returned a document")
			}
		})
	}
}
