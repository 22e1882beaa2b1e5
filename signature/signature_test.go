package signature

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPickerListAndPick(t *testing.T) {
	img := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/users/u 1/signatures":
			w.Header().Set("content-type", "application/json")
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"id": "s1", "name": "Initials"},
				{"id": "s2", "name": "Full"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/signatures/s1/image":
			// No content type: the picker has to sniff it.
			w.Header().Set("content-type", "application/octet-stream")
			w.Write(img)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.Bearer = "tok"
	p := &Picker{Client: c, User: "u 1"}
	ctx := context.Background()

	opts, err := p.Options(ctx)
	if err != nil {
		t.Fatalf("Options() error: %v", err)
	}
	if len(opts) != 2 || opts[0].ID != "s1" || opts[1].Name != "Full" {
		t.Fatalf("Options() = %+v", opts)
	}

	file, err := p.Pick(ctx, "s1")
	if err != nil {
		t.Fatalf("Pick() error: %v", err)
	}
	if file.MIME != "image/png" || !bytes.Equal(file.Data, img) || !strings.HasPrefix(file.Name, "signature-s1") {
		t.Fatalf("Pick() = %q %q %d bytes", file.Name, file.MIME, len(file.Data))
	}

	if _, err := p.Pick(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Pick(gone) error = %v", err)
	}
	c.Bearer = ""
	if _, err := p.Options(ctx); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("unauthorized error = %v", err)
	}
}

func TestClientDefaults(t *testing.T) {
	c := New("http://example.test//")
	if c.BaseURL != "http://example.test" {
		t.Fatalf("BaseURL = %q", c.BaseURL)
	}
	if c.HTTPClient.Timeout.Seconds() != 10 {
		t.Fatalf("timeout = %v", c.HTTPClient.Timeout)
	}
}
