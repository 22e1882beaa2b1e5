// Package signature reads a user's saved signature images from the
// signature service so they can be placed like uploaded images.
package signature

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/raster"
)

var ErrNotFound = errors.New("signature not found")

// MaxImageSize bounds a downloaded signature image.
const MaxImageSize = 8 << 20

type Signature struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Bearer     string
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// List returns the signatures saved by user.
func (c *Client) List(ctx context.Context, user string) ([]Signature, error) {
	u := fmt.Sprintf("%s/users/%s/signatures", c.BaseURL, url.PathEscape(user))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out []Signature
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode signatures: %w", err)
	}
	return out, nil
}

// Image downloads the encoded image of signature id and its MIME type.
func (c *Client) Image(ctx context.Context, id string) ([]byte, string, error) {
	u := fmt.Sprintf("%s/signatures/%s/image", c.BaseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > MaxImageSize {
		return nil, "", fmt.Errorf("signature %s: image larger than %d bytes", id, MaxImageSize)
	}
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(mt, "image/") {
		mt = raster.Sniff(data)
	}
	return data, mt, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		resp.Body.Close()
		return nil, fmt.Errorf("http %d: %v", resp.StatusCode, errBody)
	}
	return resp, nil
}

// Picker turns a chosen signature into the File an upload would produce.
type Picker struct {
	Client *Client
	User   string
}

// Options lists the signatures the picker grid shows.
func (p *Picker) Options(ctx context.Context) ([]Signature, error) {
	return p.Client.List(ctx, p.User)
}

func (p *Picker) Pick(ctx context.Context, id string) (attachment.File, error) {
	data, mt, err := p.Client.Image(ctx, id)
	if err != nil {
		return attachment.File{}, err
	}
	name := "signature-" + id
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		name += exts[0]
	}
	return attachment.File{Name: name, MIME: mt, Data: data}, nil
}
