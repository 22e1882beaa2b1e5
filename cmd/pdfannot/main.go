package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/wudi/pdfannot/loader"
	"github.com/wudi/pdfannot/observability"
	"github.com/wudi/pdfannot/parser"
	"github.com/wudi/pdfannot/recovery"
	"github.com/wudi/pdfannot/serializer"
	"github.com/wudi/pdfannot/svgpath"
	"github.com/wudi/pdfannot/writer"
)

// globals is what every command's Run receives.
type globals struct {
	logger  observability.Logger
	stdout  io.Writer
	lenient bool
}

// parser is shared by loading and serializing so both see the same pages.
func (g *globals) parser() parser.Config {
	if g.lenient {
		return parser.Config{Recovery: recovery.NewLenient(), Logger: g.logger}
	}
	return parser.Config{Logger: g.logger}
}

func (g *globals) loader() *loader.Loader {
	return loader.New(loader.Config{Parser: g.parser(), Logger: g.logger})
}

var cli struct {
	LogLevel string `enum:"debug,info,warn,error" default:"warn" env:"PDFANNOT_LOG_LEVEL" help:"Log level for messages on stderr"`
	Lenient  bool   `help:"Drop damaged pages instead of failing"`

	Info          infoCmd          `cmd:"" help:"Print page count and page sizes as JSON"`
	Apply         applyCmd         `cmd:"" help:"Draw an annotation document onto a PDF"`
	NormalizePath normalizePathCmd `cmd:"" name:"normalize-path" help:"Translate an SVG path to its own origin"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("pdfannot"),
		kong.Description("Overlay text, images and drawings onto PDF pages."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&globals{
		logger:  newLogger(cli.LogLevel),
		stdout:  os.Stdout,
		lenient: cli.Lenient,
	}))
}

func newLogger(level string) observability.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return observability.NewSlogLogger(slog.New(h))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type infoCmd struct {
	PDF string `arg:"" type:"existingfile" help:"Input PDF"`
}

type pageInfo struct {
	Index  int     `json:"index"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Rotate int     `json:"rotate,omitempty"`
}

func (c *infoCmd) Run(g *globals) error {
	doc, err := g.loader().Load(context.Background(), loader.FromFile(c.PDF))
	if err != nil {
		return err
	}
	pages := make([]pageInfo, 0, doc.PageCount())
	for _, p := range doc.Pages() {
		pages = append(pages, pageInfo{Index: p.Index, Width: p.Width, Height: p.Height, Rotate: p.Rotate})
	}
	return printJSON(g.stdout, struct {
		Name  string     `json:"name"`
		Count int        `json:"pageCount"`
		Pages []pageInfo `json:"pages"`
	}{doc.Name(), doc.PageCount(), pages})
}

type applyCmd struct {
	PDF         string `arg:"" type:"existingfile" help:"Input PDF"`
	Annotations string `short:"a" required:"" type:"existingfile" help:"Annotation document (JSON)"`
	Out         string `short:"o" required:"" type:"path" help:"Output PDF"`
	XRefStream  bool   `name:"xref-stream" help:"Write the update's cross-reference as a stream"`
	Compress    bool   `help:"Flate-compress new content streams"`
	Font        string `default:"Times-Roman" help:"Font family for text without one"`
}

func (c *applyCmd) Run(g *globals) error {
	ctx := context.Background()
	doc, err := g.loader().Load(ctx, loader.FromFile(c.PDF))
	if err != nil {
		return err
	}
	f, err := os.Open(c.Annotations)
	if err != nil {
		return err
	}
	defer f.Close()
	ann, err := decodeAnnotations(f)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Annotations, err)
	}
	pages, err := ann.attachments(doc, c.Font, g.logger)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Annotations, err)
	}

	wcfg := writer.Config{Compress: c.Compress}
	if c.XRefStream {
		wcfg.XRef = writer.XRefStream
	}
	s := serializer.New(serializer.Config{Writer: wcfg, Parser: g.parser(), DefaultFont: c.Font, Logger: g.logger})
	return s.Download(ctx, doc.Bytes(), pages, c.Out, serializer.FileSink{Dir: filepath.Dir(c.Out)})
}

type normalizePathCmd struct {
	Path string `arg:"" help:"SVG path data"`
}

func (c *normalizePathCmd) Run(g *globals) error {
	p, r, err := svgpath.Normalize(c.Path)
	if err != nil {
		return err
	}
	return printJSON(g.stdout, struct {
		Path   string  `json:"path"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}{p.String(), r.Width(), r.Height()})
}
