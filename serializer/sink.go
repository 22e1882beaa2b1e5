package serializer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
)

const MIMEPDF = "application/pdf"

// Sink receives a finished document for download.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) error
}

// FileSink writes downloads into Dir. Only the base of the requested name
// is used, so a name cannot escape Dir.
type FileSink struct {
	Dir string
}

func (s FileSink) Save(ctx context.Context, name string, data []byte) error {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return errors.New("download name is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Dir, "."+base+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.Dir, base))
}

type writerSink struct{ w io.Writer }

// WriterSink streams downloads into w and ignores the name.
func WriterSink(w io.Writer) Sink { return writerSink{w: w} }

func (s writerSink) Save(_ context.Context, _ string, data []byte) error {
	_, err := s.w.Write(data)
	return err
}
