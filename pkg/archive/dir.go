package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Dir stores objects as files in a local directory.
type Dir struct {
	Path string
}

// NewDir creates the directory if needed.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", path, err)
	}
	return &Dir{Path: path}, nil
}

// Put writes r to Path/name through a temporary file.
func (d *Dir) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := filepath.Join(d.Path, filepath.Base(name))

	tmp, err := os.CreateTemp(d.Path, ".upload-*")
	if err != nil {
		return fmt.Errorf("archive: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("archive: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("archive: rename %s: %w", name, err)
	}
	return nil
}

// Name implements Store.
func (d *Dir) Name() string { return "dir" }

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

var _ Store = (*Dir)(nil)
