// Package archive stores face-acceptance clips locally and in cloud
// object storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store persists a named object.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	Name() string
}

// PutFile uploads a local file to store under its base name.
func PutFile(ctx context.Context, store Store, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return store.Put(ctx, filepath.Base(path), file, info.Size())
}

// Multi writes to every store and joins the errors.
type Multi []Store

// Put implements Store.
func (m Multi) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if len(m) == 0 {
		return nil
	}
	if len(m) == 1 {
		return m[0].Put(ctx, name, r, size)
	}

	// Every backend needs its own reader.
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("archive: read %s: %w", name, err)
	}
	var errs []error
	for _, s := range m {
		if err := s.Put(ctx, name, bytesReader(data), int64(len(data))); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Name implements Store.
func (m Multi) Name() string { return "multi" }

var _ Store = Multi(nil)
