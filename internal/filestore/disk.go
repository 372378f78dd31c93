package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"attendease/internal/apperr"
)

// Disk stores files in a local directory.
type Disk struct {
	Dir string
}

// NewDisk creates dir if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create %s: %w", dir, err)
	}
	return &Disk{Dir: dir}, nil
}

func (d *Disk) path(name string) string {
	return filepath.Join(d.Dir, filepath.Base(name))
}

func (d *Disk) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	f, err := os.OpenFile(d.path(name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("filestore: create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("filestore: write file: %w", err)
	}
	return "", f.Close()
}

func (d *Disk) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("file not found")
	}
	return f, err
}
