// Package filestore keeps ticket attachments, on local disk or on Cloudinary.
package filestore

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"attendease/internal/apperr"
)

// Store saves and serves uploaded files by name.
type Store interface {
	// Save writes r under name and returns a public URL, or "" when the file
	// is only reachable through Open.
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// ErrRemote is returned by Open when the file lives behind its public URL.
var ErrRemote = errors.New("filestore: file is served remotely")

var allowed = map[string]bool{
	".jpeg": true, ".jpg": true, ".png": true, ".gif": true,
	".pdf": true, ".doc": true, ".docx": true,
}

var allowedTypes = []string{"jpeg", "jpg", "png", "gif", "pdf", "msword", "officedocument"}

// Check validates an upload and returns the generated storage name.
func Check(filename, contentType string, size, maxBytes int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowed[ext] {
		return "", apperr.Validation("file type not allowed")
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !typeAllowed(mt) {
		return "", apperr.Validation("file type not allowed")
	}
	if maxBytes > 0 && size > maxBytes {
		return "", apperr.Validation("file too large")
	}
	return "file-" + uuid.NewString() + ext, nil
}

func typeAllowed(mt string) bool {
	for _, t := range allowedTypes {
		if strings.Contains(mt, t) {
			return true
		}
	}
	return false
}
