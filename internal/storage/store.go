// Package storage keeps named byte blobs: generated PDFs and uploaded
// images. A reference is the slash-separated name the blob was stored under.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrNotExist = errors.New("artifact does not exist")

type Store interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// UploadName builds "<dir>/<uuid><ext>" for an uploaded file, keeping only
// the lower-cased extension of the client's file name.
func UploadName(dir, clientName string) string {
	ext := strings.ToLower(filepath.Ext(clientName))
	return path.Join(dir, uuid.NewString()+ext)
}

// cleanName rejects absolute names and names escaping the store root.
func cleanName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty artifact name")
	}
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." || clean != strings.TrimPrefix(name, "./") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return clean, nil
}
