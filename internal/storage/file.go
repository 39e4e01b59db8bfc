package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// File is an uploaded file held in memory.
type File struct {
	Name string
	Data []byte
}

// Ext returns the lower-cased extension including the dot.
func (f *File) Ext() string { return strings.ToLower(filepath.Ext(f.Name)) }

// ContentType sniffs the first bytes of the file.
func (f *File) ContentType() string { return http.DetectContentType(f.Data) }

// IsPDF checks both the extension and the content signature.
func (f *File) IsPDF() bool {
	return f.Ext() == ".pdf" && f.ContentType() == "application/pdf"
}

// IsImage accepts the formats the browser upload form offers.
func (f *File) IsImage() bool {
	switch f.ContentType() {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp":
		return true
	}
	return false
}

// FromMultipart reads fh fully, refusing anything above maxBytes.
func FromMultipart(fh *multipart.FileHeader, maxBytes int64) (*File, error) {
	if fh == nil {
		return nil, nil
	}
	if fh.Size > maxBytes {
		return nil, fmt.Errorf("%s is larger than %d bytes", fh.Filename, maxBytes)
	}
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%s is larger than %d bytes", fh.Filename, maxBytes)
	}
	return &File{Name: fh.Filename, Data: data}, nil
}
