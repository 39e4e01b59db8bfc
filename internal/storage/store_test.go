package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	local, err := NewLocalStore(filepath.Join(t.TempDir(), "storage"))
	require.NoError(t, err)
	return map[string]Store{"local": local, "memory": NewMemoryStore()}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ref, err := s.Put(ctx, "invoices/INV-1-20240305.pdf", []byte("%PDF-1"))
			require.NoError(t, err)
			assert.Equal(t, "invoices/INV-1-20240305.pdf", ref)

			_, err = s.Put(ctx, ref, []byte("%PDF-2"))
			require.NoError(t, err)
			data, err := s.Get(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, "%PDF-2", string(data))

			require.NoError(t, s.Delete(ctx, ref))
			require.NoError(t, s.Delete(ctx, ref), "deleting twice is fine")
			_, err = s.Get(ctx, ref)
			assert.ErrorIs(t, err, ErrNotExist)
		})
	}
}

func TestStoreRejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, bad := range []string{"", "../etc/passwd", "/abs.pdf", "dc/../../x.pdf"} {
				_, err := s.Put(ctx, bad, []byte("x"))
				assert.Error(t, err, bad)
			}
		})
	}
}

func TestLocalStoreLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "dc/DC-1-20240305.pdf", []byte("%PDF"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "dc"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "DC-1-20240305.pdf", entries[0].Name())
}

func TestUploadName(t *testing.T) {
	name := UploadName("cheque_images", "Scan Of Cheque.JPG")
	assert.True(t, strings.HasPrefix(name, "cheque_images/"))
	assert.True(t, strings.HasSuffix(name, ".jpg"))
	assert.NotEqual(t, name, UploadName("cheque_images", "Scan Of Cheque.JPG"))
}

func TestFileSniffing(t *testing.T) {
	pdf := &File{Name: "dc.PDF", Data: []byte("%PDF-1.7\n")}
	assert.True(t, pdf.IsPDF())
	assert.False(t, pdf.IsImage())

	renamed := &File{Name: "dc.pdf", Data: []byte("\x89PNG\r\n\x1a\n")}
	assert.False(t, renamed.IsPDF())
	assert.True(t, renamed.IsImage())
	assert.Equal(t, ".pdf", renamed.Ext())

	text := &File{Name: "a.png", Data: []byte("hello")}
	assert.False(t, text.IsImage())
}
