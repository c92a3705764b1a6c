package media

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestSaveImage(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "/uploads/")
	require.NoError(t, err)

	data := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 100)...)
	stored, err := store.Save(bytes.NewReader(data), "../../cat.PNG")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stored.URL, "/uploads/"))
	assert.True(t, strings.HasSuffix(stored.URL, ".png"))
	assert.Equal(t, "cat.PNG", stored.FileName)
	assert.Equal(t, "image/png", stored.Mime)
	assert.Equal(t, int64(len(data)), stored.Size)

	written, err := os.ReadFile(filepath.Join(dir, filepath.Base(stored.URL)))
	require.NoError(t, err)
	assert.Equal(t, data, written)
}

func TestSaveRejectsNonImages(t *testing.T) {
	store, err := NewStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	_, err = store.Save(strings.NewReader("plain text"), "notes.png")
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = store.Save(bytes.NewReader(pngHeader), "script.exe")
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestSaveRejectsOversized(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "/uploads")
	require.NoError(t, err)

	data := append(append([]byte{}, pngHeader...), make([]byte, MaxImageBytes)...)
	_, err = store.Save(bytes.NewReader(data), "big.png")
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoveDeletesSavedUpload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "/uploads")
	require.NoError(t, err)

	stored, err := store.Save(bytes.NewReader(append(append([]byte{}, pngHeader...), 0, 0, 0)), "cat.png")
	require.NoError(t, err)
	require.NoError(t, store.Remove(stored.URL))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, store.Remove(stored.URL))
	assert.NoError(t, store.Remove("https://cdn.example.com/cat.png"))
	assert.NoError(t, store.Remove("/uploads/../go.mod"))
}
