package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage(t *testing.T) {
	fs, err := NewFileStorage(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	a, err := fs.Save(".TXT", []byte("one"))
	require.NoError(t, err)
	b, err := fs.Save(".txt", []byte("two"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, ".txt"))
	assert.Len(t, strings.TrimSuffix(filepath.Base(a), ".txt"), 32)

	data, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	require.NoError(t, fs.Remove(a))
	require.NoError(t, fs.Remove(a), "removing a missing file is not an error")
	_, err = os.Stat(a)
	assert.True(t, os.IsNotExist(err))

	err = fs.Remove(filepath.Join(fs.Dir, "..", "outside.txt"))
	assert.ErrorIs(t, err, ErrStorage)
}

func TestExtractText(t *testing.T) {
	text, err := ExtractText("notes.md", []byte("\xef\xbb\xbf# 小麦"))
	require.NoError(t, err)
	assert.Equal(t, "# 小麦", text)

	_, err = ExtractText("notes.txt", []byte{0xff, 0xfe, 0x00})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ExtractText("sheet.xlsx", []byte("x"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ExtractText("broken.pdf", []byte("not a pdf"))
	assert.Error(t, err)
}
