package media

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	a, err := FromFile("clip", "a test clip", path)
	require.NoError(t, err)
	assert.Equal(t, "clip", a.Name)
	assert.Equal(t, "a test clip", a.Description)
	assert.Equal(t, path, a.Path)
	assert.Equal(t, int64(10), a.Size)
}

func TestFromFile_Missing(t *testing.T) {
	_, err := FromFile("x", "", filepath.Join(t.TempDir(), "absent.mp4"))
	assert.Error(t, err)
}

func TestFromFile_Directory(t *testing.T) {
	_, err := FromFile("x", "", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestFromVideoID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "12345.mp4"), []byte("abc"), 0o644))

	a, err := FromVideoID("12345", dir)
	require.NoError(t, err)
	assert.Equal(t, "12345", a.Name)
	assert.Equal(t, filepath.Join(dir, "12345.mp4"), a.Path)
	assert.Equal(t, int64(3), a.Size)
}

func TestOpen_FreshHandleAtZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0o644))

	a, err := FromFile("clip", "", path)
	require.NoError(t, err)

	f1, err := a.Open()
	require.NoError(t, err)
	defer f1.Close()

	// Consume part of the first handle, then open a second one.
	_, err = io.ReadFull(f1, make([]byte, 4))
	require.NoError(t, err)

	f2, err := a.Open()
	require.NoError(t, err)
	defer f2.Close()

	all, err := io.ReadAll(f2)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(all))
}
