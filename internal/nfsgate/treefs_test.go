package nfsgate

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthgrid/hearth/api"
)

// fakeBrowser serves a fixed tree: dirs maps a directory path to its
// entry names, files maps an attribute path to its value.
type fakeBrowser struct {
	dirs  map[string][]string
	files map[string]string
}

func (b *fakeBrowser) ListDirectory(_ context.Context, path string) ([]string, error) {
	names, ok := b.dirs[path]
	if !ok {
		return nil, &api.RemoteError{Name: api.ErrNameNotFound, Context: path}
	}
	return names, nil
}

func (b *fakeBrowser) GetFile(_ context.Context, path string) (string, error) {
	value, ok := b.files[path]
	if !ok {
		if _, isDir := b.dirs[path]; isDir {
			return "", &api.RemoteError{Name: api.ErrNameNotFile, Context: path}
		}
		return "", &api.RemoteError{Name: api.ErrNameNotFound, Context: path}
	}
	return value, nil
}

func (b *fakeBrowser) SetFile(_ context.Context, path, value string) ([]api.PathValue, error) {
	if _, ok := b.files[path]; !ok {
		return nil, &api.RemoteError{Name: api.ErrNameNotFound, Context: path}
	}
	b.files[path] = value
	return []api.PathValue{{Path: path, Value: value}}, nil
}

func houseBrowser() *fakeBrowser {
	return &fakeBrowser{
		dirs: map[string][]string{
			"/":            {"room"},
			"/room":        {"bedroom"},
			"/room/bedroom": {"brightness", "switch"},
		},
		files: map[string]string{
			"/room/bedroom/switch":     "on",
			"/room/bedroom/brightness": "80",
		},
	}
}

func TestReadFile(t *testing.T) {
	fs := NewTreeFS(context.Background(), houseBrowser())

	f, err := fs.Open("/room/bedroom/switch")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "on\n", string(data))
}

func TestReadDir(t *testing.T) {
	fs := NewTreeFS(context.Background(), houseBrowser())

	infos, err := fs.ReadDir("/room/bedroom")
	require.NoError(t, err)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
		assert.False(t, info.IsDir())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"brightness", "switch"}, names)
}

func TestStatDirectoryAndFile(t *testing.T) {
	fs := NewTreeFS(context.Background(), houseBrowser())

	info, err := fs.Stat("/room")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	info, err = fs.Stat("/room/bedroom/switch")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, int64(len("on\n")), info.Size())

	_, err = fs.Stat("/room/attic")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadOnlyByDefault(t *testing.T) {
	fs := NewTreeFS(context.Background(), houseBrowser())

	_, err := fs.OpenFile("/room/bedroom/switch", os.O_WRONLY, 0)
	assert.ErrorIs(t, err, errReadOnly)
	assert.ErrorIs(t, fs.Remove("/room/bedroom/switch"), errReadOnly)
	assert.ErrorIs(t, fs.MkdirAll("/attic", 0o755), errReadOnly)
}

func TestWriteThroughOnClose(t *testing.T) {
	browser := houseBrowser()
	fs := NewTreeFS(context.Background(), browser)
	fs.SetWritable()

	f, err := fs.OpenFile("/room/bedroom/switch", os.O_WRONLY|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("off\n"))
	require.NoError(t, err)

	// The value only changes when the file is closed.
	assert.Equal(t, "on", browser.files["/room/bedroom/switch"])
	require.NoError(t, f.Close())
	assert.Equal(t, "off", browser.files["/room/bedroom/switch"])
}

func TestWritePreservesUntouchedContent(t *testing.T) {
	browser := houseBrowser()
	fs := NewTreeFS(context.Background(), browser)
	fs.SetWritable()

	f, err := fs.OpenFile("/room/bedroom/brightness", os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("55"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "55", browser.files["/room/bedroom/brightness"])
}

func TestCleanPath(t *testing.T) {
	assert.Equal(t, "/", cleanPath(""))
	assert.Equal(t, "/", cleanPath("/"))
	assert.Equal(t, "/a/b", cleanPath("a/b"))
	assert.Equal(t, "/a", cleanPath("/a/./b/.."))
}

func TestValueRendering(t *testing.T) {
	assert.Equal(t, "\n", string(renderValue("")))
	assert.True(t, strings.HasSuffix(string(renderValue("on")), "\n"))
}
