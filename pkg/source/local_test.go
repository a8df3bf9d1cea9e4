package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemSource(t *testing.T) (*Local, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	return NewLocal(fsys, hclog.NewNullLogger()), fsys
}

func writeTestFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
}

func listedPaths(files []File) []string {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}

func TestNewLocal_DefaultsToOSFilesystem(t *testing.T) {
	src := NewLocal(nil, nil)
	require.NotNil(t, src)

	_, ok := src.fs.(*afero.OsFs)
	assert.True(t, ok)
	assert.Equal(t, "local", src.Name())
}

func TestLocal_ListRecursive(t *testing.T) {
	src, fsys := newMemSource(t)
	writeTestFile(t, fsys, "/docs/a.md", "alpha")
	writeTestFile(t, fsys, "/docs/sub/b.md", "bravo")
	writeTestFile(t, fsys, "/docs/sub/c.txt", "charlie")
	writeTestFile(t, fsys, "/docs/.hidden.md", "secret")
	writeTestFile(t, fsys, "/docs/.git/config", "[core]")

	files, err := src.List(context.Background(), "/docs", true)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"/docs/a.md",
		"/docs/sub/b.md",
		"/docs/sub/c.txt",
	}, listedPaths(files))

	for _, f := range files {
		if f.Path == "/docs/sub/b.md" {
			assert.Equal(t, "b.md", f.Name)
			assert.Equal(t, int64(len("bravo")), f.Size)
		}
	}
}

func TestLocal_ListFlat(t *testing.T) {
	src, fsys := newMemSource(t)
	writeTestFile(t, fsys, "/docs/a.md", "alpha")
	writeTestFile(t, fsys, "/docs/sub/b.md", "bravo")
	writeTestFile(t, fsys, "/docs/.hidden.md", "secret")

	files, err := src.List(context.Background(), "/docs", false)
	require.NoError(t, err)

	assert.Equal(t, []string{"/docs/a.md"}, listedPaths(files))
}

func TestLocal_ListSingleFile(t *testing.T) {
	src, fsys := newMemSource(t)
	writeTestFile(t, fsys, "/docs/a.md", "alpha")

	files, err := src.List(context.Background(), "/docs/a.md", true)
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "/docs/a.md", files[0].Path)
	assert.Equal(t, "a.md", files[0].Name)
	assert.Equal(t, int64(5), files[0].Size)
}

func TestLocal_ListMissingRoot(t *testing.T) {
	src, _ := newMemSource(t)

	_, err := src.List(context.Background(), "/nope", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat")
}

func TestLocal_ListCancelledContext(t *testing.T) {
	src, fsys := newMemSource(t)
	writeTestFile(t, fsys, "/docs/a.md", "alpha")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.List(ctx, "/docs", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_Fetch(t *testing.T) {
	src, fsys := newMemSource(t)
	writeTestFile(t, fsys, "/docs/a.md", "# Alpha\n\nContent.")

	data, err := src.Fetch(context.Background(), "/docs/a.md")
	require.NoError(t, err)
	assert.Equal(t, "# Alpha\n\nContent.", string(data))
}

func TestLocal_FetchMissing(t *testing.T) {
	src, _ := newMemSource(t)

	_, err := src.Fetch(context.Background(), "/docs/missing.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}
