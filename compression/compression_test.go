package compression

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompress(t *testing.T) {
	payload := bytes.Repeat([]byte("deta drive payload "), 1000)

	compressed, err := Compress(payload)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, decompressed)
}

func TestDecompress_InvalidData(t *testing.T) {
	_, err := Decompress([]byte("not zstd"))

	assert.Error(t, err)
}

func TestIsCompressed(t *testing.T) {
	assert.True(t, IsCompressed("backup.tar.zst"))
	assert.False(t, IsCompressed("backup.tar"))
	assert.False(t, IsCompressed("zst"))
}

func TestArchiveExtract(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "first_level", "second_level"), 0700))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty_dir"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(src, "root.txt"), []byte("root"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "first_level", "second_level", "nested_file.txt"), []byte("hello"), 0600))

	archive, err := Archive(src)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, Extract(archive, dest))

	data, err := os.ReadFile(filepath.Join(dest, "root.txt"))
	require.NoError(t, err)
	assert.Equal(t, "root", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "first_level", "second_level", "nested_file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	assert.DirExists(t, filepath.Join(dest, "empty_dir"))
}

type archiveEntry struct {
	header  tar.Header
	content string
}

func craftArchive(t *testing.T, entries ...archiveEntry) []byte {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		header := e.header
		header.Size = int64(len(e.content))
		require.NoError(t, tw.WriteHeader(&header))
		_, err = tw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract_UnsafePath(t *testing.T) {
	outside := t.TempDir()

	tests := []struct {
		name    string
		entries []archiveEntry
	}{
		{
			name:    "parent directory name",
			entries: []archiveEntry{{header: tar.Header{Name: "../escape.txt", Mode: 0600, Typeflag: tar.TypeReg}, content: "x"}},
		},
		{
			name:    "absolute symlink",
			entries: []archiveEntry{{header: tar.Header{Name: "a", Linkname: outside, Typeflag: tar.TypeSymlink}}},
		},
		{
			name:    "relative symlink leaving the destination",
			entries: []archiveEntry{{header: tar.Header{Name: "a/b", Linkname: "../../x", Typeflag: tar.TypeSymlink}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()

			err := Extract(craftArchive(t, tt.entries...), dest)

			assert.ErrorIs(t, err, ErrUnsafePath)
			assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "escape.txt"))
			assert.NoFileExists(t, filepath.Join(dest, "a"))
		})
	}
}

func TestExtract_DoesNotWriteThroughSymlinks(t *testing.T) {
	outside := t.TempDir()
	dest := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dest, "a")))

	tests := []struct {
		name  string
		entry archiveEntry
	}{
		{name: "file below a symlinked directory", entry: archiveEntry{header: tar.Header{Name: "a/pwned", Mode: 0600, Typeflag: tar.TypeReg}, content: "x"}},
		{name: "directory below a symlinked directory", entry: archiveEntry{header: tar.Header{Name: "a/dir", Mode: 0755, Typeflag: tar.TypeDir}}},
		{name: "file replacing a symlink", entry: archiveEntry{header: tar.Header{Name: "a", Mode: 0600, Typeflag: tar.TypeReg}, content: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Extract(craftArchive(t, tt.entry), dest)

			assert.ErrorIs(t, err, ErrUnsafePath)
			entries, err := os.ReadDir(outside)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestExtract_SymlinkInsideDestination(t *testing.T) {
	dest := t.TempDir()
	archive := craftArchive(t,
		archiveEntry{header: tar.Header{Name: "data/file.txt", Mode: 0600, Typeflag: tar.TypeReg}, content: "hello"},
		archiveEntry{header: tar.Header{Name: "link.txt", Linkname: "data/file.txt", Typeflag: tar.TypeSymlink}},
	)

	require.NoError(t, Extract(archive, dest))

	data, err := os.ReadFile(filepath.Join(dest, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestIsEmptyDir(t *testing.T) {
	basePath := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(basePath, "empty_dir"), 0700))
	require.NoError(t, os.MkdirAll(filepath.Join(basePath, "dir_with_dir_child", "nested_empty_dir"), 0700))

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "empty dir", path: filepath.Join(basePath, "empty_dir"), want: true},
		{name: "empty dir within dir", path: filepath.Join(basePath, "dir_with_dir_child"), want: false},
		{name: "nonexistent dir", path: filepath.Join(basePath, "this doesn't exist"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmptyDir(tt.path))
		})
	}
}
