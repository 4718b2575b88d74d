// Package compression zstd-compresses Drive payloads and packs local
// directories into tar.zst archives.
package compression

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Extension marks zstd-compressed file names.
const Extension = ".zst"

// ErrUnsafePath is returned by Extract for archive entries pointing outside
// the destination directory.
var ErrUnsafePath = errors.New("compression: archive entry outside of destination")

// IsCompressed reports whether name carries the zstd extension.
func IsCompressed(name string) bool {
	return strings.HasSuffix(name, Extension)
}

// Compress returns the zstd frame of data.
func Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	defer func() { _ = encoder.Close() }()

	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer decoder.Close()

	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

// Archive packs the contents of dir into a tar.zst archive. Entry names are
// slash separated and relative to dir.
func Archive(dir string) ([]byte, error) {
	var buf bytes.Buffer

	zstdWriter, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zstdWriter)

	root := filepath.Clean(dir)
	if err := filepath.Walk(root, func(file string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if file == root {
			return nil
		}

		rel, err := filepath.Rel(root, file)
		if err != nil {
			return err
		}

		var link string
		if fi.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(file); err != nil {
				return fmt.Errorf("read symlink: %w", err)
			}
		}

		header, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return fmt.Errorf("create file info header: %w", err)
		}
		header.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write tar file header: %w", err)
		}

		// nothing more to do for non-regular files or directories
		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("open file: %w", err)
		}
		if _, err := io.Copy(tw, f); err != nil {
			_ = f.Close()
			return fmt.Errorf("copy %s to archive: %w", rel, err)
		}
		return f.Close()
	}); err != nil {
		return nil, fmt.Errorf("iterate on files: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer: %w", err)
	}
	if err := zstdWriter.Close(); err != nil {
		return nil, fmt.Errorf("close zstd writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Extract unpacks an archive created by Archive into dest.
func Extract(data []byte, dest string) error {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	root := filepath.Clean(dest)
	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar file: %w", err)
		}

		target := filepath.Join(root, filepath.FromSlash(header.Name))
		if !within(root, target) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, header.Name)
		}
		if err := checkNoSymlinks(root, target); err != nil {
			return fmt.Errorf("%w: %s", err, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create target directories: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create target directories: %w", err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return fmt.Errorf("create file: %w", err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return fmt.Errorf("copy content to file: %w", err)
			}
			// closed per entry, deferring would keep every file open until the end
			if err := f.Close(); err != nil {
				return fmt.Errorf("write file: %w", err)
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(header.Linkname) || !within(root, filepath.Join(filepath.Dir(target), header.Linkname)) {
				return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, header.Name, header.Linkname)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("symlink file: %w", err)
			}
		}
	}
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}

// checkNoSymlinks rejects target and its parents below root if any of them
// is an existing symlink, so entries are never written through a link.
func checkNoSymlinks(root, target string) error {
	for p := target; p != root; p = filepath.Dir(p) {
		fi, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return ErrUnsafePath
		}
	}
	return nil
}

// IsEmptyDir reports whether path is a missing or empty directory.
func IsEmptyDir(path string) bool {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	_, err = f.Readdirnames(1) // query only 1 child
	return errors.Is(err, io.EOF)
}
