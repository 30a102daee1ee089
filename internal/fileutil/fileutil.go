package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrCopy marks a failed materialization. A destination file may have been
// partially written and is left in place for inspection.
var ErrCopy = errors.New("copy error")

// CopyFile streams src to dst using io.Copy with default permissions (0o644).
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// Materialize creates dir and any missing parents, then copies src to
// dir/name. It returns the destination path.
func Materialize(src, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create directory %s: %w", ErrCopy, dir, err)
	}

	dst := filepath.Join(dir, name)
	if err := CopyFile(src, dst); err != nil {
		return dst, fmt.Errorf("%w: %s -> %s: %w", ErrCopy, src, dst, err)
	}
	return dst, nil
}

// IsRegularFile reports whether path exists and is a regular file.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
