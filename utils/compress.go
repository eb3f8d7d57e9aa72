package utils

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// GzipFile compresses path to path.gz and removes path, the way the gzip
// command does. Any previous path.gz is replaced.
func GzipFile(path string) (string, error) {
	target := path + ".gz"
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return "", &WriteError{Path: target, Err: err}
	}

	in, err := os.Open(path)
	if err != nil {
		return "", &WriteError{Path: target, Err: err}
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return "", &WriteError{Path: target, Err: err}
	}

	zw, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		out.Close()
		return "", &WriteError{Path: target, Err: err}
	}
	zw.Name = filepath.Base(path)
	if info, err := in.Stat(); err == nil {
		zw.ModTime = info.ModTime()
	}

	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		return "", &WriteError{Path: target, Err: fmt.Errorf("failed to compress: %w", err)}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return "", &WriteError{Path: target, Err: err}
	}
	if err := out.Close(); err != nil {
		return "", &WriteError{Path: target, Err: err}
	}

	in.Close()
	if err := os.Remove(path); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	return target, nil
}
