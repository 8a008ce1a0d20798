// Package corpus enumerates the training files below an input directory.
package corpus

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// File is one regular file of the corpus.
type File struct {
	Path    string // path as passed to os.Open
	RelPath string // slash-separated, relative to the corpus root
	Size    int64
}

// Open opens the file for reading. Failures are returned as a *ReadError.
func (f File) Open() (io.ReadCloser, error) {
	r, err := os.Open(f.Path)
	if err != nil {
		return nil, &ReadError{Path: f.Path, Err: err}
	}
	return &reader{f: r, path: f.Path}, nil
}

// reader wraps read failures in a ReadError so callers can tell them apart
// from errors of their own processing.
type reader struct {
	f    *os.File
	path string
}

func (r *reader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = &ReadError{Path: r.path, Err: err}
	}
	return n, err
}

func (r *reader) Close() error { return r.f.Close() }

// Walk returns every regular file below dir, recursively, ordered by
// relative path. dir itself may be a symbolic link; below it, symbolic links
// and other special files are skipped and never followed. The walk stops at
// the first directory that cannot be listed. A dir without any regular file
// yields a ReadError wrapping ErrEmptyCorpus.
func Walk(ctx context.Context, dir string) ([]File, error) {
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, &ReadError{Path: dir, Err: err}
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, &ReadError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &ReadError{Path: dir, Err: errors.New("not a directory")}
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &ReadError{Path: path, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return &ReadError{Path: path, Err: err}
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return &ReadError{Path: path, Err: err}
		}
		// Path keeps dir as given, even when dir is a link.
		files = append(files, File{Path: filepath.Join(dir, rel), RelPath: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &ReadError{Path: dir, Err: ErrEmptyCorpus}
	}

	slices.SortFunc(files, func(a, b File) int {
		return strings.Compare(a.RelPath, b.RelPath)
	})
	return files, nil
}

// TotalSize returns the combined size of files in bytes.
func TotalSize(files []File) int64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}
