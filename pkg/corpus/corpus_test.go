package corpus

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
)

// writeTree creates files, given as slash-separated relative paths, below a
// fresh temporary directory.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("setup: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	return root
}

func relPaths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestWalk(t *testing.T) {
	root := writeTree(t, map[string]string{
		"b.txt":          "bbb",
		"a.txt":          "a",
		"sub/c.txt":      "cc",
		"sub/deep/d.txt": "",
		"a/z.txt":        "z",
	})
	if err := os.Mkdir(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := Walk(context.Background(), root)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	want := []string{"a.txt", "a/z.txt", "b.txt", "sub/c.txt", "sub/deep/d.txt"}
	if got := relPaths(files); !slices.Equal(got, want) {
		t.Errorf("Walk() = %q, want %q", got, want)
	}
	if TotalSize(files) != 7 {
		t.Errorf("TotalSize() = %d, want 7", TotalSize(files))
	}
	for _, f := range files {
		if f.Path != filepath.Join(root, filepath.FromSlash(f.RelPath)) {
			t.Errorf("unexpected path %q for %q", f.Path, f.RelPath)
		}
	}
}

func TestWalkSkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	target := writeTree(t, map[string]string{"outside.txt": "outside"})
	root := writeTree(t, map[string]string{"inside.txt": "inside"})
	if err := os.Symlink(filepath.Join(target, "outside.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "linkdir")); err != nil {
		t.Fatal(err)
	}

	files, err := Walk(context.Background(), root)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if got := relPaths(files); !slices.Equal(got, []string{"inside.txt"}) {
		t.Errorf("Walk() = %q, want only inside.txt", got)
	}
}

func TestWalkSymlinkedRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	target := writeTree(t, map[string]string{"a.txt": "a", "sub/b.txt": "bb"})
	outside := writeTree(t, map[string]string{"outside.txt": "outside"})
	if err := os.Symlink(outside, filepath.Join(target, "linkdir")); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(t.TempDir(), "corpus-link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	files, err := Walk(context.Background(), link)
	if err != nil {
		t.Fatalf("Walk through a linked root failed: %v", err)
	}
	if got := relPaths(files); !slices.Equal(got, []string{"a.txt", "sub/b.txt"}) {
		t.Errorf("Walk() = %q, want the files of the link target only", got)
	}
	for _, f := range files {
		if want := filepath.Join(link, filepath.FromSlash(f.RelPath)); f.Path != want {
			t.Errorf("Path = %q, want %q", f.Path, want)
		}
		r, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", f.Path, err)
		}
		_ = r.Close()
	}
}

func TestWalkEmpty(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "only", "dirs"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := Walk(context.Background(), root)
	var rerr *ReadError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *ReadError, got %v", err)
	}
	if !errors.Is(err, ErrEmptyCorpus) || !errors.Is(err, ErrCorpusRead) {
		t.Errorf("expected the error to match ErrEmptyCorpus and ErrCorpusRead, got %v", err)
	}
}

func TestWalkInvalidRoot(t *testing.T) {
	root := writeTree(t, map[string]string{"file.txt": "x"})

	testCases := map[string]string{
		"missing":       filepath.Join(root, "missing"),
		"not directory": filepath.Join(root, "file.txt"),
	}
	for name, dir := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Walk(context.Background(), dir)
			var rerr *ReadError
			if !errors.As(err, &rerr) || rerr.Path != dir {
				t.Fatalf("expected *ReadError for %s, got %v", dir, err)
			}
			if !errors.Is(err, ErrCorpusRead) {
				t.Error("expected the error to match ErrCorpusRead")
			}
		})
	}

	_, err := Walk(context.Background(), testCases["missing"])
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected the cause to be kept, got %v", err)
	}
}

func TestWalkCancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Walk(ctx, root); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFileOpen(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hello"})
	files, err := Walk(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	r, err := files[0].Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	data, err := io.ReadAll(r)
	if err != nil || string(data) != "hello" {
		t.Errorf("ReadAll() = %q, %v", data, err)
	}

	// Removed between walking and opening.
	if err := os.Remove(files[0].Path); err != nil {
		t.Fatal(err)
	}
	_, err = files[0].Open()
	if !errors.Is(err, ErrCorpusRead) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected a ReadError wrapping ErrNotExist, got %v", err)
	}
}

func TestFileReadError(t *testing.T) {
	root := t.TempDir()
	// Reading a directory fails after a successful open.
	r, err := File{Path: root}.Open()
	if err != nil {
		t.Skipf("opening a directory failed on this platform: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	_, err = io.ReadAll(r)
	var rerr *ReadError
	if !errors.As(err, &rerr) || rerr.Path != root {
		t.Errorf("expected *ReadError for %s, got %v", root, err)
	}
}
