package fs

import (
	"context"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestOSFilesystem_List(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "b.pdf"), "0123456789")
	writeFile(t, filepath.Join(root, "top.txt"), "x")
	writeFile(t, filepath.Join(root, "debug.log"), "ignored by config")
	writeFile(t, filepath.Join(root, "scratch", "draft.pdf"), "ignored by dir rule")
	writeFile(t, filepath.Join(root, "a", ".tmp-123"), "leftover temp file")
	writeFile(t, filepath.Join(root, IgnoreFileName), "scratch/\n")
	if err := os.Symlink(filepath.Join(root, "top.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}

	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(root, "a", "b.pdf"), mtime, mtime); err != nil {
		t.Fatalf("setting mtime: %v", err)
	}

	f := NewOSFilesystem([]string{"*.log"})
	entries, err := f.List(context.Background(), root)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	want := []string{"b.pdf", "top.txt"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("List() names = %v, want %v", names, want)
	}

	for _, e := range entries {
		if e.Name != "b.pdf" {
			continue
		}
		if e.Dir != filepath.Join(root, "a") {
			t.Errorf("Dir = %q, want %q", e.Dir, filepath.Join(root, "a"))
		}
		if e.Size != 10 {
			t.Errorf("Size = %d, want 10", e.Size)
		}
		if !e.ModTime.Equal(mtime) {
			t.Errorf("ModTime = %v, want %v", e.ModTime, mtime)
		}
		if e.ModTime.Location() != time.UTC {
			t.Error("ModTime is not UTC")
		}
	}
}

func TestOSFilesystem_ListErrors(t *testing.T) {
	f := NewOSFilesystem(nil)

	t.Run("missing root", func(t *testing.T) {
		if _, err := f.List(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
			t.Error("List() expected error for missing root")
		}
	})

	t.Run("root is a file", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "file.txt")
		writeFile(t, p, "x")
		if _, err := f.List(context.Background(), p); err == nil {
			t.Error("List() expected error for file root")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "a.txt"), "x")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := f.List(ctx, root); !errors.Is(err, context.Canceled) {
			t.Errorf("List() error = %v, want context.Canceled", err)
		}
	})
}

func TestOSFilesystem_OpenAndDelete(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "doc.pdf")
	writeFile(t, p, "content")
	f := NewOSFilesystem(nil)
	ctx := context.Background()

	rc, err := f.Open(ctx, p)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "content" {
		t.Errorf("content = %q, want %q", got, "content")
	}

	if _, err := f.Open(ctx, root); err == nil {
		t.Error("Open() on a directory should fail")
	}

	if err := f.Delete(ctx, p); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("file still exists after Delete()")
	}

	if err := f.Delete(ctx, p); !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("second Delete() error = %v, want fs.ErrNotExist", err)
	}
}
