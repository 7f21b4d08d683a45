package vault

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileSystemDestination(t *testing.T) {
	t.Run("creates root directory", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "a", "b")

		d, err := NewFileSystemDestination(root)
		if err != nil {
			t.Fatalf("NewFileSystemDestination() error = %v", err)
		}
		if _, err := os.Stat(root); err != nil {
			t.Errorf("root directory not created: %v", err)
		}
		if d.Root() != root {
			t.Errorf("Root() = %q, want %q", d.Root(), root)
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemDestination(t.TempDir()); err != nil {
			t.Fatalf("NewFileSystemDestination() error = %v", err)
		}
	})
}

func TestFileSystemDestination_Write(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		data    string
		size    int64
		wantErr bool
	}{
		{
			name: "nested path",
			path: "organized/ab/cd/ef/report.pdf",
			data: "hello world",
			size: 11,
		},
		{
			name: "unknown size",
			path: "ab/cd/ef/report.pdf.age",
			data: "ciphertext",
			size: -1,
		},
		{
			name:    "size mismatch",
			path:    "ab/cd/ef/short.pdf",
			data:    "hello",
			size:    100,
			wantErr: true,
		},
		{
			name:    "path escaping root",
			path:    "../outside.pdf",
			data:    "x",
			size:    1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			d, err := NewFileSystemDestination(root)
			if err != nil {
				t.Fatalf("NewFileSystemDestination() error = %v", err)
			}

			err = d.Write(context.Background(), tt.path, strings.NewReader(tt.data), tt.size)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Write() error = %v, wantErr %v", err, tt.wantErr)
			}

			target := filepath.Join(root, filepath.FromSlash(tt.path))
			if tt.wantErr {
				if _, err := os.Stat(target); err == nil {
					t.Error("file exists after failed write")
				}
				return
			}

			got, err := os.ReadFile(target)
			if err != nil {
				t.Fatalf("reading written file: %v", err)
			}
			if string(got) != tt.data {
				t.Errorf("content = %q, want %q", got, tt.data)
			}
		})
	}
}

func TestFileSystemDestination_WriteOverwrites(t *testing.T) {
	d, err := NewFileSystemDestination(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemDestination() error = %v", err)
	}
	ctx := context.Background()

	if err := d.Write(ctx, "ab/file.txt", strings.NewReader("first"), 5); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	if err := d.Write(ctx, "ab/file.txt", strings.NewReader("second"), 6); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	rc, err := d.Open(ctx, "ab/file.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}
}

func TestFileSystemDestination_WriteCancelled(t *testing.T) {
	d, err := NewFileSystemDestination(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemDestination() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Write(ctx, "ab/file.txt", strings.NewReader("data"), 4); err == nil {
		t.Fatal("Write() with cancelled context succeeded, want error")
	}
}

func TestFileSystemDestination_OpenNotFound(t *testing.T) {
	d, err := NewFileSystemDestination(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemDestination() error = %v", err)
	}
	if _, err := d.Open(context.Background(), "missing/file.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open() error = %v, want not-exist", err)
	}
}

func TestFileSystemDestination_ValidateSetup(t *testing.T) {
	t.Run("valid root", func(t *testing.T) {
		d, err := NewFileSystemDestination(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemDestination() error = %v", err)
		}
		if err := d.ValidateSetup(context.Background()); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("root removed", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "gone")
		d, err := NewFileSystemDestination(root)
		if err != nil {
			t.Fatalf("NewFileSystemDestination() error = %v", err)
		}
		os.RemoveAll(root)
		if err := d.ValidateSetup(context.Background()); err == nil {
			t.Error("ValidateSetup() expected error for missing root")
		}
	})
}

func TestFileSystemDestination_AtomicWrite(t *testing.T) {
	root := t.TempDir()
	d, err := NewFileSystemDestination(root)
	if err != nil {
		t.Fatalf("NewFileSystemDestination() error = %v", err)
	}

	if err := d.Write(context.Background(), "ab/file.txt", strings.NewReader("hello"), 5); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "ab"))
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}
