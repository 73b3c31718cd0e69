package fsutil

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestMemoryFileSystemRoundTrip(t *testing.T) {
	fs := NewMemoryFileSystem()

	if fs.Exists("a/b.txt") {
		t.Fatal("file exists before write")
	}
	if err := fs.WriteFile("a/b.txt", []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := fs.ReadFile("a/b.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Errorf("read %q, want %q", data, "hello")
	}

	if _, err := fs.ReadFile("missing.txt"); err == nil {
		t.Error("ReadFile on missing file did not error")
	}
}

func TestMemoryFileSystemMkdirAll(t *testing.T) {
	fs := NewMemoryFileSystem()

	if err := fs.MkdirAll("x/y/z", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for _, dir := range []string{"x", "x/y", "x/y/z"} {
		if !fs.Exists(dir) {
			t.Errorf("directory %q missing after MkdirAll", dir)
		}
	}
}

func TestOSFileSystemRoundTrip(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()

	path := filepath.Join(dir, "sub", "out.txt")
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := fs.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !fs.Exists(path) {
		t.Error("Exists = false after write")
	}
	data, err := fs.ReadFile(path)
	if err != nil || string(data) != "data" {
		t.Errorf("ReadFile = %q, %v", data, err)
	}
}
