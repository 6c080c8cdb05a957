package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	id, path, size, err := fs.Save(strings.NewReader("fake video bytes"), "Lecture.MOV")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" || size != 16 {
		t.Errorf("id=%q size=%d", id, size)
	}
	if path != filepath.Join(dir, id+".mov") {
		t.Errorf("path=%s", path)
	}
	if !Exists(path) {
		t.Error("saved file should exist")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the saved file, found %d entries", len(entries))
	}

	id2, path2, _, err := fs.Save(strings.NewReader("x"), "noext")
	if err != nil {
		t.Fatal(err)
	}
	if id2 == id || filepath.Ext(path2) != DefaultVideoExt {
		t.Errorf("second upload id=%s path=%s", id2, path2)
	}
}

func TestVideoExt(t *testing.T) {
	tests := map[string]string{
		"a.mp4":         ".mp4",
		"b.WEBM":        ".webm",
		"c":             ".mp4",
		"d.verylongext": ".mp4",
	}
	for in, want := range tests {
		if got := videoExt(in); got != want {
			t.Errorf("videoExt(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "f1.bin")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := DiskUsageBytes(f1)
	if err != nil || got != 5 {
		t.Errorf("single file: got %d, %v", got, err)
	}
	got, err = DiskUsageBytes(sub)
	if err != nil || got != 2 {
		t.Errorf("directory: got %d, %v", got, err)
	}
	got, err = DiskUsageBytes(f1, sub, filepath.Join(dir, "missing"), "")
	if err != nil || got != 7 {
		t.Errorf("mixed: got %d, %v", got, err)
	}
}
