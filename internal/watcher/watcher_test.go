package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const testSettle = 50 * time.Millisecond

// collector records handled paths.
type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) handle(path string) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func (c *collector) has(suffix string) bool {
	for _, p := range c.snapshot() {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}

	w := NewWatcher(nil, []string{".mp4"}, true, c.handle, WithSettle(testSettle))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || filepath.Clean(dirs[0]) != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 1 {
		t.Errorf("adding twice should not duplicate: %v", w.Directories())
	}

	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_SettledFileAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := mkdirAll(sub); err != nil {
		t.Fatal(err)
	}
	c := &collector{}
	w := NewWatcher([]string{dir}, []string{".mp4"}, true, c.handle, WithSettle(testSettle))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(sub, "clip.mp4"), "frames"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(sub, "notes.txt"), "ignored"); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return c.has("clip.mp4") }) {
		t.Fatalf("expected clip.mp4 to be handed over, got %v", c.snapshot())
	}
	if c.has("notes.txt") {
		t.Errorf("notes.txt should be filtered out")
	}
}

func TestWatcher_WaitsForGrowingFile(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}
	w := NewWatcher([]string{dir}, []string{".mp4"}, false, c.handle, WithSettle(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "big.mp4")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.WriteString("chunk"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(40 * time.Millisecond)
		if c.has("big.mp4") {
			t.Fatalf("file handed over while still being written (write %d)", i)
		}
	}
	_ = f.Close()

	if !waitFor(t, func() bool { return c.has("big.mp4") }) {
		t.Fatalf("expected big.mp4 after writes stopped, got %v", c.snapshot())
	}
	if n := len(c.snapshot()); n != 1 {
		t.Errorf("handled %d times, want 1", n)
	}
}

func TestWatcher_RemoveCancelsPending(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}
	w := NewWatcher([]string{dir}, nil, false, c.handle, WithSettle(200*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "temp.mp4")
	if err := writeFile(path, "x"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond)
	if c.has("temp.mp4") {
		t.Errorf("removed file should not be handed over")
	}
}

func TestWatcher_Excludes(t *testing.T) {
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	if err := mkdirAll(uploads); err != nil {
		t.Fatal(err)
	}
	c := &collector{}
	w := NewWatcher([]string{dir}, []string{".mp4"}, true, c.handle, WithSettle(testSettle), WithExcludes(uploads))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(uploads, "uploaded.mp4"), "x"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "dropped.mp4"), "x"); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return c.has("dropped.mp4") }) {
		t.Fatalf("expected dropped.mp4, got %v", c.snapshot())
	}
	time.Sleep(4 * testSettle)
	if c.has("uploaded.mp4") {
		t.Errorf("file under excluded dir should be ignored")
	}

	w.SyncExistingFiles()
	if c.has("uploaded.mp4") {
		t.Errorf("sync should skip excluded dir")
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.mp4", []string{".mp4"}, true},
		{"/a/b.MP4", []string{".mp4"}, true},
		{"/a/b.mkv", []string{"mkv"}, true},
		{"/a/b.srt", []string{".mp4", ".mkv"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.mp4", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.mp4"), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}

	c := &collector{}
	w := NewWatcher([]string{dir}, []string{".mp4"}, true, c.handle)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.SyncExistingFiles()

	got := c.snapshot()
	if len(got) != 1 || !strings.HasSuffix(got[0], "a.mp4") {
		t.Errorf("expected one handled file a.mp4, got %v", got)
	}
}

func TestWatcher_Start_createsMissingRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")

	w := NewWatcher([]string{root}, []string{".mp4"}, true, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_NewFolderRecursive(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}
	w := NewWatcher([]string{dir}, []string{".mp4"}, true, c.handle, WithSettle(testSettle))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	nested := filepath.Join(dir, "season1", "disc2")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "episode.mp4"), "frames"); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return c.has("episode.mp4") }) {
		t.Errorf("expected episode.mp4 to be handed over, got %v", c.snapshot())
	}
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
