package reload

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWatcherTracksExistingFiles(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	entryFile := filepath.Join(dir, "entries.yaml")
	writeFile(t, cfgFile, "a")
	writeFile(t, entryFile, "b")

	watcher := NewWatcher(cfgFile, entryFile, "", filepath.Join(dir, "missing.yaml"))
	if len(watcher.files) != 2 {
		t.Fatalf("expected 2 tracked files, got %d", len(watcher.files))
	}
	if changed := watcher.Check(); len(changed) != 0 {
		t.Fatalf("expected no changes, got %v", changed)
	}
}

func TestWatcherDetectsModification(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgFile, "a")

	watcher := NewWatcher(cfgFile)

	// Stat granularity can swallow same-size rewrites, so change the size.
	writeFile(t, cfgFile, "changed content")
	if err := os.Chtimes(cfgFile, time.Now(), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	changed := watcher.Check()
	if len(changed) != 1 || changed[0] != cfgFile {
		t.Fatalf("expected %s changed, got %v", cfgFile, changed)
	}

	watcher.Update(cfgFile)
	if changed := watcher.Check(); len(changed) != 0 {
		t.Fatalf("expected change to clear after update, got %v", changed)
	}
}

func TestWatcherDetectsRemoval(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	writeFile(t, cfgFile, "a")

	watcher := NewWatcher(cfgFile)
	if err := os.Remove(cfgFile); err != nil {
		t.Fatalf("remove: %v", err)
	}

	changed := watcher.Check()
	if len(changed) != 1 {
		t.Fatalf("expected removed file reported, got %v", changed)
	}
}
