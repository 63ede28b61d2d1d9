package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCacheFileName(t *testing.T) {
	a := CacheFileName("gtfs", "https://example.com/a.zip", ".zip")
	b := CacheFileName("gtfs", "https://example.com/b.zip", ".zip")

	if a == b {
		t.Error("expected different sources to produce different names")
	}
	if !strings.HasPrefix(a, "gtfs_") || !strings.HasSuffix(a, ".zip") {
		t.Errorf("unexpected cache file name %s", a)
	}
	if a != CacheFileName("gtfs", "https://example.com/a.zip", ".zip") {
		t.Error("expected the name to be stable for one source")
	}
}

func TestGetLastCachedFile(t *testing.T) {
	tmpDir := t.TempDir()

	newest := CacheFileName("gtfs", "https://example.com/gtfs1", ".zip")
	createFileWithModTime(t, filepath.Join(tmpDir, newest), time.Now().Add(-2*time.Hour))
	createFileWithModTime(t, filepath.Join(tmpDir, "gtfs_old.zip"), time.Now().Add(-3*time.Hour))
	createFileWithModTime(t, filepath.Join(tmpDir, "other_file.zip"), time.Now().Add(-1*time.Hour))

	lastFile, err := GetLastCachedFile(tmpDir, "gtfs_")
	if err != nil {
		t.Fatalf("GetLastCachedFile failed: %v", err)
	}
	if lastFile != filepath.Join(tmpDir, newest) {
		t.Errorf("expected %s, got %s", newest, lastFile)
	}

	if _, err := GetLastCachedFile(tmpDir, "missing_"); err == nil {
		t.Error("expected an error for a prefix with no cached files, but got nil")
	}

	t.Run("Invalid Cache Directory Read", func(t *testing.T) {
		if _, err := GetLastCachedFile("/invalid/cache/dir", "gtfs_"); err == nil {
			t.Errorf("expected error for os.ReadDir failure, got none")
		}
	})

	t.Run("Empty Cache Directory", func(t *testing.T) {
		if _, err := GetLastCachedFile(t.TempDir(), "gtfs_"); err == nil {
			t.Errorf("expected error for empty cache directory, but got none")
		}
	})
}

func createFileWithModTime(t *testing.T, path string, modTime time.Time) {
	t.Helper()

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file %s: %v", path, err)
	}
	defer file.Close()

	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("Failed to set modification time for file %s: %v", path, err)
	}
}

func TestEnsureDirectory(t *testing.T) {
	t.Run("Creates new directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "data")

		if err := EnsureDirectory(dir); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}

		stat, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("failed to stat directory: %v", err)
		}
		if !stat.IsDir() {
			t.Error("path was created but is not a directory")
		}
	})

	t.Run("Handles existing directory", func(t *testing.T) {
		if err := EnsureDirectory(t.TempDir()); err != nil {
			t.Errorf("failed on existing directory: %v", err)
		}
	})

	t.Run("Fails: if path is a file", func(t *testing.T) {
		filePath := filepath.Join(t.TempDir(), "test-file")
		if err := os.WriteFile(filePath, nil, 0o644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		if err := EnsureDirectory(filePath); err == nil {
			t.Error("expected error when path is a file, but got nil")
		}
	})
}

func TestMakeMap(t *testing.T) {
	m := MakeMap("line_code", "11", "operation", "sequence")
	if len(m) != 2 || m["line_code"] != "11" || m["operation"] != "sequence" {
		t.Errorf("unexpected map %v", m)
	}

	if m := MakeMap("dangling"); len(m) != 0 {
		t.Errorf("expected a trailing key to be dropped, got %v", m)
	}
}
