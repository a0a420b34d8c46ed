// Package fsutil holds the write-then-rename helpers shared by every package
// that replaces files under the root.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes data to path atomically: a temporary file in the same
// directory is written, fsynced and renamed over path, then the directory
// is fsynced. Readers observe either the old or the new content.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TempPattern(filepath.Base(path)))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanupNeeded = false

	return SyncDir(dir)
}

// TempPattern is the name pattern WriteFile uses for the temporary file of
// a target named base.
func TempPattern(base string) string {
	return "." + base + ".*.tmp"
}

// RemoveStale deletes temporary files an interrupted WriteFile left in dir
// for targets matching base, which may itself be a glob pattern. It returns
// the paths removed.
func RemoveStale(dir, base string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, TempPattern(base)))
	if err != nil {
		return nil, fmt.Errorf("match temp files: %w", err)
	}

	var removed []string
	for _, m := range matches {
		info, err := os.Lstat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove stale temp file: %w", err)
		}
		removed = append(removed, m)
	}
	return removed, nil
}

// SyncDir fsyncs a directory so a preceding rename is durable. Platforms
// that cannot open directories for sync are ignored.
func SyncDir(dir string) error {
	df, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer df.Close()

	if err := df.Sync(); err != nil && !isUnsupported(err) {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}
