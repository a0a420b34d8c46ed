// Package testutil provides utilities for testing starter in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv creates an isolated root directory for each test and points
// STARTER_DIR at it. STARTER_CONFIG is cleared so a developer's own
// environment never leaks into a test run.
//
// The directory is removed by t.TempDir(), so callers don't need to clean up.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "root")
	if err := os.MkdirAll(root, 0o750); err != nil {
		t.Fatalf("failed to create test root %s: %v", root, err)
	}

	t.Setenv("STARTER_DIR", root)
	t.Setenv("STARTER_CONFIG", "")

	return root
}

// WriteFiles writes each path => content pair under root, creating parent
// directories as needed.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("failed to create parent of %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
}

// ReadFile returns the content of root/rel, failing the test if it cannot be read.
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

// AssertMissing fails the test if root/rel exists.
func AssertMissing(t *testing.T, root, rel string) {
	t.Helper()

	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); !os.IsNotExist(err) {
		t.Errorf("%s should not exist (stat err: %v)", rel, err)
	}
}
