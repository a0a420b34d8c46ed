package selfupdate

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/starter/internal/integrity"
	"github.com/ZebulonRouseFrantzich/starter/internal/manifest"
)

// createTarGz builds a gzipped tarball holding files (name => content).
func createTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o755, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write content: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func TestIsTarGz(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://dl.example.com/starter_1.2.0_linux_amd64.tar.gz", true},
		{"https://dl.example.com/starter.tgz?token=abc", true},
		{"https://dl.example.com/starter-linux-amd64", false},
		{"https://dl.example.com/starter.zip", false},
	}
	for _, tt := range tests {
		if got := isTarGz(tt.url); got != tt.want {
			t.Errorf("isTarGz(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestExtractBinary(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "build.tar.gz")
	data := createTarGz(t, map[string]string{
		"starter_1.2.0/README.md": "docs",
		"starter_1.2.0/starter":   "launcher bytes",
	})
	if err := os.WriteFile(archive, data, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	t.Run("found", func(t *testing.T) {
		dest := filepath.Join(dir, "out")
		if err := extractBinary(archive, dest, "starter"); err != nil {
			t.Fatalf("extractBinary() error: %v", err)
		}
		got, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("read extracted: %v", err)
		}
		if string(got) != "launcher bytes" {
			t.Errorf("extracted = %q", got)
		}
	})

	t.Run("missing", func(t *testing.T) {
		err := extractBinary(archive, filepath.Join(dir, "out2"), "starter.exe")
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("not gzip", func(t *testing.T) {
		plain := filepath.Join(dir, "plain")
		os.WriteFile(plain, []byte("not an archive"), 0o644)
		if err := extractBinary(plain, filepath.Join(dir, "out3"), "starter"); err == nil {
			t.Error("expected error for non-gzip input")
		}
	})
}

func TestApply_Archive(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "starter")
	if err := os.WriteFile(target, []byte("old launcher"), 0o755); err != nil {
		t.Fatalf("write target: %v", err)
	}

	archive := createTarGz(t, map[string]string{"starter": "new launcher"})
	url := "https://dl.example.com/starter_2.0.0_linux_amd64.tar.gz"
	b := manifest.LauncherBuild{OS: "linux", Arch: "amd64", Version: "2.0.0", URL: url, Hash: integrity.ComputeHash(archive)}

	u := New(Options{
		Current:    "1.0.0",
		Target:     target,
		GOOS:       "linux",
		GOARCH:     "amd64",
		StagingDir: filepath.Join(dir, "staging"),
		Downloader: fakeDownloader{content: map[string]string{url: string(archive)}},
	})
	if err := u.Apply(context.Background(), b); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(got) != "new launcher" {
		t.Errorf("target = %q, want the binary from the archive", got)
	}
}
