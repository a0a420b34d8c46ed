package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerate_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts InitOptions
	}{
		{
			name: "manifest_url",
			opts: InitOptions{Name: "bot", ManifestURL: "https://example.com/m.json", Command: []string{"./bot", "--serve"}},
		},
		{
			name: "github",
			opts: InitOptions{Owner: "me", Repo: "bot"},
		},
		{
			name: "defaults",
			opts: InitOptions{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := Generate(tt.opts)

			cfg, err := NewParser(nil).ParseString(context.Background(), code)
			if err != nil {
				t.Fatalf("generated config does not parse: %v\n%s", err, code)
			}

			if tt.opts.Owner != "" {
				if cfg.GitHub == nil || cfg.GitHub.Owner != tt.opts.Owner || cfg.GitHub.Repo != tt.opts.Repo {
					t.Errorf("GitHub = %+v", cfg.GitHub)
				}
			} else if cfg.Manifest.URL == "" {
				t.Error("expected manifest url")
			}

			if len(tt.opts.Command) > 0 && strings.Join(cfg.App.Command, " ") != strings.Join(tt.opts.Command, " ") {
				t.Errorf("Command = %v, want %v", cfg.App.Command, tt.opts.Command)
			}
			if cfg.PackageManager.VersionPattern != `(?m)^Version:\s*(\S+)` {
				t.Errorf("VersionPattern = %q", cfg.PackageManager.VersionPattern)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteDefault(dir, InitOptions{Owner: "me", Repo: "bot"}, false)
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != filepath.Join(dir, DefaultFileName) {
		t.Errorf("path = %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	if _, err := WriteDefault(dir, InitOptions{}, false); err == nil {
		t.Error("expected error when config exists")
	}
	if _, err := WriteDefault(dir, InitOptions{}, true); err != nil {
		t.Errorf("force overwrite failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}
