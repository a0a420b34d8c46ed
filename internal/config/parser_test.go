package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/starter/internal/platform"
)

const minimalConfig = `
	starter = {
		manifest = { url = "https://example.com/manifest.json" },
		app = { command = { "python", "scripts/main.py" } },
	}
`

func TestParser_ParseString_Minimal(t *testing.T) {
	cfg, err := NewParser(nil).ParseString(context.Background(), minimalConfig)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	if cfg.Manifest.URL != "https://example.com/manifest.json" {
		t.Errorf("Manifest.URL = %q", cfg.Manifest.URL)
	}
	if len(cfg.App.Command) != 2 || cfg.App.Command[1] != "scripts/main.py" {
		t.Errorf("App.Command = %v", cfg.App.Command)
	}

	// defaults
	if cfg.App.Mode != ModeExec {
		t.Errorf("App.Mode = %q, want %q", cfg.App.Mode, ModeExec)
	}
	if cfg.App.RestartExitCode != DefaultRestartExitCode {
		t.Errorf("RestartExitCode = %d", cfg.App.RestartExitCode)
	}
	if cfg.Sync.Workers != DefaultWorkers || cfg.Sync.Retries != DefaultRetries {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Sync.Timeout != DefaultTimeout {
		t.Errorf("Sync.Timeout = %v", cfg.Sync.Timeout)
	}
	if cfg.Sync.Marker != DefaultMarkerFile {
		t.Errorf("Sync.Marker = %q", cfg.Sync.Marker)
	}
}

func TestParser_ParseString_Full(t *testing.T) {
	code := `
		starter = {
			name = "bot",
			github = { owner = "me", repo = "bot", prefix = "/scripts/" },
			app = {
				command = "./run.sh",
				mode = "supervise",
				restart_exit_code = 42,
				env = { BOT_ENV = "prod", WORKERS = 2 },
			},
			dependencies = {
				"colorama",
				"aiohttp>=3.9",
				{ name = "requests", min_version = "2.31.0" },
			},
			package_manager = {
				query = { "pip", "show", "{name}" },
				install = { "pip", "install", "{spec}" },
				version_pattern = "Version: (\\S+)",
			},
			sync = { workers = 8, timeout = 10, retries = 1, marker = "state.json" },
			self_update = true,
		}
	`

	cfg, err := NewParser(nil).ParseString(context.Background(), code)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	if cfg.GitHub == nil {
		t.Fatal("GitHub source not parsed")
	}
	if cfg.GitHub.Prefix != "scripts" {
		t.Errorf("Prefix = %q, want scripts", cfg.GitHub.Prefix)
	}
	if cfg.GitHub.Branch != DefaultGitHubBranch || cfg.GitHub.APIURL != DefaultGitHubAPI {
		t.Errorf("GitHub defaults not applied: %+v", cfg.GitHub)
	}
	if cfg.App.Mode != ModeSupervise || cfg.App.RestartExitCode != 42 {
		t.Errorf("App = %+v", cfg.App)
	}
	if len(cfg.App.Command) != 1 || cfg.App.Command[0] != "./run.sh" {
		t.Errorf("App.Command = %v", cfg.App.Command)
	}
	if cfg.App.Env["BOT_ENV"] != "prod" || cfg.App.Env["WORKERS"] != "2" {
		t.Errorf("App.Env = %v", cfg.App.Env)
	}

	want := []Dependency{
		{Name: "colorama"},
		{Name: "aiohttp", MinVersion: "3.9"},
		{Name: "requests", MinVersion: "2.31.0"},
	}
	if len(cfg.Dependencies) != len(want) {
		t.Fatalf("Dependencies = %+v", cfg.Dependencies)
	}
	for i := range want {
		if cfg.Dependencies[i] != want[i] {
			t.Errorf("Dependencies[%d] = %+v, want %+v", i, cfg.Dependencies[i], want[i])
		}
	}

	if cfg.Sync.Workers != 8 || cfg.Sync.Retries != 1 || cfg.Sync.Timeout != 10*time.Second {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Sync.Marker != "state.json" {
		t.Errorf("Sync.Marker = %q", cfg.Sync.Marker)
	}
	if !cfg.SelfUpdate {
		t.Error("SelfUpdate = false, want true")
	}
}

func TestParser_PlatformConditionals(t *testing.T) {
	code := `
		starter = {
			manifest = { url = "https://example.com/manifest.json" },
			app = { command = { platform.is_windows and "bot.exe" or "./bot" } },
			dependencies = {
				"requests",
				platform.when(platform.is_linux, "uvloop"),
				platform.when(platform.is_windows, "pywin32"),
			},
			package_manager = { query = { "pip", "show", "{name}" }, install = { "pip", "install", "{name}" } },
		}
	`

	detector := platform.StaticDetector{Info: &platform.Info{OS: "linux", Arch: "amd64"}}
	cfg, err := NewParser(detector).ParseString(context.Background(), code)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	if cfg.App.Command[0] != "./bot" {
		t.Errorf("Command = %v, want ./bot", cfg.App.Command)
	}
	if len(cfg.Dependencies) != 2 || cfg.Dependencies[1].Name != "uvloop" {
		t.Errorf("Dependencies = %+v, want requests and uvloop", cfg.Dependencies)
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantParse bool
		wantField string
	}{
		{
			name:      "syntax_error",
			code:      `starter = {`,
			wantParse: true,
		},
		{
			name:      "missing_table",
			code:      `other = {}`,
			wantParse: true,
		},
		{
			name:      "sandboxed_os",
			code:      `os.execute("rm -rf /")`,
			wantParse: true,
		},
		{
			name:      "no_source",
			code:      `starter = { app = { command = { "x" } } }`,
			wantField: "manifest",
		},
		{
			name:      "both_sources",
			code:      `starter = { manifest = { url = "https://a" }, github = { owner = "o", repo = "r" }, app = { command = { "x" } } }`,
			wantField: "manifest",
		},
		{
			name:      "missing_command",
			code:      `starter = { manifest = { url = "https://a" } }`,
			wantField: "app.command",
		},
		{
			name:      "bad_mode",
			code:      `starter = { manifest = { url = "https://a" }, app = { command = { "x" }, mode = "fork" } }`,
			wantField: "app.mode",
		},
		{
			name:      "deps_without_package_manager",
			code:      `starter = { manifest = { url = "https://a" }, app = { command = { "x" } }, dependencies = { "requests" } }`,
			wantField: "package_manager",
		},
		{
			name:      "bad_dependency_entry",
			code:      `starter = { manifest = { url = "https://a" }, app = { command = { "x" } }, dependencies = { 42 } }`,
			wantParse: true,
		},
		{
			name:      "signature_without_keyring",
			code:      `starter = { manifest = { url = "https://a", signature_url = "https://a.sig" }, app = { command = { "x" } } }`,
			wantField: "manifest.keyring",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(nil).ParseString(context.Background(), tt.code)
			if err == nil {
				t.Fatal("expected error but got none")
			}

			var parseErr *ParseError
			if tt.wantParse && !errors.As(err, &parseErr) {
				t.Errorf("error = %v, want *ParseError", err)
			}

			var valErr *ValidationError
			if tt.wantField != "" {
				if !errors.As(err, &valErr) {
					t.Fatalf("error = %v, want *ValidationError", err)
				}
				if valErr.Field != tt.wantField {
					t.Errorf("Field = %q, want %q", valErr.Field, tt.wantField)
				}
			}
		})
	}
}

func TestParser_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewParser(nil).ParseString(ctx, `while true do end`)
	if err == nil {
		t.Fatal("expected runaway config to be stopped")
	}
}

func TestLoad_ResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultFileName), []byte(minimalConfig), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvDir, dir)
	t.Setenv(EnvConfig, "")

	cfg, err := Load(context.Background(), LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, dir)
	}
	if cfg.Path != filepath.Join(dir, DefaultFileName) {
		t.Errorf("Path = %q", cfg.Path)
	}
}

func TestLoad_RelativeConfigPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "alt.lua"), []byte(minimalConfig), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(context.Background(), LoadOptions{Dir: dir, Path: "alt.lua"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path != filepath.Join(dir, "alt.lua") {
		t.Errorf("Path = %q", cfg.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), LoadOptions{Dir: t.TempDir()})
	if err == nil {
		t.Fatal("expected error for missing starter.lua")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestFormatError(t *testing.T) {
	err := &ParseError{Message: "Lua syntax error", Detail: "line 1: boom\nstack traceback:\n\t[G]: ?"}

	short := FormatError(err, false)
	if strings.Contains(short, "traceback") {
		t.Errorf("non-verbose output should drop the traceback: %q", short)
	}
	if !strings.Contains(FormatError(err, true), "traceback") {
		t.Error("verbose output should keep the traceback")
	}
	if FormatError(errors.New("plain"), false) != "plain" {
		t.Error("non-parse errors should pass through")
	}
}
